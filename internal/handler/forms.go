// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/olegiv/wxdesk/internal/model"
	"github.com/olegiv/wxdesk/internal/render"
)

// fieldKind is how a form field is parsed.
type fieldKind int

const (
	kindFloat fieldKind = iota
	kindInt
	kindText
)

// FormField is one input of the observation form.
type FormField struct {
	Name  string
	Label string // translation key
	Unit  string
	Kind  fieldKind
}

// InputStep is the HTML step attribute of the field.
func (f FormField) InputStep() string {
	if f.Kind == kindInt {
		return "1"
	}
	return "any"
}

// IsText reports whether the field is free text.
func (f FormField) IsText() bool {
	return f.Kind == kindText
}

// FormSection groups fields under a heading. A section with a Toggle is only
// submitted when its checkbox is ticked.
type FormSection struct {
	Title  string // translation key
	Toggle string // checkbox name, "" for always-on sections
	Fields []FormField
}

// observationSections mirrors the paper observation sheet.
var observationSections = []FormSection{
	{Title: "observation.section_temperature", Fields: []FormField{
		{Name: "temperature", Label: "observation.temperature", Unit: "°C"},
		{Name: "wet_bulb_temperature", Label: "observation.wetBulbTemperature", Unit: "°C"},
		{Name: "precipitation", Label: "observation.precipitation", Unit: "mm"},
	}},
	{Title: "observation.section_evaporation", Fields: []FormField{
		{Name: "evaporation_pan_temp", Label: "observation.evaporationPanTemp", Unit: "°C"},
		{Name: "current_evaporation_level", Label: "observation.currentEvaporationLevel", Unit: "mm"},
	}},
	{Title: "observation.section_weather", Fields: []FormField{
		{Name: "current_weather_code", Label: "observation.currentWeatherCode", Kind: kindText},
		{Name: "total_cloud_amount", Label: "observation.totalCloudAmount", Kind: kindInt},
		{Name: "high_cloud_type_code", Label: "observation.highCloudTypeCode", Kind: kindInt},
		{Name: "high_cloud_amount", Label: "observation.highCloudAmount", Kind: kindInt},
		{Name: "middle_cloud_type_code", Label: "observation.middleCloudTypeCode", Kind: kindInt},
		{Name: "middle_cloud_amount", Label: "observation.middleCloudAmount", Kind: kindInt},
		{Name: "low_cloud_type_code", Label: "observation.lowCloudTypeCode", Kind: kindInt},
		{Name: "low_cloud_amount", Label: "observation.lowCloudAmount", Kind: kindInt},
	}},
	{Title: "observation.cleanedEvaporationData", Toggle: "has_cleaned_evaporation_pan", Fields: []FormField{
		{Name: "cleaned_evaporation_level", Label: "observation.cleanedEvaporationLevel", Unit: "mm"},
		{Name: "cleaned_evaporation_temp", Label: "observation.cleanedEvaporationTemp", Unit: "°C"},
	}},
	{Title: "observation.addedEvaporationData", Toggle: "has_added_evaporation_water", Fields: []FormField{
		{Name: "added_evaporation_level", Label: "observation.addedEvaporationLevel", Unit: "mm"},
		{Name: "added_evaporation_temp", Label: "observation.addedEvaporationTemp", Unit: "°C"},
	}},
	{Title: "observation.reducedEvaporationData", Toggle: "has_reduced_evaporation_water", Fields: []FormField{
		{Name: "reduced_evaporation_level", Label: "observation.reducedEvaporationLevel", Unit: "mm"},
		{Name: "reduced_evaporation_temp", Label: "observation.reducedEvaporationTemp", Unit: "°C"},
	}},
}

// ObservationForm is the data of the create/edit page.
type ObservationForm struct {
	ID       int64 // 0 when creating
	Action   string
	Observer string
	Sections []FormSection
	Values   map[string]string
	Checked  map[string]bool
	Errors   map[string]string // field name -> translation key
}

// IsEdit reports whether the form edits an existing observation.
func (f ObservationForm) IsEdit() bool {
	return f.ID > 0
}

// notesPolicy strips all markup from the free-text notes.
var notesPolicy = bluemonday.StrictPolicy()

// readingFields binds form names to the reading pointers of r.
func readingFields(r *model.Readings) (floats map[string]**float64, ints map[string]**int) {
	floats = map[string]**float64{
		"temperature":               &r.Temperature,
		"wet_bulb_temperature":      &r.WetBulbTemperature,
		"precipitation":             &r.Precipitation,
		"evaporation_pan_temp":      &r.EvaporationPanTemp,
		"current_evaporation_level": &r.CurrentEvaporationLevel,
		"cleaned_evaporation_level": &r.CleanedEvaporationLevel,
		"cleaned_evaporation_temp":  &r.CleanedEvaporationTemp,
		"added_evaporation_level":   &r.AddedEvaporationLevel,
		"added_evaporation_temp":    &r.AddedEvaporationTemp,
		"reduced_evaporation_level": &r.ReducedEvaporationLevel,
		"reduced_evaporation_temp":  &r.ReducedEvaporationTemp,
	}
	ints = map[string]**int{
		"total_cloud_amount":     &r.TotalCloudAmount,
		"high_cloud_type_code":   &r.HighCloudTypeCode,
		"high_cloud_amount":      &r.HighCloudAmount,
		"middle_cloud_type_code": &r.MiddleCloudTypeCode,
		"middle_cloud_amount":    &r.MiddleCloudAmount,
		"low_cloud_type_code":    &r.LowCloudTypeCode,
		"low_cloud_amount":       &r.LowCloudAmount,
	}
	return floats, ints
}

// toggles binds the section checkboxes to their flags.
func toggles(r *model.Readings) map[string]*bool {
	return map[string]*bool{
		"has_cleaned_evaporation_pan":   &r.HasCleanedEvaporationPan,
		"has_added_evaporation_water":   &r.HasAddedEvaporationWater,
		"has_reduced_evaporation_water": &r.HasReducedEvaporationWater,
	}
}

// ParseObservationForm converts submitted form values into an API payload.
// Blank numbers become null; the observation time is read in loc and
// defaults to now. The returned map holds per-field translation keys of
// values that could not be parsed.
func ParseObservationForm(form url.Values, loc *time.Location, now time.Time) (model.ObservationInput, map[string]string) {
	var in model.ObservationInput
	errs := make(map[string]string)

	if raw := strings.TrimSpace(form.Get("observation_time")); raw == "" {
		in.ObservationTime = now.Truncate(time.Minute)
	} else if t, err := time.ParseInLocation(render.DateTimeLocalLayout, raw, loc); err == nil {
		in.ObservationTime = t
	} else {
		errs["observation_time"] = "validation.datetime"
	}

	floats, ints := readingFields(&in.Readings)
	for name, dst := range floats {
		raw := strings.TrimSpace(form.Get(name))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			errs[name] = "validation.number"
			continue
		}
		*dst = &v
	}
	for name, dst := range ints {
		raw := strings.TrimSpace(form.Get(name))
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			errs[name] = "validation.integer"
			continue
		}
		*dst = &v
	}

	for name, flag := range toggles(&in.Readings) {
		*flag = form.Get(name) != ""
	}

	in.CurrentWeatherCode = model.StringPtr(form.Get("current_weather_code"))
	in.Notes = model.StringPtr(notesPolicy.Sanitize(form.Get("notes")))

	in.ClearUnusedSections()
	return in, errs
}

// newObservationForm prepares the form for an existing payload.
func newObservationForm(in model.ObservationInput, loc *time.Location) ObservationForm {
	values := make(map[string]string)
	if !in.ObservationTime.IsZero() {
		values["observation_time"] = in.ObservationTime.In(loc).Format(render.DateTimeLocalLayout)
	}

	floats, ints := readingFields(&in.Readings)
	for name, v := range floats {
		values[name] = render.FloatInputValue(*v)
	}
	for name, v := range ints {
		values[name] = render.IntInputValue(*v)
	}
	if in.CurrentWeatherCode != nil {
		values["current_weather_code"] = *in.CurrentWeatherCode
	}
	if in.Notes != nil {
		values["notes"] = *in.Notes
	}

	checked := make(map[string]bool)
	for name, flag := range toggles(&in.Readings) {
		checked[name] = *flag
	}

	return ObservationForm{
		Sections: observationSections,
		Values:   values,
		Checked:  checked,
		Errors:   map[string]string{},
	}
}

// resubmittedForm keeps what the user typed when the submission is rejected.
func resubmittedForm(form url.Values, errs map[string]string) ObservationForm {
	values := make(map[string]string, len(form))
	for name := range form {
		values[name] = form.Get(name)
	}
	checked := make(map[string]bool)
	for _, s := range observationSections {
		if s.Toggle != "" {
			checked[s.Toggle] = form.Get(s.Toggle) != ""
		}
	}
	return ObservationForm{
		Sections: observationSections,
		Values:   values,
		Checked:  checked,
		Errors:   errs,
	}
}
