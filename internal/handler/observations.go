// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/olegiv/wxdesk/internal/apiclient"
	"github.com/olegiv/wxdesk/internal/i18n"
	"github.com/olegiv/wxdesk/internal/middleware"
	"github.com/olegiv/wxdesk/internal/model"
	"github.com/olegiv/wxdesk/internal/render"
)

// ObservationList is the data of the list template.
type ObservationList struct {
	Items          []model.Observation
	Pagination     Pagination
	PerPageOptions []int
	Start          string
	End            string
	Mine           bool
}

// ObservationsHandler handles the observation list and forms.
type ObservationsHandler struct {
	api      *apiclient.Client
	renderer *render.Renderer
	pageSize int
	location *time.Location
	clock    clockwork.Clock
}

// ObservationsConfig configures an ObservationsHandler.
type ObservationsConfig struct {
	// PageSize is the default rows per page.
	PageSize int
	// Location is the zone form times are entered in (default UTC).
	Location *time.Location
	Clock    clockwork.Clock
}

// NewObservationsHandler creates a new ObservationsHandler.
func NewObservationsHandler(api *apiclient.Client, renderer *render.Renderer, cfg ObservationsConfig) *ObservationsHandler {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 10
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &ObservationsHandler{
		api:      api,
		renderer: renderer,
		pageSize: cfg.PageSize,
		location: cfg.Location,
		clock:    cfg.Clock,
	}
}

// List handles GET /observations.
func (h *ObservationsHandler) List(w http.ResponseWriter, r *http.Request) {
	lang := middleware.GetLang(r)
	q := r.URL.Query()

	page := ParsePage(q)
	perPage := ParsePerPage(q, h.pageSize)

	filter := model.ObservationFilter{
		Skip:  (page - 1) * perPage,
		Limit: perPage,
	}
	if start, ok := parseDate(q.Get(paramStart), h.location); ok {
		filter.Start = &start
	}
	if end, ok := parseDate(q.Get(paramEnd), h.location); ok {
		last := endOfDay(end)
		filter.End = &last
	}
	mine := q.Get("mine") == "1"
	if mine {
		if id := middleware.GetUserID(r); id > 0 {
			filter.ObserverID = &id
		}
	}

	items, err := h.api.ListObservations(r.Context(), filter)
	if err != nil {
		handleAPIError(w, r, h.renderer, err, RouteDashboard)
		return
	}

	renderPage(w, r, h.renderer, http.StatusOK, templateObservationList, render.TemplateData{
		Title: i18n.T(lang, "observation.list"),
		Data: ObservationList{
			Items:          items,
			Pagination:     BuildPagination(page, len(items), perPage, RouteObservations, q),
			PerPageOptions: PerPageOptions,
			Start:          q.Get(paramStart),
			End:            q.Get(paramEnd),
			Mine:           mine,
		},
	})
}

// NewForm handles GET /observations/new.
func (h *ObservationsHandler) NewForm(w http.ResponseWriter, r *http.Request) {
	in := model.ObservationInput{ObservationTime: h.clock.Now().Truncate(time.Minute)}
	form := newObservationForm(in, h.location)
	form.Action = RouteObservations
	h.renderForm(w, r, http.StatusOK, form, "")
}

// Create handles POST /observations.
func (h *ObservationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	lang := middleware.GetLang(r)
	if !parseFormOrRedirect(w, r, h.renderer, RouteObservationsNew) {
		return
	}

	in, errs := ParseObservationForm(r.PostForm, h.location, h.clock.Now())
	if len(errs) > 0 {
		form := resubmittedForm(r.PostForm, errs)
		form.Action = RouteObservations
		h.renderFormError(w, r, form, i18n.T(lang, "validation.fix_errors"))
		return
	}

	obs, err := h.api.CreateObservation(r.Context(), in)
	if err != nil {
		if errors.Is(err, apiclient.ErrInvalidRequest) {
			form := resubmittedForm(r.PostForm, nil)
			form.Action = RouteObservations
			h.renderFormError(w, r, form, rejectionMessage(lang, "observation.createFailed", err))
			return
		}
		handleAPIError(w, r, h.renderer, err, RouteObservationsNew)
		return
	}

	slog.Info("observation created", "observation_id", obs.ID, "user_id", middleware.GetUserID(r))
	flashSuccess(w, r, h.renderer, RouteObservations, i18n.T(lang, "observation.created"))
}

// EditForm handles GET /observations/{id}/edit.
func (h *ObservationsHandler) EditForm(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(r)
	if !ok {
		NotFound(h.renderer)(w, r)
		return
	}

	obs, err := h.api.GetObservation(r.Context(), id)
	if err != nil {
		handleAPIError(w, r, h.renderer, err, RouteObservations)
		return
	}

	form := newObservationForm(obs.Input(), h.location)
	form.ID = obs.ID
	form.Action = observationURL(obs.ID)
	if obs.ObserverName != nil {
		form.Observer = *obs.ObserverName
	}
	h.renderForm(w, r, http.StatusOK, form, "")
}

// Update handles POST /observations/{id}.
func (h *ObservationsHandler) Update(w http.ResponseWriter, r *http.Request) {
	lang := middleware.GetLang(r)
	id, ok := parseIDParam(r)
	if !ok {
		NotFound(h.renderer)(w, r)
		return
	}
	editURL := observationURL(id) + "/edit"
	if !parseFormOrRedirect(w, r, h.renderer, editURL) {
		return
	}

	in, errs := ParseObservationForm(r.PostForm, h.location, h.clock.Now())
	if len(errs) > 0 {
		form := resubmittedForm(r.PostForm, errs)
		form.ID = id
		form.Action = observationURL(id)
		h.renderFormError(w, r, form, i18n.T(lang, "validation.fix_errors"))
		return
	}

	if _, err := h.api.UpdateObservation(r.Context(), id, in); err != nil {
		if errors.Is(err, apiclient.ErrInvalidRequest) {
			form := resubmittedForm(r.PostForm, nil)
			form.ID = id
			form.Action = observationURL(id)
			h.renderFormError(w, r, form, rejectionMessage(lang, "observation.updateFailed", err))
			return
		}
		handleAPIError(w, r, h.renderer, err, editURL)
		return
	}

	slog.Info("observation updated", "observation_id", id, "user_id", middleware.GetUserID(r))
	flashSuccess(w, r, h.renderer, RouteObservations, i18n.T(lang, "observation.updated"))
}

// Delete handles POST /observations/{id}/delete.
func (h *ObservationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	lang := middleware.GetLang(r)
	id, ok := parseIDParam(r)
	if !ok {
		NotFound(h.renderer)(w, r)
		return
	}

	if err := h.api.DeleteObservation(r.Context(), id); err != nil {
		handleAPIError(w, r, h.renderer, err, RouteObservations)
		return
	}

	slog.Info("observation deleted", "observation_id", id, "user_id", middleware.GetUserID(r))
	flashSuccess(w, r, h.renderer, RouteObservations, i18n.T(lang, "observation.deleted"))
}

// renderForm renders the observation form; a non-empty message is shown as an error.
func (h *ObservationsHandler) renderForm(w http.ResponseWriter, r *http.Request, status int, form ObservationForm, message string) {
	lang := middleware.GetLang(r)
	if form.Observer == "" {
		form.Observer = middleware.GetUser(r).Name()
	}
	title := i18n.T(lang, "observation.create")
	if form.IsEdit() {
		title = i18n.T(lang, "observation.edit")
	}

	data := render.TemplateData{Title: title, Data: form}
	if message != "" {
		data.Flash, data.FlashType = message, render.FlashError
	}
	renderPage(w, r, h.renderer, status, templateObservationForm, data)
}

func (h *ObservationsHandler) renderFormError(w http.ResponseWriter, r *http.Request, form ObservationForm, message string) {
	h.renderForm(w, r, http.StatusUnprocessableEntity, form, message)
}

// rejectionMessage prefers the API's explanation over the generic message.
func rejectionMessage(lang, key string, err error) string {
	if detail := apiclient.DetailOf(err); detail != "" {
		return i18n.T(lang, "error.with_detail", detail)
	}
	return i18n.T(lang, key)
}

func observationURL(id int64) string {
	return fmt.Sprintf("%s/%d", RouteObservations, id)
}

// parseDate reads an <input type="date"> value as midnight in loc.
func parseDate(raw string, loc *time.Location) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(dateLayout, raw, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// endOfDay returns the last millisecond of t's day.
func endOfDay(t time.Time) time.Time {
	return t.AddDate(0, 0, 1).Add(-time.Millisecond)
}

// dateQuery encodes a date range for links.
func dateQuery(start, end string) url.Values {
	q := url.Values{}
	if start != "" {
		q.Set(paramStart, start)
	}
	if end != "" {
		q.Set(paramEnd, end)
	}
	return q
}
