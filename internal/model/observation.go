// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"net/url"
	"strconv"
	"time"
)

// Readings holds the measured values of one observation.
// Every value is optional; nil is sent to the API as null.
type Readings struct {
	Temperature             *float64 `json:"temperature"`
	WetBulbTemperature      *float64 `json:"wet_bulb_temperature"`
	Precipitation           *float64 `json:"precipitation"`
	EvaporationPanTemp      *float64 `json:"evaporation_pan_temp"`
	CurrentEvaporationLevel *float64 `json:"current_evaporation_level"`
	CurrentWeatherCode      *string  `json:"current_weather_code"`
	TotalCloudAmount        *int     `json:"total_cloud_amount"`

	HighCloudTypeCode   *int `json:"high_cloud_type_code"`
	HighCloudAmount     *int `json:"high_cloud_amount"`
	MiddleCloudTypeCode *int `json:"middle_cloud_type_code"`
	MiddleCloudAmount   *int `json:"middle_cloud_amount"`
	LowCloudTypeCode    *int `json:"low_cloud_type_code"`
	LowCloudAmount      *int `json:"low_cloud_amount"`

	// Evaporation pan maintenance sections, each gated by its flag.
	HasCleanedEvaporationPan   bool     `json:"has_cleaned_evaporation_pan"`
	CleanedEvaporationLevel    *float64 `json:"cleaned_evaporation_level"`
	CleanedEvaporationTemp     *float64 `json:"cleaned_evaporation_temp"`
	HasAddedEvaporationWater   bool     `json:"has_added_evaporation_water"`
	AddedEvaporationLevel      *float64 `json:"added_evaporation_level"`
	AddedEvaporationTemp       *float64 `json:"added_evaporation_temp"`
	HasReducedEvaporationWater bool     `json:"has_reduced_evaporation_water"`
	ReducedEvaporationLevel    *float64 `json:"reduced_evaporation_level"`
	ReducedEvaporationTemp     *float64 `json:"reduced_evaporation_temp"`

	Notes *string `json:"notes"`
}

// ClearUnusedSections nils the values of maintenance sections whose flag is off,
// so a disabled section never sends stale values.
func (r *Readings) ClearUnusedSections() {
	if !r.HasCleanedEvaporationPan {
		r.CleanedEvaporationLevel, r.CleanedEvaporationTemp = nil, nil
	}
	if !r.HasAddedEvaporationWater {
		r.AddedEvaporationLevel, r.AddedEvaporationTemp = nil, nil
	}
	if !r.HasReducedEvaporationWater {
		r.ReducedEvaporationLevel, r.ReducedEvaporationTemp = nil, nil
	}
}

// ObservationInput is the payload for creating or updating an observation.
type ObservationInput struct {
	ObservationTime time.Time `json:"observation_time"`
	Readings
}

// Observation is a stored observation as returned by the API.
type Observation struct {
	ID              int64      `json:"id"`
	ObservationTime time.Time  `json:"observation_time"`
	ObserverID      int64      `json:"observer_id"`
	ObserverName    *string    `json:"observer_name,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
	Readings
}

// Input converts a stored observation back into an editable payload.
func (o Observation) Input() ObservationInput {
	return ObservationInput{ObservationTime: o.ObservationTime, Readings: o.Readings}
}

// ObservationSummary is the reduced record of the per-user listing.
type ObservationSummary struct {
	ID                 int64     `json:"id"`
	ObservationTime    time.Time `json:"observation_time"`
	Temperature        *float64  `json:"temperature,omitempty"`
	WetBulbTemperature *float64  `json:"wet_bulb_temperature,omitempty"`
	Precipitation      *float64  `json:"precipitation,omitempty"`
	ObserverID         int64     `json:"observer_id"`
}

// DashboardData summarizes the latest reading.
type DashboardData struct {
	ObservationTime         time.Time `json:"observation_time"`
	Temperature             *float64  `json:"temperature,omitempty"`
	WetBulbTemperature      *float64  `json:"wet_bulb_temperature,omitempty"`
	Precipitation24h        *float64  `json:"precipitation_24h,omitempty"`
	CurrentEvaporationLevel *float64  `json:"current_evaporation_level,omitempty"`
	EvaporationPanTemp      *float64  `json:"evaporation_pan_temp,omitempty"`
	ObserverName            *string   `json:"observer_name,omitempty"`
}

// ObservationFilter narrows an observation listing.
type ObservationFilter struct {
	Skip       int
	Limit      int
	Start      *time.Time
	End        *time.Time
	ObserverID *int64
}

// Values encodes the filter as API query parameters.
func (f ObservationFilter) Values() url.Values {
	v := url.Values{}
	if f.Skip > 0 {
		v.Set("skip", strconv.Itoa(f.Skip))
	}
	if f.Limit > 0 {
		v.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Start != nil {
		v.Set("start_date", f.Start.Format(time.RFC3339))
	}
	if f.End != nil {
		v.Set("end_date", f.End.Format(time.RFC3339))
	}
	if f.ObserverID != nil {
		v.Set("observer_id", strconv.FormatInt(*f.ObserverID, 10))
	}
	return v
}
