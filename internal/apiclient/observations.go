// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package apiclient

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/olegiv/wxdesk/internal/model"
)

// ListObservations returns one page of observations, newest first.
func (c *Client) ListObservations(ctx context.Context, f model.ObservationFilter) ([]model.Observation, error) {
	var obs []model.Observation
	if err := c.do(ctx, "observations.list", http.MethodGet, "/observations/", f.Values(), nil, &obs); err != nil {
		return nil, err
	}
	return obs, nil
}

// GetObservation returns one observation.
func (c *Client) GetObservation(ctx context.Context, id int64) (*model.Observation, error) {
	var o model.Observation
	if err := c.do(ctx, "observations.get", http.MethodGet, fmt.Sprintf("/observations/%d", id), nil, nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// CreateObservation stores a new observation.
func (c *Client) CreateObservation(ctx context.Context, in model.ObservationInput) (*model.Observation, error) {
	var o model.Observation
	if err := c.do(ctx, "observations.create", http.MethodPost, "/observations/", nil, in, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// UpdateObservation replaces an observation's values.
func (c *Client) UpdateObservation(ctx context.Context, id int64, in model.ObservationInput) (*model.Observation, error) {
	var o model.Observation
	if err := c.do(ctx, "observations.update", http.MethodPut, fmt.Sprintf("/observations/%d", id), nil, in, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// DeleteObservation removes an observation.
func (c *Client) DeleteObservation(ctx context.Context, id int64) error {
	return c.do(ctx, "observations.delete", http.MethodDelete, fmt.Sprintf("/observations/%d", id), nil, nil, nil)
}

// Dashboard returns the latest reading. ErrNotFound means no observations exist yet.
func (c *Client) Dashboard(ctx context.Context) (*model.DashboardData, error) {
	var d model.DashboardData
	if err := c.do(ctx, "observations.dashboard", http.MethodGet, "/observations/dashboard", nil, nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// UserObservations returns one page of a single observer's records.
func (c *Client) UserObservations(ctx context.Context, userID int64, skip, limit int) ([]model.ObservationSummary, error) {
	q := model.ObservationFilter{Skip: skip, Limit: limit}.Values()
	var obs []model.ObservationSummary
	if err := c.do(ctx, "observations.user", http.MethodGet, fmt.Sprintf("/observations/user/%d", userID), q, nil, &obs); err != nil {
		return nil, err
	}
	return obs, nil
}

// Export is a streamed CSV export. The caller must close Body.
type Export struct {
	Body        io.ReadCloser
	Filename    string
	ContentType string
}

// DefaultExportFilename is used when the API sends no attachment filename.
const DefaultExportFilename = "weather_observations.csv"

// ExportCSV streams the CSV export for the optional date range.
func (c *Client) ExportCSV(ctx context.Context, start, end *time.Time) (*Export, error) {
	q := url.Values{}
	if start != nil {
		q.Set("start_date", start.Format(time.RFC3339))
	}
	if end != nil {
		q.Set("end_date", end.Format(time.RFC3339))
	}

	resp, err := c.send(ctx, "observations.export", http.MethodGet, "/observations/export/csv", q, nil)
	if err != nil {
		return nil, err
	}

	exp := &Export{
		Body:        resp.Body,
		Filename:    DefaultExportFilename,
		ContentType: resp.Header.Get("Content-Type"),
	}
	if exp.ContentType == "" {
		exp.ContentType = "text/csv; charset=utf-8"
	}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		exp.Filename = params["filename"]
	}
	return exp, nil
}
