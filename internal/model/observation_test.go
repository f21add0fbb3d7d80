// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func f64(v float64) *float64 { return &v }

func TestClearUnusedSections(t *testing.T) {
	r := Readings{
		HasCleanedEvaporationPan: true,
		CleanedEvaporationLevel:  f64(12.5),
		CleanedEvaporationTemp:   f64(20),
		AddedEvaporationLevel:    f64(30),
		AddedEvaporationTemp:     f64(21),
		ReducedEvaporationLevel:  f64(10),
	}
	r.ClearUnusedSections()

	if r.CleanedEvaporationLevel == nil || r.CleanedEvaporationTemp == nil {
		t.Error("enabled section was cleared")
	}
	if r.AddedEvaporationLevel != nil || r.AddedEvaporationTemp != nil {
		t.Error("disabled added-water section kept values")
	}
	if r.ReducedEvaporationLevel != nil {
		t.Error("disabled reduced-water section kept values")
	}
}

func TestObservationInputSendsNulls(t *testing.T) {
	in := ObservationInput{
		ObservationTime: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
		Readings:        Readings{Temperature: f64(23.4)},
	}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(b)
	for _, want := range []string{`"temperature":23.4`, `"precipitation":null`, `"observation_time":"2025-06-01T08:00:00Z"`} {
		if !strings.Contains(s, want) {
			t.Errorf("payload %s missing %s", s, want)
		}
	}
}

func TestObservationFilterValues(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	observer := int64(4)
	v := ObservationFilter{Skip: 50, Limit: 25, Start: &start, ObserverID: &observer}.Values()

	if v.Get("skip") != "50" || v.Get("limit") != "25" {
		t.Errorf("paging = %v", v)
	}
	if v.Get("start_date") != "2025-01-01T00:00:00Z" {
		t.Errorf("start_date = %q", v.Get("start_date"))
	}
	if v.Has("end_date") {
		t.Error("end_date should be omitted")
	}
	if v.Get("observer_id") != "4" {
		t.Errorf("observer_id = %q", v.Get("observer_id"))
	}

	if got := (ObservationFilter{}).Values().Encode(); got != "" {
		t.Errorf("empty filter encodes to %q", got)
	}
}
