// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/olegiv/wxdesk/internal/apiclient"
	"github.com/olegiv/wxdesk/internal/i18n"
	"github.com/olegiv/wxdesk/internal/middleware"
	"github.com/olegiv/wxdesk/internal/render"
	"github.com/olegiv/wxdesk/internal/util"
)

// DownloadPage is the data of the download template.
type DownloadPage struct {
	Start string
	End   string
	// ExportURL is the export link for the preselected range.
	ExportURL string
}

// ExportHandler serves the CSV download page and streams the export.
type ExportHandler struct {
	api      *apiclient.Client
	renderer *render.Renderer
	location *time.Location
	clock    clockwork.Clock
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(api *apiclient.Client, renderer *render.Renderer, loc *time.Location, clock clockwork.Clock) *ExportHandler {
	if loc == nil {
		loc = time.UTC
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ExportHandler{api: api, renderer: renderer, location: loc, clock: clock}
}

// Download handles GET /download. The range defaults to the current month.
func (h *ExportHandler) Download(w http.ResponseWriter, r *http.Request) {
	lang := middleware.GetLang(r)

	now := h.clock.Now().In(h.location)
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, h.location)
	start, end := firstOfMonth.Format(dateLayout), now.Format(dateLayout)

	renderPage(w, r, h.renderer, http.StatusOK, templateDownload, render.TemplateData{
		Title: i18n.T(lang, "download.title"),
		Data: DownloadPage{
			Start:     start,
			End:       end,
			ExportURL: RouteExportCSV + "?" + dateQuery(start, end).Encode(),
		},
	})
}

// ExportCSV handles GET /observations/export.csv by streaming the API's
// export to the browser as an attachment.
func (h *ExportHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	lang := middleware.GetLang(r)
	q := r.URL.Query()

	var start, end *time.Time
	if raw := q.Get(paramStart); raw != "" {
		t, ok := parseDate(raw, h.location)
		if !ok {
			flashError(w, r, h.renderer, RouteDownload, i18n.T(lang, "validation.date"))
			return
		}
		start = &t
	}
	if raw := q.Get(paramEnd); raw != "" {
		t, ok := parseDate(raw, h.location)
		if !ok {
			flashError(w, r, h.renderer, RouteDownload, i18n.T(lang, "validation.date"))
			return
		}
		last := endOfDay(t)
		end = &last
	}
	if start != nil && end != nil && end.Before(*start) {
		flashError(w, r, h.renderer, RouteDownload, i18n.T(lang, "download.invalid_range"))
		return
	}

	exp, err := h.api.ExportCSV(r.Context(), start, end)
	if err != nil {
		handleAPIError(w, r, h.renderer, err, RouteDownload)
		return
	}
	defer func() { _ = exp.Body.Close() }()

	filename := util.SanitizeFilename(exp.Filename, apiclient.DefaultExportFilename)

	w.Header().Set("Content-Type", exp.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	n, err := io.Copy(w, exp.Body)
	if err != nil {
		// Headers are gone; all that is left is to log.
		slog.Warn("streaming export interrupted", "bytes", n, "error", err)
		return
	}
	slog.Info("observations exported", "bytes", n, "user_id", middleware.GetUserID(r))
}
