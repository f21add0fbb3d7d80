// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package render executes the HTML page templates.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"

	"github.com/olegiv/wxdesk/internal/i18n"
	"github.com/olegiv/wxdesk/internal/middleware"
	"github.com/olegiv/wxdesk/internal/model"
	"github.com/olegiv/wxdesk/internal/session"
)

// Flash types.
const (
	FlashSuccess = "success"
	FlashError   = "error"
	FlashInfo    = "info"
)

// emptyValue is shown for readings that were not recorded.
const emptyValue = "—"

// Renderer handles template rendering with caching.
type Renderer struct {
	templates      map[string]*template.Template
	sessionManager *scs.SessionManager
	location       *time.Location
	version        string
	isDev          bool
}

// Config holds renderer configuration.
type Config struct {
	TemplatesFS    fs.FS
	SessionManager *scs.SessionManager
	// Location is the time zone observation times are shown in (default UTC).
	Location *time.Location
	Version  string
	IsDev    bool
}

// New creates a new Renderer with parsed templates.
func New(cfg Config) (*Renderer, error) {
	r := &Renderer{
		templates:      make(map[string]*template.Template),
		sessionManager: cfg.SessionManager,
		location:       cfg.Location,
		version:        cfg.Version,
		isDev:          cfg.IsDev,
	}
	if r.location == nil {
		r.location = time.UTC
	}

	if err := r.parseTemplates(cfg.TemplatesFS); err != nil {
		return nil, err
	}

	return r, nil
}

// pageDirs hold the page templates. A page is named "<dir>/<file>" without
// the .html extension, e.g. "observations/list".
var pageDirs = []string{"auth", "dashboard", "observations", "account", "admin", "errors"}

// parseTemplates parses every page together with the base layout and partials.
func (r *Renderer) parseTemplates(templatesFS fs.FS) error {
	partials, err := r.getTemplateFiles(templatesFS, "partials")
	if err != nil {
		return fmt.Errorf("getting partials: %w", err)
	}

	baseLayout := "layouts/base.html"

	for _, dir := range pageDirs {
		pages, err := r.getTemplateFiles(templatesFS, dir)
		if err != nil {
			return fmt.Errorf("getting %s templates: %w", dir, err)
		}

		for _, tmplPath := range pages {
			name := dir + "/" + strings.TrimSuffix(path.Base(tmplPath), ".html")

			files := []string{baseLayout}
			files = append(files, partials...)
			files = append(files, tmplPath)

			tmpl, err := template.New("").Funcs(r.templateFuncs()).ParseFS(templatesFS, files...)
			if err != nil {
				return fmt.Errorf("parsing template %s: %w", name, err)
			}

			r.templates[name] = tmpl
		}
	}

	if len(r.templates) == 0 {
		return fmt.Errorf("no page templates found")
	}
	return nil
}

// getTemplateFiles returns all .html files in a directory.
func (r *Renderer) getTemplateFiles(templatesFS fs.FS, dir string) ([]string, error) {
	var files []string

	entries, err := fs.ReadDir(templatesFS, dir)
	if err != nil {
		// A missing directory just contributes no templates.
		return files, nil
	}

	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".html") {
			files = append(files, path.Join(dir, entry.Name()))
		}
	}

	return files, nil
}

// Has reports whether a page template exists.
func (r *Renderer) Has(name string) bool {
	_, ok := r.templates[name]
	return ok
}

// templateFuncs returns custom template functions.
func (r *Renderer) templateFuncs() template.FuncMap {
	return template.FuncMap{
		"T": func(lang, key string, args ...any) string {
			return i18n.T(lang, key, args...)
		},
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return emptyValue
			}
			return t.In(r.location).Format("2006-01-02")
		},
		"formatDateTime": func(t time.Time) string {
			if t.IsZero() {
				return emptyValue
			}
			return t.In(r.location).Format("2006-01-02 15:04")
		},
		// inputDateTime formats for <input type="datetime-local">.
		"inputDateTime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.In(r.location).Format(DateTimeLocalLayout)
		},
		"num":  FormatFloat,
		"int":  FormatInt,
		"str":  FormatString,
		"fval": FloatInputValue,
		"ival": IntInputValue,
		"truncate": func(s string, length int) string {
			runes := []rune(s)
			if len(runes) <= length {
				return s
			}
			return string(runes[:length]) + "..."
		},
		"add": func(a, b int) int {
			return a + b
		},
		"sub": func(a, b int) int {
			return a - b
		},
		"seq": func(start, end int) []int {
			var result []int
			for i := start; i <= end; i++ {
				result = append(result, i)
			}
			return result
		},
		"hasPrefix": strings.HasPrefix,
	}
}

// DateTimeLocalLayout is the wire format of datetime-local form fields.
const DateTimeLocalLayout = "2006-01-02T15:04"

// FormatFloat shows an optional reading with one decimal and its unit.
func FormatFloat(v *float64, unit string) string {
	if v == nil {
		return emptyValue
	}
	return strconv.FormatFloat(*v, 'f', 1, 64) + unit
}

// FormatInt shows an optional integer reading.
func FormatInt(v *int) string {
	if v == nil {
		return emptyValue
	}
	return strconv.Itoa(*v)
}

// FormatString shows an optional text value.
func FormatString(v *string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return emptyValue
	}
	return *v
}

// FloatInputValue is the form field value of an optional number.
func FloatInputValue(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// IntInputValue is the form field value of an optional integer.
func IntInputValue(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

// TemplateData holds data passed to templates.
type TemplateData struct {
	Title       string
	Data        any
	Flash       string
	FlashType   string
	CurrentYear int
	Version     string

	Lang        string
	LangOptions []i18n.Option
	User        *model.User
	IsAdmin     bool
	CurrentPath string
}

// Render renders a page with status 200.
func (r *Renderer) Render(w http.ResponseWriter, req *http.Request, name string, data TemplateData) error {
	return r.RenderStatus(w, req, http.StatusOK, name, data)
}

// RenderStatus renders a page with the given status code.
func (r *Renderer) RenderStatus(w http.ResponseWriter, req *http.Request, status int, name string, data TemplateData) error {
	tmpl, ok := r.templates[name]
	if !ok {
		return fmt.Errorf("template %s not found", name)
	}

	data.CurrentYear = time.Now().In(r.location).Year()
	data.Version = r.version
	data.Lang = middleware.GetLang(req)
	data.LangOptions = i18n.Options()
	data.CurrentPath = req.URL.Path
	if data.User == nil {
		data.User = middleware.GetUser(req)
	}
	data.IsAdmin = data.User != nil && data.User.IsAdmin

	if r.sessionManager != nil && data.Flash == "" {
		if flash := r.sessionManager.PopString(req.Context(), session.BrowserKeyFlash); flash != "" {
			data.Flash = flash
			data.FlashType = r.sessionManager.PopString(req.Context(), session.BrowserKeyFlashType)
			if data.FlashType == "" {
				data.FlashType = FlashInfo
			}
		}
	}

	// Render to buffer first to catch errors
	buf := new(bytes.Buffer)
	if err := tmpl.ExecuteTemplate(buf, "base", data); err != nil {
		return fmt.Errorf("executing template %s: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Debug("writing response", "template", name, "error", err)
	}
	return nil
}

// SetFlash sets a flash message in the session.
func (r *Renderer) SetFlash(req *http.Request, message, flashType string) {
	if r.sessionManager != nil {
		r.sessionManager.Put(req.Context(), session.BrowserKeyFlash, message)
		r.sessionManager.Put(req.Context(), session.BrowserKeyFlashType, flashType)
	}
}

// Location returns the display time zone.
func (r *Renderer) Location() *time.Location {
	return r.location
}
