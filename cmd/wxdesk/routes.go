// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/olegiv/wxdesk/internal/apiclient"
	"github.com/olegiv/wxdesk/internal/config"
	"github.com/olegiv/wxdesk/internal/handler"
	"github.com/olegiv/wxdesk/internal/metrics"
	"github.com/olegiv/wxdesk/internal/middleware"
	"github.com/olegiv/wxdesk/internal/render"
	"github.com/olegiv/wxdesk/internal/session"
	"github.com/olegiv/wxdesk/web"
)

// staticMaxAge is the browser cache lifetime of embedded assets. Asset URLs
// carry the version, so a release busts the cache.
const staticMaxAge = 365 * 24 * time.Hour

// routerDeps are the collaborators the HTTP routes are built from.
type routerDeps struct {
	Config          *config.Config
	API             *apiclient.Client
	Sessions        *session.Store
	BrowserSessions *scs.SessionManager
	Renderer        *render.Renderer
	Provider        handler.IdentityProvider // nil when Google sign-in is off
	LoginProtection *middleware.LoginProtection
	Metrics         *metrics.Metrics
	Gatherer        prometheus.Gatherer
	Checks          map[string]handler.Pinger
	Version         string
	Clock           clockwork.Clock
}

// newRouter builds the application's HTTP handler.
func newRouter(d routerDeps) (http.Handler, error) {
	cfg := d.Config
	loc := cfg.Location()

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(chimw.GetHead)
	r.Use(chimw.RedirectSlashes)
	r.Use(middleware.SecurityHeaders(middleware.DefaultSecurityHeadersConfig(cfg.IsDevelopment())))
	r.Use(middleware.RequestPath)

	requestTimeout := chimw.Timeout(cfg.RequestTimeout)

	staticFS, err := fs.Sub(web.Static, "static/dist")
	if err != nil {
		return nil, fmt.Errorf("getting static fs: %w", err)
	}

	// Health checks and metrics sit outside the browser session and the guard.
	healthHandler := handler.NewHealthHandler(d.Sessions, d.Checks, d.Version)
	r.Group(func(r chi.Router) {
		r.Use(requestTimeout)

		r.Get(handler.RouteHealth, healthHandler.Liveness)
		r.Get(handler.RouteHealthReady, healthHandler.Readiness)
		if cfg.MetricsEnabled && d.Gatherer != nil {
			r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
		}
		r.Handle("/static/dist/*", middleware.StaticCache(staticMaxAge)(
			http.StripPrefix("/static/dist/", http.FileServer(http.FS(staticFS)))))
	})

	authHandler := handler.NewAuthHandler(d.Sessions, d.Provider, d.Renderer, d.BrowserSessions, d.LoginProtection)
	dashboardHandler := handler.NewDashboardHandler(d.API, d.Renderer)
	observationsHandler := handler.NewObservationsHandler(d.API, d.Renderer, handler.ObservationsConfig{
		PageSize: cfg.PageSize,
		Location: loc,
		Clock:    d.Clock,
	})
	exportHandler := handler.NewExportHandler(d.API, d.Renderer, loc, d.Clock)
	settingsHandler := handler.NewSettingsHandler(d.API, d.Sessions, d.Renderer)
	adminHandler := handler.NewAdminHandler(d.API, d.Sessions, d.Renderer)
	notFound := handler.NotFound(d.Renderer)

	guardConfig := middleware.GuardConfig{
		Sessions:    d.Sessions,
		Wait:        handler.WaitPage(d.Renderer),
		LoginPath:   handler.RouteLogin,
		DefaultPath: handler.RouteDashboard,
		Metrics:     d.Metrics,
	}

	csrfConfig := middleware.DefaultCSRFConfig([]byte(cfg.SessionSecret), cfg.IsDevelopment(), cfg.ServerAddr())

	r.Group(func(r chi.Router) {
		r.Use(d.BrowserSessions.LoadAndSave)
		r.Use(middleware.Language)
		// The OAuth callback is a cross-site navigation guarded by its state.
		r.Use(middleware.SkipCSRF(handler.RouteGoogleCallback))
		r.Use(middleware.CSRF(csrfConfig))

		// Public views
		r.Group(func(r chi.Router) {
			r.Use(requestTimeout)
			r.Use(middleware.Public(guardConfig))

			r.Get(handler.RouteRoot, handler.Home)
			r.Get(handler.RouteLogin, authHandler.LoginForm)
			r.With(d.LoginProtection.Middleware()).Post(handler.RouteLoginAdmin, authHandler.AdminLogin)
			r.Get(handler.RouteGoogleStart, authHandler.GoogleStart)
			r.Get(handler.RouteGoogleCallback, authHandler.GoogleCallback)
			r.Post(handler.RouteLogout, authHandler.Logout)
			r.Post(handler.RouteLanguage, authHandler.SetLanguage)
		})

		// Signed-in views
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(guardConfig))

			// The export streams the whole CSV and gets its own deadline.
			r.With(chimw.Timeout(cfg.ExportTimeout)).Get(handler.RouteExportCSV, exportHandler.ExportCSV)

			r.Group(func(r chi.Router) {
				r.Use(requestTimeout)

				r.Get(handler.RouteDashboard, dashboardHandler.Dashboard)

				r.Get(handler.RouteObservations, observationsHandler.List)
				r.Post(handler.RouteObservations, observationsHandler.Create)
				r.Get(handler.RouteObservationsNew, observationsHandler.NewForm)
				r.Get(handler.RouteObservationsEdit, observationsHandler.EditForm)
				r.Post(handler.RouteObservationsID, observationsHandler.Update)
				r.Post(handler.RouteObservationsDelete, observationsHandler.Delete)

				r.Get(handler.RouteDownload, exportHandler.Download)

				r.Get(handler.RouteSettings, settingsHandler.Show)
				r.Post(handler.RouteSettings, settingsHandler.Update)
			})
		})

		// Administrator views
		r.Group(func(r chi.Router) {
			r.Use(requestTimeout)
			r.Use(middleware.RequireAdmin(guardConfig))

			r.Get(handler.RouteAdmin, adminHandler.Users)
			r.Post(handler.RouteAdminUserName, adminHandler.UpdateName)
			r.Post(handler.RouteAdminUserAction, adminHandler.UserAction)
		})
	})

	r.NotFound(chi.Chain(
		requestTimeout,
		d.BrowserSessions.LoadAndSave,
		middleware.Language,
		middleware.Public(guardConfig),
	).HandlerFunc(notFound).ServeHTTP)

	return r, nil
}
