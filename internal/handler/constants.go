// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

// Route pattern constants for chi router registration.
const (
	// RouteRoot is the root path.
	RouteRoot = "/"
	// RouteSuffixNew is the suffix for "new" routes.
	RouteSuffixNew = "/new"
	// RouteParamID is the ID parameter pattern.
	RouteParamID = "/{id}"

	// RouteLogin is the login route.
	RouteLogin = "/login"
	// RouteLoginAdmin is the administrator login form target.
	RouteLoginAdmin = "/login/admin"
	// RouteLogout is the logout route.
	RouteLogout = "/logout"
	// RouteGoogleStart starts the Google sign-in.
	RouteGoogleStart = "/auth/google"
	// RouteGoogleCallback is where Google returns to.
	RouteGoogleCallback = "/auth/callback"
	// RouteLanguage switches the UI language.
	RouteLanguage = "/language"

	// RouteDashboard is the default page after sign-in.
	RouteDashboard = "/dashboard"
	// RouteObservations is the observation list.
	RouteObservations = "/observations"
	// RouteDownload is the CSV download page.
	RouteDownload = "/download"
	// RouteExportCSV streams the CSV export.
	RouteExportCSV = RouteObservations + "/export.csv"
	// RouteSettings is the personal settings page.
	RouteSettings = "/settings"
	// RouteAdmin is the user administration page.
	RouteAdmin = "/admin"

	// RouteObservationsNew is the data-entry form.
	RouteObservationsNew = RouteObservations + RouteSuffixNew
	// RouteObservationsID is the observation ID route pattern.
	RouteObservationsID = RouteObservations + RouteParamID
	// RouteObservationsEdit is the edit form pattern.
	RouteObservationsEdit = RouteObservationsID + "/edit"
	// RouteObservationsDelete is the delete action pattern.
	RouteObservationsDelete = RouteObservationsID + "/delete"

	// RouteAdminUserAction is the admin account action pattern.
	RouteAdminUserAction = RouteAdmin + "/users" + RouteParamID + "/{action}"
	// RouteAdminUserName updates a user's display name.
	RouteAdminUserName = RouteAdmin + "/users" + RouteParamID + "/name"

	// RouteHealth is the liveness probe.
	RouteHealth = "/health"
	// RouteHealthReady is the readiness probe.
	RouteHealthReady = "/health/ready"
)

// Template names.
const (
	templateLogin           = "auth/login"
	templateWait            = "auth/wait"
	templateDashboard       = "dashboard/index"
	templateObservationList = "observations/list"
	templateObservationForm = "observations/form"
	templateDownload        = "observations/download"
	templateSettings        = "account/settings"
	templateAdminUsers      = "admin/users"
	templateError           = "errors/error"
	templateNotFound        = "errors/not_found"
)

// Query parameters.
const (
	paramPage    = "page"
	paramPerPage = "per_page"
	paramStart   = "start"
	paramEnd     = "end"
)

// dateLayout is the wire format of <input type="date"> values.
const dateLayout = "2006-01-02"
