// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"context"
	"net/http"

	"github.com/olegiv/wxdesk/internal/i18n"
)

// ContextKeyLanguage holds the UI language code of the request.
const ContextKeyLanguage ContextKey = "language"

// LanguageCookieName is the cookie name for language preference.
const LanguageCookieName = "wxdesk_lang"

// Language creates middleware that detects and sets the UI language.
// Priority order:
// 1. Query parameter ?lang=XX (explicit switch, updates the cookie)
// 2. Cookie preference
// 3. Accept-Language header
// 4. Default language
func Language(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lang := detectLanguage(w, r)
		ctx := context.WithValue(r.Context(), ContextKeyLanguage, lang)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func detectLanguage(w http.ResponseWriter, r *http.Request) string {
	if q := i18n.Normalize(r.URL.Query().Get("lang")); q != "" {
		SetLanguageCookie(w, q)
		return q
	}

	if cookie, err := r.Cookie(LanguageCookieName); err == nil {
		if lang := i18n.Normalize(cookie.Value); lang != "" {
			return lang
		}
	}

	if accept := r.Header.Get("Accept-Language"); accept != "" {
		return i18n.MatchLanguage(accept)
	}

	return i18n.DefaultLanguage
}

// GetLang returns the UI language of the request, or the default language
// when the Language middleware did not run.
func GetLang(r *http.Request) string {
	if lang, ok := r.Context().Value(ContextKeyLanguage).(string); ok && lang != "" {
		return lang
	}
	return i18n.DefaultLanguage
}

// SetLanguageCookie sets the language preference cookie.
func SetLanguageCookie(w http.ResponseWriter, langCode string) {
	http.SetCookie(w, &http.Cookie{
		Name:     LanguageCookieName,
		Value:    langCode,
		Path:     "/",
		MaxAge:   365 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
