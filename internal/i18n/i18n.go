// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package i18n provides the UI translations (English and Traditional Chinese).
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/text/language"
)

//go:embed locales
var localesFS embed.FS

// Message represents a single translatable message.
type Message struct {
	ID          string `json:"id"`
	Message     string `json:"message"`
	Translation string `json:"translation"`
}

// MessageFile represents the structure of a messages JSON file.
type MessageFile struct {
	Language string    `json:"language"`
	Messages []Message `json:"messages"`
}

// Catalog holds all translations for all supported languages.
type Catalog struct {
	mu           sync.RWMutex
	translations map[string]map[string]string // lang -> key -> translation
	matcher      language.Matcher
	supported    []language.Tag
	defaultLang  string
	fallback     string
	logger       *slog.Logger
}

var catalog *Catalog

// DefaultLanguage is used when nothing better matches.
const DefaultLanguage = "zh-TW"

// FallbackLanguage supplies messages missing from the requested language.
const FallbackLanguage = "en"

// SupportedLanguages lists the UI languages, default first.
var SupportedLanguages = []string{"zh-TW", "en"}

// nativeNames are shown in the language switcher.
var nativeNames = map[string]string{
	"en":    "English",
	"zh-TW": "繁體中文",
}

// Init loads all translations. It is safe to call more than once.
func Init(logger *slog.Logger) error {
	c := &Catalog{
		translations: make(map[string]map[string]string),
		defaultLang:  DefaultLanguage,
		fallback:     FallbackLanguage,
		logger:       logger,
	}

	tags := make([]language.Tag, 0, len(SupportedLanguages))
	for _, lang := range SupportedLanguages {
		tags = append(tags, language.MustParse(lang))
	}
	c.supported = tags
	c.matcher = language.NewMatcher(tags)

	for _, lang := range SupportedLanguages {
		if err := c.loadLanguage(lang); err != nil {
			return fmt.Errorf("failed to load language %s: %w", lang, err)
		}
	}

	catalog = c
	if logger != nil {
		logger.Info("i18n initialized", "languages", SupportedLanguages)
	}
	return nil
}

func (c *Catalog) loadLanguage(lang string) error {
	path := fmt.Sprintf("locales/%s/messages.json", lang)
	data, err := localesFS.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var msgFile MessageFile
	if err := json.Unmarshal(data, &msgFile); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.translations[lang] = make(map[string]string, len(msgFile.Messages))
	for _, msg := range msgFile.Messages {
		c.translations[lang][msg.ID] = msg.Translation
	}

	if c.logger != nil {
		c.logger.Debug("loaded translations", "language", lang, "count", len(msgFile.Messages))
	}
	return nil
}

// T translates key into lang, falling back to English and then
// to the key itself. Optional args are applied with fmt.Sprintf.
func T(lang, key string, args ...any) string {
	if catalog == nil {
		return key
	}

	catalog.mu.RLock()
	translation, ok := catalog.translations[lang][key]
	if !ok && lang != catalog.fallback {
		translation, ok = catalog.translations[catalog.fallback][key]
		if ok && catalog.logger != nil {
			catalog.logger.Debug("missing translation, using fallback", "key", key, "lang", lang)
		}
	}
	catalog.mu.RUnlock()

	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(translation, args...)
	}
	return translation
}

// MatchLanguage finds the best supported language for an Accept-Language
// header or a single language code.
func MatchLanguage(acceptLang string) string {
	if catalog == nil {
		return DefaultLanguage
	}

	tags, _, err := language.ParseAcceptLanguage(acceptLang)
	if err != nil || len(tags) == 0 {
		tag, err := language.Parse(acceptLang)
		if err != nil {
			return catalog.defaultLang
		}
		tags = []language.Tag{tag}
	}

	_, idx, conf := catalog.matcher.Match(tags...)
	if conf == language.No || idx < 0 || idx >= len(catalog.supported) {
		return catalog.defaultLang
	}
	return SupportedLanguages[idx]
}

// Normalize returns the canonical supported code for lang, or "" when unsupported.
func Normalize(lang string) string {
	for _, supported := range SupportedLanguages {
		if strings.EqualFold(supported, lang) {
			return supported
		}
	}
	return ""
}

// IsSupported checks if a language code is supported.
func IsSupported(lang string) bool {
	return Normalize(lang) != ""
}

// Option is a language switcher entry.
type Option struct {
	Code string
	Name string
}

// Options returns the language switcher entries in display order.
func Options() []Option {
	opts := make([]Option, 0, len(SupportedLanguages))
	for _, code := range SupportedLanguages {
		opts = append(opts, Option{Code: code, Name: nativeNames[code]})
	}
	return opts
}

// TranslationCount returns the number of translations loaded for a language.
func TranslationCount(lang string) int {
	if catalog == nil {
		return 0
	}
	catalog.mu.RLock()
	defer catalog.mu.RUnlock()
	return len(catalog.translations[lang])
}

// MissingKeys lists keys present in the fallback language but absent in lang.
func MissingKeys(lang string) []string {
	if catalog == nil {
		return nil
	}
	catalog.mu.RLock()
	defer catalog.mu.RUnlock()

	var missing []string
	for key := range catalog.translations[catalog.fallback] {
		if _, ok := catalog.translations[lang][key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}
