// Package i18n holds the user-facing messages of keepass-merge. Messages
// are embedded YAML catalogues loaded with go-i18n; unknown IDs fall back to
// the ID itself.
package i18n

import (
	"embed"
	"io/fs"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFS embed.FS

var (
	mu        sync.RWMutex
	bundle    *i18n.Bundle
	localizer *i18n.Localizer
	current   string
)

// Init loads the catalogues and selects lang, falling back to English
func Init(lang string) {
	b := i18n.NewBundle(language.English)
	b.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

	files, _ := fs.ReadDir(localeFS, "locales")
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		data, _ := localeFS.ReadFile("locales/" + f.Name())
		b.ParseMessageFileBytes(data, f.Name())
	}

	mu.Lock()
	defer mu.Unlock()
	bundle = b
	localizer = i18n.NewLocalizer(b, lang, language.English.String())
	current = lang
}

// Lang returns the language passed to Init
func Lang() string {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Available lists the languages with a catalogue
func Available() []string {
	ensure()
	mu.RLock()
	defer mu.RUnlock()
	var langs []string
	for _, tag := range bundle.LanguageTags() {
		langs = append(langs, tag.String())
	}
	return langs
}

// T translates a message. data fills {{.Name}} placeholders.
func T(messageID string, data ...map[string]any) string {
	ensure()
	cfg := &i18n.LocalizeConfig{MessageID: messageID}
	if len(data) > 0 {
		cfg.TemplateData = data[0]
	}

	mu.RLock()
	defer mu.RUnlock()
	msg, err := localizer.Localize(cfg)
	if err != nil {
		return messageID
	}
	return msg
}

func ensure() {
	mu.RLock()
	ready := localizer != nil
	mu.RUnlock()
	if !ready {
		Init("en")
	}
}
