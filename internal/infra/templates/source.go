// Package templates resolves email templates through the override and
// locale hierarchy and exposes localized default subjects.
package templates

import (
	"embed"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"khm-membership/internal/domain"
	"khm-membership/internal/domain/ports/adapter"
)

//go:embed default
var defaultFS embed.FS

var _ adapter.TemplateSource = (*Source)(nil)

// Catalogue is the subject lookup (i18n.Translator).
type Catalogue interface {
	Lookup(key string) (string, bool)
}

type Source struct {
	overrideDir string
	locale      string
	embedded    fs.FS
	catalogue   Catalogue
}

// New builds a Source. overrideDir may be empty; catalogue may be nil.
func New(overrideDir, locale string, catalogue Catalogue) *Source {
	sub, _ := fs.Sub(defaultFS, "default")
	return &Source{overrideDir: overrideDir, locale: locale, embedded: sub, catalogue: catalogue}
}

// Load returns the first template found in:
//
//	<override>/<locale>/<key>.html
//	<override>/<key>.html
//	embedded <locale>/<key>.html
//	embedded <key>.html
func (s *Source) Load(key string) (string, error) {
	if !validKey(key) {
		return "", domain.ErrTemplateNotFound
	}
	name := key + ".html"

	if s.overrideDir != "" {
		for _, p := range s.candidates(name) {
			b, err := os.ReadFile(filepath.Join(s.overrideDir, filepath.FromSlash(p)))
			if err == nil {
				return string(b), nil
			}
			if !errors.Is(err, fs.ErrNotExist) {
				return "", err
			}
		}
	}
	for _, p := range s.candidates(name) {
		b, err := fs.ReadFile(s.embedded, p)
		if err == nil {
			return string(b), nil
		}
	}
	return "", domain.ErrTemplateNotFound
}

func (s *Source) candidates(name string) []string {
	if s.locale == "" {
		return []string{name}
	}
	return []string{path.Join(s.locale, name), name}
}

// Subject returns the catalogue entry "subject.<key>".
func (s *Source) Subject(key string) (string, bool) {
	if s.catalogue == nil {
		return "", false
	}
	return s.catalogue.Lookup("subject." + key)
}

// Keys lists the embedded template keys.
func (s *Source) Keys() []string {
	entries, err := fs.ReadDir(s.embedded, ".")
	if err != nil {
		return nil
	}
	var keys []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".html") {
			keys = append(keys, strings.TrimSuffix(e.Name(), ".html"))
		}
	}
	return keys
}

func validKey(key string) bool {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return false
	}
	return true
}
