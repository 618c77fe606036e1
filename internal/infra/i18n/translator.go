package i18n

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"

	"gopkg.in/yaml.v3"
)

//go:embed locales
var LocalesFS embed.FS

// DefaultLocale is used when a requested locale has no catalogue.
const DefaultLocale = "en_US"

// Translator resolves message keys against one locale, falling back to the default locale.
type Translator struct {
	locale       string
	translations map[string]string
	fallback     map[string]string
}

// NewTranslator loads locales/<langCode>.yaml from fsys. A missing locale
// file is not an error as long as the default locale exists.
func NewTranslator(fsys fs.FS, langCode string) (*Translator, error) {
	fallback, err := readCatalogue(fsys, DefaultLocale)
	if err != nil {
		return nil, err
	}
	t := &Translator{locale: DefaultLocale, translations: fallback, fallback: fallback}
	if langCode == "" || langCode == DefaultLocale {
		return t, nil
	}
	own, err := readCatalogue(fsys, langCode)
	if errors.Is(err, fs.ErrNotExist) {
		return t, nil
	}
	if err != nil {
		return nil, err
	}
	t.locale, t.translations = langCode, own
	return t, nil
}

func readCatalogue(fsys fs.FS, langCode string) (map[string]string, error) {
	filePath := path.Join("locales", fmt.Sprintf("%s.yaml", langCode))
	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read translation file %s: %w", filePath, err)
	}
	return parseCatalogue(data)
}

func parseCatalogue(data []byte) (map[string]string, error) {
	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("failed to parse translation file: %w", err)
	}
	return translations, nil
}

// newTranslatorFromBytes builds a single-catalogue translator (tests).
func newTranslatorFromBytes(data []byte) (*Translator, error) {
	tr, err := parseCatalogue(data)
	if err != nil {
		return nil, err
	}
	return &Translator{locale: DefaultLocale, translations: tr, fallback: tr}, nil
}

func (t *Translator) Locale() string { return t.locale }

// Lookup returns the raw message for key.
func (t *Translator) Lookup(key string) (string, bool) {
	if v, ok := t.translations[key]; ok {
		return v, true
	}
	v, ok := t.fallback[key]
	return v, ok
}

// T formats the message for key with args; unknown keys come back as the key itself.
func (t *Translator) T(key string, args ...interface{}) string {
	format, ok := t.Lookup(key)
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}
