//go:build !integration

package templates

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"khm-membership/internal/domain"
)

type mapCatalogue map[string]string

func (m mapCatalogue) Lookup(k string) (string, bool) {
	v, ok := m[k]
	return v, ok
}

func TestSource_Hierarchy(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "de_DE"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "welcome.html"), []byte("override"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "de_DE", "welcome.html"), []byte("lokal"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		locale string
		key    string
		want   string
	}{
		{"locale override wins", "de_DE", "welcome", "lokal"},
		{"root override", "en_US", "welcome", "override"},
		{"embedded default", "en_US", "invoice", "We received your payment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(dir, tt.locale, nil)
			got, err := s.Load(tt.key)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("got %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestSource_NotFound(t *testing.T) {
	s := New("", "en_US", nil)
	for _, key := range []string{"nope", "../etc/passwd", ""} {
		if _, err := s.Load(key); !errors.Is(err, domain.ErrTemplateNotFound) {
			t.Errorf("key %q: expected ErrTemplateNotFound, got %v", key, err)
		}
	}
}

func TestSource_Subject(t *testing.T) {
	s := New("", "en_US", mapCatalogue{"subject.test": "Test email from %s"})
	if got, ok := s.Subject("test"); !ok || got != "Test email from %s" {
		t.Fatalf("got %q %v", got, ok)
	}
	if _, ok := s.Subject("missing"); ok {
		t.Fatal("expected no subject")
	}
	if _, ok := New("", "", nil).Subject("test"); ok {
		t.Fatal("nil catalogue must report no subject")
	}
}

func TestSource_KeysIncludeBillingTemplates(t *testing.T) {
	keys := strings.Join(New("", "", nil).Keys(), ",")
	for _, k := range []string{"invoice", "renewal_admin", "billing_failure", "charge_refunded_admin", "membership_expiring"} {
		if !strings.Contains(keys, k) {
			t.Errorf("missing embedded template %s", k)
		}
	}
}
