package i18n

import (
	"context"
	"testing"
	"testing/fstest"
)

func TestDefaultBundleCarriesLoginTexts(t *testing.T) {
	b, err := Default("id")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cases := map[string]string{
		"login.success_title":       "Login berhasil",
		"login.success_description": "Anda berhasil masuk ke sistem",
		"login.failure_title":       "Login gagal",
		"login.submit":              "Masuk ke Sistem",
		"login.submitting":          "Memproses...",
	}
	for key, want := range cases {
		if got := b.T("id", key); got != want {
			t.Fatalf("%s: want %q, got %q", key, want, got)
		}
	}
	if got := b.T("id", "home.welcome", "admin@doughstock.test"); got != "Selamat datang, admin@doughstock.test" {
		t.Fatalf("unexpected formatted message %q", got)
	}
}

func TestResolveHonorsQValues(t *testing.T) {
	b, err := Default("id")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := b.Resolve("id;q=0.8, en;q=0.9"); got != "en" {
		t.Fatalf("expected en, got %s", got)
	}
	if got := b.Resolve("en-GB,en;q=0.9"); got != "en" {
		t.Fatalf("expected en for regional tag, got %s", got)
	}
	if got := b.Resolve("fr-FR"); got != "id" {
		t.Fatalf("expected fallback, got %s", got)
	}
	if got := b.Resolve(""); got != "id" {
		t.Fatalf("expected fallback for empty header, got %s", got)
	}
}

func TestFallbackChain(t *testing.T) {
	fsys := fstest.MapFS{
		"id.yaml": {Data: []byte("a:\n  b: satu\n  c: dua\n")},
		"en.yaml": {Data: []byte("a:\n  b: one\n")},
	}
	b, err := Load(fsys, "id")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := b.T("en", "a.b"); got != "one" {
		t.Fatalf("expected en translation, got %q", got)
	}
	if got := b.T("en", "a.c"); got != "dua" {
		t.Fatalf("expected fallback translation, got %q", got)
	}
	if got := b.T("en", "a.missing"); got != "a.missing" {
		t.Fatalf("expected key echo, got %q", got)
	}
}

func TestLoadRequiresFallbackCatalog(t *testing.T) {
	fsys := fstest.MapFS{"en.yaml": {Data: []byte("a: b\n")}}
	if _, err := Load(fsys, "id"); err == nil {
		t.Fatalf("expected error when fallback catalog is missing")
	}
}

func TestLocalizerContext(t *testing.T) {
	b, err := Default("id")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ctx := WithLocalizer(context.Background(), NewLocalizer(b, "en"))
	l := FromContext(ctx)
	if l.Lang() != "en" || l.T("login.submit") != "Sign in" {
		t.Fatalf("unexpected localizer %q %q", l.Lang(), l.T("login.submit"))
	}
	if FromContext(context.Background()).T("login.submit") != "login.submit" {
		t.Fatalf("unbound localizer should echo keys")
	}
}
