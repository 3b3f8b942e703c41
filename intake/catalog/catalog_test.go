package catalog

import (
	"errors"
	"testing"
	"testing/fstest"
)

func TestDefaultHasSupportedLanguages(t *testing.T) {
	cat, err := Default()
	if err != nil {
		t.Fatalf("load embedded locales: %v", err)
	}
	langs := cat.Languages()
	if len(langs) != 2 || langs[0] != "kz" || langs[1] != "ru" {
		t.Fatalf("unexpected languages: %v", langs)
	}
	for _, lang := range langs {
		for _, key := range requiredKeys {
			if _, err := cat.Lookup(lang, key); err != nil {
				t.Fatalf("lookup %s/%s: %v", lang, key, err)
			}
		}
	}
	iso, err := cat.ISO("kz")
	if err != nil {
		t.Fatalf("iso: %v", err)
	}
	if iso != "kk" {
		t.Fatalf("kz iso = %q, want kk", iso)
	}
}

func TestMenuEntriesOrder(t *testing.T) {
	cat, err := Default()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	menu, err := cat.MenuEntries("ru")
	if err != nil {
		t.Fatalf("menu: %v", err)
	}
	if len(menu) != 3 {
		t.Fatalf("menu size = %d", len(menu))
	}
	if menu[0] != "📝 Записаться" {
		t.Fatalf("menu[0] = %q", menu[0])
	}
	entry, ok := cat.MenuEntryFor(menu[2])
	if !ok || entry != MenuFAQ {
		t.Fatalf("MenuEntryFor(%q) = %v, %v", menu[2], entry, ok)
	}
}

func TestMenuEntryForMatchesEveryLanguage(t *testing.T) {
	cat, err := Default()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, lang := range cat.Languages() {
		menu, err := cat.MenuEntries(lang)
		if err != nil {
			t.Fatalf("menu %s: %v", lang, err)
		}
		for i, label := range menu {
			entry, ok := cat.MenuEntryFor("  " + label + " ")
			if !ok || entry != MenuEntry(i) {
				t.Fatalf("%s: label %q resolved to %v, %v", lang, label, entry, ok)
			}
		}
	}
	if _, ok := cat.MenuEntryFor("🙂"); ok {
		t.Fatal("emoji must not resolve to a menu entry")
	}
}

func TestLookupUnknownLanguage(t *testing.T) {
	cat, err := Default()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := cat.Lookup("en", KeyStart); !errors.Is(err, ErrUnknownLanguage) {
		t.Fatalf("expected ErrUnknownLanguage, got %v", err)
	}
	if _, err := cat.MenuEntries(""); !errors.Is(err, ErrUnknownLanguage) {
		t.Fatalf("expected ErrUnknownLanguage for empty tag, got %v", err)
	}
	if _, err := cat.Lookup("ru", "missing"); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("expected ErrUnknownKey, got %v", err)
	}
}

func TestLoadRejectsIncompleteLocale(t *testing.T) {
	fsys := fstest.MapFS{
		"locales/en.yaml": {Data: []byte(`language: "en"
iso: "en"
menu: ["Register", "Courses", "FAQ"]
messages:
  start: "hi"
`)},
	}
	if _, err := Load(fsys); err == nil {
		t.Fatal("expected error for missing messages")
	}
}

func TestLoadRejectsShortMenu(t *testing.T) {
	fsys := fstest.MapFS{
		"locales/en.yaml": {Data: []byte(`language: "en"
iso: "en"
menu: ["Register"]
`)},
	}
	if _, err := Load(fsys); err == nil {
		t.Fatal("expected error for short menu")
	}
}

func TestLoadRejectsUnderscoreLanguage(t *testing.T) {
	fsys := fstest.MapFS{
		"locales/pt.yaml": {Data: []byte(`language: "pt_br"
iso: "pt"
menu: ["a", "b", "c"]
`)},
	}
	if _, err := Load(fsys); err == nil {
		t.Fatal("expected error for underscore in language tag")
	}
}

func TestLoadEmptyFS(t *testing.T) {
	if _, err := Load(fstest.MapFS{}); err == nil {
		t.Fatal("expected error for empty filesystem")
	}
}
