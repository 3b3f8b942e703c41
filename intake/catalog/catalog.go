// Package catalog holds the localized prompt and menu strings of the intake bot.
// A Catalog is read-only once loaded and safe for concurrent use.
package catalog

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownLanguage is returned when a language tag was never registered.
	ErrUnknownLanguage = errors.New("catalog: unknown language")
	// ErrUnknownKey is returned when a message key is missing from a locale.
	ErrUnknownKey = errors.New("catalog: unknown message key")
)

// Message keys every locale must define.
const (
	KeyLanguagePrompt  = "language_prompt"
	KeyUnknownLanguage = "unknown_language"
	KeyStart           = "start"
	KeyAskName         = "ask_name"
	KeyAskAge          = "ask_age"
	KeyAskCourse       = "ask_course"
	KeyAskPhone        = "ask_phone"
	KeyDone            = "done"
	KeyFAQ             = "faq"
	KeyChooseMenu      = "choose_menu"
	KeyChooseCourse    = "choose_course"
	KeyCoursesHeader   = "courses_header"
	KeyCommandStart    = "command_start"
)

var requiredKeys = []string{
	KeyLanguagePrompt,
	KeyUnknownLanguage,
	KeyStart,
	KeyAskName,
	KeyAskAge,
	KeyAskCourse,
	KeyAskPhone,
	KeyDone,
	KeyFAQ,
	KeyChooseMenu,
	KeyChooseCourse,
	KeyCoursesHeader,
	KeyCommandStart,
}

// MenuEntry identifies a main menu item independently of its localized label.
type MenuEntry int

const (
	// MenuRegister starts the registration dialogue.
	MenuRegister MenuEntry = iota
	// MenuCourses lists the available courses.
	MenuCourses
	// MenuFAQ shows the frequently asked questions.
	MenuFAQ

	menuSize = 3
)

// String returns a stable name for logs.
func (e MenuEntry) String() string {
	switch e {
	case MenuRegister:
		return "register"
	case MenuCourses:
		return "courses"
	case MenuFAQ:
		return "faq"
	}
	return fmt.Sprintf("menu(%d)", int(e))
}

type localeFile struct {
	Language string            `yaml:"language"`
	ISO      string            `yaml:"iso"`
	Label    string            `yaml:"label"`
	Menu     []string          `yaml:"menu"`
	Messages map[string]string `yaml:"messages"`
}

type locale struct {
	iso      string
	label    string
	menu     [menuSize]string
	messages map[string]string
}

// Catalog maps language tags to their localized strings.
type Catalog struct {
	locales map[string]*locale
	menu    map[string]MenuEntry
}

//go:embed locales/*.yaml
var embeddedLocales embed.FS

// Default loads the locales embedded in the binary.
func Default() (*Catalog, error) {
	return Load(embeddedLocales)
}

// Load reads every locales/*.yaml file from fsys.
func Load(fsys fs.FS) (*Catalog, error) {
	paths, err := fs.Glob(fsys, "locales/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob locales: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("catalog: no locale files found")
	}
	sort.Strings(paths)

	c := &Catalog{
		locales: make(map[string]*locale, len(paths)),
		menu:    make(map[string]MenuEntry),
	}
	for _, path := range paths {
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("read locale %s: %w", path, err)
		}
		var file localeFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse locale %s: %w", path, err)
		}
		if err := c.add(path, file); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) add(path string, file localeFile) error {
	lang := strings.TrimSpace(file.Language)
	if lang == "" {
		return fmt.Errorf("locale %s: language is required", path)
	}
	if strings.Contains(lang, "_") {
		return fmt.Errorf("locale %s: language %q must not contain '_'", path, lang)
	}
	if _, exists := c.locales[lang]; exists {
		return fmt.Errorf("locale %s: language %q already defined", path, lang)
	}

	tag, err := language.Parse(strings.TrimSpace(file.ISO))
	if err != nil {
		return fmt.Errorf("locale %s: invalid iso %q: %w", path, file.ISO, err)
	}
	base, _ := tag.Base()

	if len(file.Menu) != menuSize {
		return fmt.Errorf("locale %s: menu must have %d entries, got %d", path, menuSize, len(file.Menu))
	}
	for _, key := range requiredKeys {
		if strings.TrimSpace(file.Messages[key]) == "" {
			return fmt.Errorf("locale %s: message %q is required", path, key)
		}
	}

	loc := &locale{
		iso:      base.String(),
		label:    strings.TrimSpace(file.Label),
		messages: make(map[string]string, len(file.Messages)),
	}
	if loc.label == "" {
		loc.label = lang
	}
	for key, value := range file.Messages {
		loc.messages[strings.TrimSpace(key)] = value
	}
	for i, label := range file.Menu {
		label = strings.TrimSpace(label)
		if label == "" {
			return fmt.Errorf("locale %s: menu entry %d is blank", path, i+1)
		}
		if prev, exists := c.menu[label]; exists && prev != MenuEntry(i) {
			return fmt.Errorf("locale %s: menu label %q is bound to %s in another locale", path, label, prev)
		}
		loc.menu[i] = label
		c.menu[label] = MenuEntry(i)
	}

	c.locales[lang] = loc
	return nil
}

// Has reports whether lang is registered.
func (c *Catalog) Has(lang string) bool {
	_, ok := c.locales[lang]
	return ok
}

// Languages returns the registered language tags in sorted order.
func (c *Catalog) Languages() []string {
	out := make([]string, 0, len(c.locales))
	for lang := range c.locales {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the message stored under key for lang.
func (c *Catalog) Lookup(lang, key string) (string, error) {
	loc, err := c.locale(lang)
	if err != nil {
		return "", err
	}
	msg, ok := loc.messages[key]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrUnknownKey, lang, key)
	}
	return msg, nil
}

// MenuEntries returns the three main menu labels for lang in display order.
func (c *Catalog) MenuEntries(lang string) ([]string, error) {
	loc, err := c.locale(lang)
	if err != nil {
		return nil, err
	}
	out := make([]string, menuSize)
	copy(out, loc.menu[:])
	return out, nil
}

// MenuEntryFor resolves a menu label of any registered language to its entry.
func (c *Catalog) MenuEntryFor(text string) (MenuEntry, bool) {
	entry, ok := c.menu[strings.TrimSpace(text)]
	return entry, ok
}

// Label returns the human readable name of lang, e.g. "Русский".
func (c *Catalog) Label(lang string) (string, error) {
	loc, err := c.locale(lang)
	if err != nil {
		return "", err
	}
	return loc.label, nil
}

// ISO returns the ISO 639-1 code of lang as used by Telegram clients.
func (c *Catalog) ISO(lang string) (string, error) {
	loc, err := c.locale(lang)
	if err != nil {
		return "", err
	}
	return loc.iso, nil
}

func (c *Catalog) locale(lang string) (*locale, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, lang)
	}
	loc, ok := c.locales[lang]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, lang)
	}
	return loc, nil
}
