// Package flow implements the intake conversation as a pure transition function.
package flow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/m3rciful/enrollbot/intake/catalog"
)

const (
	startCommand   = "/start"
	languagePrefix = "lang"
)

// Options configures a Machine.
type Options struct {
	DefaultLanguage string
	Courses         []string
}

// Machine computes conversation transitions. It holds no per-user state.
type Machine struct {
	cat         *catalog.Catalog
	defaultLang string
	courses     []string
	courseSet   map[string]struct{}
}

// NewMachine validates opts against the catalog and returns a Machine.
func NewMachine(cat *catalog.Catalog, opts Options) (*Machine, error) {
	if cat == nil {
		return nil, errors.New("flow: nil catalog")
	}
	if !cat.Has(opts.DefaultLanguage) {
		return nil, fmt.Errorf("flow: default language %q: %w", opts.DefaultLanguage, catalog.ErrUnknownLanguage)
	}
	if len(opts.Courses) == 0 {
		return nil, errors.New("flow: at least one course is required")
	}
	set := make(map[string]struct{}, len(opts.Courses))
	for _, c := range opts.Courses {
		if c == "" {
			return nil, errors.New("flow: blank course name")
		}
		if _, dup := set[c]; dup {
			return nil, fmt.Errorf("flow: duplicate course %q", c)
		}
		set[c] = struct{}{}
	}
	return &Machine{
		cat:         cat,
		defaultLang: opts.DefaultLanguage,
		courses:     append([]string(nil), opts.Courses...),
		courseSet:   set,
	}, nil
}

// DefaultLanguage returns the fallback language tag.
func (m *Machine) DefaultLanguage() string { return m.defaultLang }

// Courses returns the course enumeration in display order.
func (m *Machine) Courses() []string {
	return append([]string(nil), m.courses...)
}

// ParseLanguagePayload extracts the tag from a "lang_<tag>" selection payload.
func ParseLanguagePayload(payload string) (string, error) {
	parts := strings.Split(payload, "_")
	if len(parts) < 2 || parts[0] != languagePrefix || parts[1] == "" {
		return "", fmt.Errorf("%w: malformed selection %q", catalog.ErrUnknownLanguage, payload)
	}
	return parts[1], nil
}

// LanguagePayload builds the selection payload for a language tag.
func LanguagePayload(lang string) string {
	return languagePrefix + "_" + lang
}

// Transition applies ev to s. It never mutates s; the returned Result.Next is
// the session the caller should commit.
func (m *Machine) Transition(s Session, ev Event) Result {
	cur := s.Clone()
	if cur.State == "" {
		cur.State = StateIdle
	}
	if cur.UserID == 0 {
		cur.UserID = ev.UserID
	}

	switch ev.Kind {
	case KindCommand:
		if isStart(ev.Payload) {
			return m.languagePrompt(cur, m.languageOf(cur), nil)
		}
	case KindCallback:
		if strings.HasPrefix(ev.Payload, languagePrefix+"_") {
			return m.selectLanguage(cur, ev.Payload)
		}
		return m.unrecognized(cur, m.languageOf(cur))
	case KindOther:
		return m.unrecognized(cur, m.languageOf(cur))
	}

	lang := m.languageOf(cur)
	if !m.cat.Has(lang) {
		// The stored tag is gone from the catalog: answer in the default
		// language and leave the session untouched.
		return m.languagePrompt(cur, m.defaultLang, fmt.Errorf("%w: %q", catalog.ErrUnknownLanguage, lang))
	}

	switch cur.State {
	case StateCollectingName:
		return m.collect(cur, FieldName, ev.Payload, StateCollectingAge, m.reply(cur, lang, catalog.KeyAskAge))
	case StateCollectingAge:
		prompt := m.reply(cur, lang, catalog.KeyAskCourse)
		prompt.Options = m.courseOptions()
		return m.collect(cur, FieldAge, ev.Payload, StateCollectingCourse, prompt)
	case StateCollectingCourse:
		if _, ok := m.courseSet[ev.Payload]; !ok {
			return Result{
				Next:    cur,
				Replies: []Reply{m.reply(cur, lang, catalog.KeyChooseCourse)},
				Reason:  fmt.Errorf("%w: %q", ErrInvalidCourse, ev.Payload),
			}
		}
		prompt := m.reply(cur, lang, catalog.KeyAskPhone)
		prompt.ClearOptions = true
		return m.collect(cur, FieldCourse, ev.Payload, StateCollectingPhone, prompt)
	case StateCollectingPhone:
		return m.complete(cur, lang, ev.Payload)
	default:
		return m.idle(cur, lang, ev)
	}
}

func (m *Machine) idle(cur Session, lang string, ev Event) Result {
	if ev.Kind != KindText {
		return m.unrecognized(cur, lang)
	}
	entry, ok := m.cat.MenuEntryFor(ev.Payload)
	if !ok {
		return m.unrecognized(cur, lang)
	}
	switch entry {
	case catalog.MenuRegister:
		cur.State = StateCollectingName
		cur.Fields = map[string]string{}
		return Result{Next: cur, Replies: []Reply{m.reply(cur, lang, catalog.KeyAskName)}}
	case catalog.MenuCourses:
		header := m.text(lang, catalog.KeyCoursesHeader)
		return Result{Next: cur, Replies: []Reply{{
			UserID: cur.UserID,
			Text:   header + "\n" + strings.Join(m.courses, "\n"),
		}}}
	case catalog.MenuFAQ:
		return Result{Next: cur, Replies: []Reply{m.reply(cur, lang, catalog.KeyFAQ)}}
	}
	return m.unrecognized(cur, lang)
}

func (m *Machine) collect(cur Session, field, value string, next State, prompt Reply) Result {
	cur.Fields[field] = value
	cur.State = next
	return Result{Next: cur, Replies: []Reply{prompt}}
}

func (m *Machine) complete(cur Session, lang, phone string) Result {
	sub := &Submission{
		UserID:   cur.UserID,
		Name:     cur.Fields[FieldName],
		Age:      cur.Fields[FieldAge],
		Course:   cur.Fields[FieldCourse],
		Phone:    phone,
		Language: lang,
	}
	done := m.reply(cur, lang, catalog.KeyDone)
	done.Options = m.menuOptions(lang)

	cur.State = StateIdle
	cur.Fields = map[string]string{}
	return Result{Next: cur, Replies: []Reply{done}, Submission: sub}
}

func (m *Machine) selectLanguage(cur Session, payload string) Result {
	lang, err := ParseLanguagePayload(payload)
	if err == nil && !m.cat.Has(lang) {
		err = fmt.Errorf("%w: %q", catalog.ErrUnknownLanguage, lang)
	}
	if err != nil {
		return m.languagePrompt(cur, m.defaultLang, err)
	}
	cur.Language = lang
	welcome := m.reply(cur, lang, catalog.KeyStart)
	welcome.Options = m.menuOptions(lang)
	return Result{Next: cur, Replies: []Reply{welcome}}
}

// languagePrompt asks the user to pick a language. When reason is set the
// prompt is prefixed with the unknown-language notice.
func (m *Machine) languagePrompt(cur Session, lang string, reason error) Result {
	if !m.cat.Has(lang) {
		lang = m.defaultLang
	}
	text := m.text(lang, catalog.KeyLanguagePrompt)
	if reason != nil {
		text = m.text(lang, catalog.KeyUnknownLanguage) + "\n\n" + text
	}
	return Result{
		Next: cur,
		Replies: []Reply{{
			UserID:  cur.UserID,
			Text:    text,
			Options: m.languageOptions(),
		}},
		Reason: reason,
	}
}

func (m *Machine) unrecognized(cur Session, lang string) Result {
	if !m.cat.Has(lang) {
		lang = m.defaultLang
	}
	return Result{Next: cur, Replies: []Reply{m.reply(cur, lang, catalog.KeyChooseMenu)}}
}

func (m *Machine) reply(cur Session, lang, key string) Reply {
	return Reply{UserID: cur.UserID, Text: m.text(lang, key)}
}

func (m *Machine) text(lang, key string) string {
	if msg, err := m.cat.Lookup(lang, key); err == nil {
		return msg
	}
	if msg, err := m.cat.Lookup(m.defaultLang, key); err == nil {
		return msg
	}
	return key
}

func (m *Machine) languageOf(s Session) string {
	if s.Language == "" {
		return m.defaultLang
	}
	return s.Language
}

// languageOptions lists the default language first, then the rest in tag order.
func (m *Machine) languageOptions() []Option {
	langs := m.cat.Languages()
	opts := make([]Option, 0, len(langs))
	add := func(lang string) {
		label, err := m.cat.Label(lang)
		if err != nil {
			return
		}
		opts = append(opts, Option{Label: label, Data: LanguagePayload(lang)})
	}
	add(m.defaultLang)
	for _, lang := range langs {
		if lang != m.defaultLang {
			add(lang)
		}
	}
	return opts
}

func (m *Machine) menuOptions(lang string) []Option {
	labels, err := m.cat.MenuEntries(lang)
	if err != nil {
		return nil
	}
	opts := make([]Option, len(labels))
	for i, l := range labels {
		opts[i] = Option{Label: l}
	}
	return opts
}

func (m *Machine) courseOptions() []Option {
	opts := make([]Option, len(m.courses))
	for i, c := range m.courses {
		opts[i] = Option{Label: c}
	}
	return opts
}

func isStart(payload string) bool {
	fields := strings.Fields(payload)
	if len(fields) == 0 {
		return false
	}
	cmd := fields[0]
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return cmd == startCommand
}
