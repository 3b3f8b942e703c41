package callbacks

import (
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestParseCallbackData(t *testing.T) {
	cases := []struct {
		cb          *tele.Callback
		key, payload string
	}{
		{nil, "", ""},
		{&tele.Callback{Data: "lang_ru"}, "lang_ru", ""},
		{&tele.Callback{Data: "\fcourse|Arduino"}, "course", "Arduino"},
		{&tele.Callback{Unique: "course", Data: "Python"}, "course", "Python"},
		{&tele.Callback{Data: "a|b|c"}, "a", "b|c"},
	}
	for _, tc := range cases {
		key, payload := ParseCallbackData(tc.cb)
		if key != tc.key || payload != tc.payload {
			t.Fatalf("ParseCallbackData(%+v) = %q, %q; want %q, %q", tc.cb, key, payload, tc.key, tc.payload)
		}
	}
}

func TestRaw(t *testing.T) {
	cases := map[string]*tele.Callback{
		"lang_kz":      {Data: "lang_kz"},
		"course|Arduino": {Data: "\fcourse|Arduino"},
		"menu|0":       {Unique: "menu", Data: "0"},
		"":             nil,
	}
	for want, cb := range cases {
		if got := Raw(cb); got != want {
			t.Fatalf("Raw(%+v) = %q, want %q", cb, got, want)
		}
	}
}
