// Package callbacks decodes inline button payloads.
package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// ParseCallbackData splits telebot's "\f<unique>|<payload>" encoding into key
// and payload. Raw data without the marker, such as "lang_ru", is returned
// whole as the key; only the first "|" separates.
func ParseCallbackData(cb *tele.Callback) (key, payload string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	key, payload, _ = strings.Cut(strings.TrimPrefix(cb.Data, "\f"), "|")
	return strings.TrimSpace(key), payload
}

// Raw re-joins key and payload in the "<key>|<payload>" form buttons are
// built with, without telebot's "\f" marker.
func Raw(cb *tele.Callback) string {
	key, payload := ParseCallbackData(cb)
	if payload == "" {
		return key
	}
	return key + "|" + payload
}
