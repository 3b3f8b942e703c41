// Package keyboard builds reply and inline markups.
package keyboard

import tele "gopkg.in/telebot.v4"

// Button is an inline button. Data is sent to Telegram as is, without
// telebot's "\f<unique>|" envelope.
type Button struct {
	Label string
	Data  string
}

// Remove hides a previously shown reply keyboard.
func Remove() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{RemoveKeyboard: true}
}

// Reply lays labels out perRow to a row in a resizing reply keyboard.
func Reply(perRow int, labels ...string) *tele.ReplyMarkup {
	rows := chunk(labels, perRow)
	kb := make([][]tele.ReplyButton, len(rows))
	for i, row := range rows {
		kb[i] = make([]tele.ReplyButton, len(row))
		for j, label := range row {
			kb[i][j] = tele.ReplyButton{Text: label}
		}
	}
	return &tele.ReplyMarkup{ReplyKeyboard: kb, ResizeKeyboard: true}
}

// Inline lays buttons out perRow to a row in an inline keyboard.
func Inline(perRow int, buttons ...Button) *tele.ReplyMarkup {
	rows := chunk(buttons, perRow)
	kb := make([][]tele.InlineButton, len(rows))
	for i, row := range rows {
		kb[i] = make([]tele.InlineButton, len(row))
		for j, b := range row {
			kb[i][j] = tele.InlineButton{Text: b.Label, Data: b.Data}
		}
	}
	return &tele.ReplyMarkup{InlineKeyboard: kb}
}

// chunk splits items into rows of at most n; n < 1 means one per row.
func chunk[T any](items []T, n int) [][]T {
	if n < 1 {
		n = 1
	}
	rows := make([][]T, 0, (len(items)+n-1)/n)
	for len(items) > n {
		rows = append(rows, items[:n:n])
		items = items[n:]
	}
	if len(items) > 0 {
		rows = append(rows, items)
	}
	return rows
}
