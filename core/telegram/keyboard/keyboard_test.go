package keyboard

import "testing"

func TestChunk(t *testing.T) {
	labels := []string{"Python", "LEGO WeDo", "MINDSTORMS", "Arduino", "Scratch"}

	rows := chunk(labels, 2)
	if len(rows) != 3 || len(rows[2]) != 1 || rows[2][0] != "Scratch" {
		t.Fatalf("rows = %v", rows)
	}
	if rows := chunk(labels, 0); len(rows) != len(labels) {
		t.Fatalf("n=0 rows = %v", rows)
	}
	if rows := chunk([]string(nil), 3); len(rows) != 0 {
		t.Fatalf("empty rows = %v", rows)
	}
}

func TestReply(t *testing.T) {
	markup := Reply(2, "📝 Записаться", "📚 Курсы", "❓ Вопросы")
	if !markup.ResizeKeyboard {
		t.Fatal("reply keyboard must resize")
	}
	if len(markup.ReplyKeyboard) != 2 || len(markup.ReplyKeyboard[1]) != 1 {
		t.Fatalf("keyboard = %+v", markup.ReplyKeyboard)
	}
	if markup.ReplyKeyboard[1][0].Text != "❓ Вопросы" {
		t.Fatalf("last button = %q", markup.ReplyKeyboard[1][0].Text)
	}
}

func TestInlineRawData(t *testing.T) {
	markup := Inline(1,
		Button{Label: "Русский", Data: "lang_ru"},
		Button{Label: "Қазақша", Data: "lang_kz"},
	)
	if len(markup.InlineKeyboard) != 2 {
		t.Fatalf("rows = %d", len(markup.InlineKeyboard))
	}
	btn := markup.InlineKeyboard[1][0]
	if btn.Text != "Қазақша" || btn.Data != "lang_kz" || btn.Unique != "" {
		t.Fatalf("button = %+v", btn)
	}
}

func TestRemove(t *testing.T) {
	if !Remove().RemoveKeyboard {
		t.Fatal("expected remove flag")
	}
}
