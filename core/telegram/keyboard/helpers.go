package keyboard

import tele "gopkg.in/telebot.v4"

// InlineBtn describes one inline button. URL wins over WebApp, and both win
// over the callback Unique/Data pair.
type InlineBtn struct {
	Text   string
	Unique string
	Data   string
	URL    string
	WebApp string
}

func (b InlineBtn) build(markup *tele.ReplyMarkup) tele.Btn {
	switch {
	case b.URL != "":
		return markup.URL(b.Text, b.URL)
	case b.WebApp != "":
		return markup.WebApp(b.Text, &tele.WebApp{URL: b.WebApp})
	}
	return markup.Data(b.Text, b.Unique, b.Data)
}

// ForceReply asks the client to open a reply to the message.
func ForceReply() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{ForceReply: true}
}

// InlineButtonsRows builds an inline keyboard from rows of InlineBtn. Empty
// rows are dropped.
func InlineButtonsRows(rows ...[]InlineBtn) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	inline := make([][]tele.InlineButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		r := make([]tele.InlineButton, len(row))
		for j, btn := range row {
			r[j] = *btn.build(markup).Inline()
		}
		inline = append(inline, r)
	}
	markup.InlineKeyboard = inline
	return markup
}
