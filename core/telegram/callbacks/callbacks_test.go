package callbacks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v4"
)

func TestParseCallbackData(t *testing.T) {
	tests := []struct {
		name        string
		cb          *tele.Callback
		wantKey     string
		wantPayload string
	}{
		{name: "nil", cb: nil},
		{name: "raw with payload", cb: &tele.Callback{Data: "\fset_lang|hi"}, wantKey: "set_lang", wantPayload: "hi"},
		{name: "raw without payload", cb: &tele.Callback{Data: "\fget_signal"}, wantKey: "get_signal"},
		{name: "already split", cb: &tele.Callback{Unique: "set_lang", Data: "en"}, wantKey: "set_lang", wantPayload: "en"},
		{name: "plain data", cb: &tele.Callback{Data: "confirm_photo_broadcast"}, wantKey: "confirm_photo_broadcast"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, payload := ParseCallbackData(tt.cb)
			assert.Equal(t, tt.wantKey, key)
			assert.Equal(t, tt.wantPayload, payload)
		})
	}
}
