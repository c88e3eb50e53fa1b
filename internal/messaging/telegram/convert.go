package telegram

import (
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/botfleet/internal/messaging"
)

// convertUpdate maps the updates bots react to. Others return nil.
func convertUpdate(update telego.Update) *messaging.Update {
	switch {
	case update.Message != nil:
		msg := update.Message
		u := &messaging.Update{
			ID:        update.UpdateID,
			ChatID:    msg.Chat.ID,
			MessageID: msg.MessageID,
			Text:      msg.Text,
		}
		if msg.From != nil {
			u.From = convertUser(*msg.From)
		}
		return u
	case update.CallbackQuery != nil:
		cq := update.CallbackQuery
		u := &messaging.Update{
			ID:           update.UpdateID,
			From:         convertUser(cq.From),
			CallbackID:   cq.ID,
			CallbackData: cq.Data,
		}
		if cq.Message != nil {
			u.ChatID = cq.Message.GetChat().ID
			u.MessageID = cq.Message.GetMessageID()
		} else {
			u.ChatID = cq.From.ID
		}
		return u
	}
	return nil
}

func convertUser(u telego.User) messaging.User {
	return messaging.User{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

func buildMarkup(kb messaging.Keyboard) *telego.InlineKeyboardMarkup {
	if len(kb) == 0 {
		return nil
	}
	rows := make([][]telego.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]telego.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			btn := tu.InlineKeyboardButton(b.Text)
			if b.URL != "" {
				btn = btn.WithURL(b.URL)
			} else {
				btn = btn.WithCallbackData(b.Data)
			}
			buttons = append(buttons, btn)
		}
		rows = append(rows, buttons)
	}
	return tu.InlineKeyboard(rows...)
}
