package messaging

import "context"

// Request carries one update together with the bot that received it.
type Request struct {
	Update      *Update
	Bot         Sender
	BotUsername string
}

// Args returns the command arguments of the update.
func (r *Request) Args() []string {
	_, args := r.Update.Command()
	return args
}

// UserID is the Telegram id of the sender.
func (r *Request) UserID() int64 {
	return r.Update.From.ID
}

// Reply sends plain text to the chat the update came from.
func (r *Request) Reply(ctx context.Context, text string, kb Keyboard) error {
	_, err := r.Bot.Send(ctx, Message{ChatID: r.Update.ChatID, Text: text, Keyboard: kb})
	return err
}

// ReplyMarkdown sends Markdown text to the chat the update came from.
func (r *Request) ReplyMarkdown(ctx context.Context, text string, kb Keyboard) error {
	_, err := r.Bot.Send(ctx, Message{ChatID: r.Update.ChatID, Text: text, Markdown: true, Keyboard: kb})
	return err
}

// Show edits the message that carried the pressed button, or replies
// when the update is a plain message.
func (r *Request) Show(ctx context.Context, text string, markdown bool, kb Keyboard) error {
	msg := Message{ChatID: r.Update.ChatID, Text: text, Markdown: markdown, Keyboard: kb}
	if r.Update.IsCallback() && r.Update.MessageID != 0 {
		return r.Bot.Edit(ctx, r.Update.MessageID, msg)
	}
	_, err := r.Bot.Send(ctx, msg)
	return err
}

// Answer acknowledges a button press. It is a no-op for messages.
func (r *Request) Answer(ctx context.Context, text string) error {
	if !r.Update.IsCallback() {
		return nil
	}
	return r.Bot.Answer(ctx, r.Update.CallbackID, text)
}
