// Package transport defines the adapter-neutral messaging types the bot
// router and the reminder sink are written against.
package transport

import "context"

// Message is one inbound text message.
type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
}

// Update wraps whatever the platform delivered. Only text messages carry
// meaning here; other update kinds never reach the router.
type Update struct {
	Message *Message
}

// ChatTarget addresses an outbound message.
type ChatTarget struct {
	ChatID int64
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// BotCommand is one entry of the platform's command menu.
type BotCommand struct {
	Command     string
	Description string
}

// Adapter is the platform boundary. Start begins delivering updates on the
// Updates channel; Stop halts polling. SendText returns the platform message
// id of the first chunk it sent.
type Adapter interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Updates() <-chan Update
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (int64, error)
}
