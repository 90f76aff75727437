package entities

import "time"

// Subscriber channels
const (
	ChannelEmail    = "email"
	ChannelTelegram = "telegram"
)

// Subscriber is a newsletter or digest recipient
type Subscriber struct {
	ID        string
	Channel   string // email or telegram
	Address   string // Email address or Telegram chat ID
	CreatedAt time.Time
}
