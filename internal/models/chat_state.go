package models

import "time"

// Chat input modes. A chat waits for at most one kind of free-text answer.
const (
	AwaitNothing = ""
	AwaitEmail   = "email"
	AwaitPeriod  = "period"
)

// ChatState links a Telegram chat to the workflow session it is driving and
// records which free-text input the bot expects next.
type ChatState struct {
	ChatID     int64     `json:"chat_id"`
	WorkflowID string    `json:"workflow_id"`
	Awaiting   string    `json:"awaiting,omitempty"`
	MessageID  int       `json:"message_id,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}
