package core

import "time"

// ChatMessage is one chat log entry. Identity is server-assigned; the log is
// append-only and ordered by local receipt.
type ChatMessage struct {
	ID       string    `json:"id"`
	AuthorID PeerID    `json:"authorId"`
	Content  string    `json:"content"`
	SentAt   time.Time `json:"sentAt"`
}
