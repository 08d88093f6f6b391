package domain

import "time"

const MaxMessageLen = 2000

// ChatMessage is append-only: once committed it is never edited or
// deleted. Seq is a room-scoped sequence number assigned at commit time,
// strictly increasing in commit order.
type ChatMessage struct {
	Seq      uint64        `json:"seq"`
	SenderID ParticipantID `json:"senderId"`
	Body     string        `json:"body"`
	SentAt   time.Time     `json:"sentAt"`
}
