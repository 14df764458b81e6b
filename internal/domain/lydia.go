package domain

import "time"

// LydiaSession records which access record created a Lydia conversation.
type LydiaSession struct {
	ID             string
	AccessRecordID int64
	Language       string
	ExpiresAt      time.Time
	CreatedAt      time.Time
}
