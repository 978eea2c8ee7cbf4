package entity

import "time"

// Notification is an outbox row: an email queued inside the transition's transaction
// and delivered after commit
type Notification struct {
	ID            int64             `json:"id"`
	Template      string            `json:"template"`
	Audience      string            `json:"audience"`
	SubjectKey    string            `json:"subject_key"`
	Recipients    []string          `json:"recipients"`
	Variables     map[string]string `json:"variables"`
	Status        string            `json:"status"`
	Attempts      int               `json:"attempts"`
	NextAttemptAt time.Time         `json:"next_attempt_at"`
	LastError     string            `json:"last_error,omitempty"`
	SentAt        *time.Time        `json:"sent_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Claimable reports whether a sender may take the row at now.
// A SENDING row becomes claimable again once its lease in NextAttemptAt runs out.
func (n *Notification) Claimable(now time.Time) bool {
	switch n.Status {
	case NotificationStatusPending, NotificationStatusFailed, NotificationStatusSending:
		return !n.NextAttemptAt.After(now)
	}
	return false
}
