package entity

import "time"

// StatusHistory is the audit trail row written with every transition
type StatusHistory struct {
	ID          int64     `json:"id"`
	SubjectType string    `json:"subject_type"`
	SubjectKey  string    `json:"subject_key"`
	Action      string    `json:"action"`
	FromStatus  string    `json:"from_status"`
	ToStatus    string    `json:"to_status"`
	Actor       string    `json:"actor"`
	Note        string    `json:"note,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
