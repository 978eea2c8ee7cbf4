package entity

import "time"

// ReviewComment is a reviewer note attached to one review step of a submission
type ReviewComment struct {
	ID          int64      `json:"id"`
	ReferenceID string     `json:"reference_id"`
	Step        string     `json:"step"`
	Comment     string     `json:"comment"`
	Author      string     `json:"author"`
	Emailed     bool       `json:"emailed"`
	EmailedAt   *time.Time `json:"emailed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
