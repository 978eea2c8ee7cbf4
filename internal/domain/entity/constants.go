package entity

// Notification status constants
const (
	NotificationStatusPending = "PENDING"
	NotificationStatusSending = "SENDING"
	NotificationStatusSent    = "SENT"
	NotificationStatusFailed  = "FAILED"
	NotificationStatusDead    = "DEAD"
)

// Notification template kinds, one per outgoing email
const (
	TemplateRegistered  = "registered"
	TemplateSubmitted   = "submitted"
	TemplateResubmitted = "resubmitted"
	TemplateSentBack    = "sent_back"
	TemplateVerified    = "verified"
	TemplateApproved    = "approved"
	TemplateRejected    = "rejected"
	TemplateBlocked     = "blocked"
	TemplateSuspended   = "suspended"
	TemplateActivated   = "activated"
	TemplateReinitiated = "reinitiated"
)

// Recipient sets a notification is addressed to
const (
	AudienceVendor    = "VENDOR"
	AudienceReviewers = "REVIEWERS"
	AudienceBoth      = "BOTH"
)

// Countries treated as domestic for state-code resolution
const (
	CountryIndia = "IN"
)
