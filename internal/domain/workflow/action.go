package workflow

// Action represents a request that can cause a state transition
type Action string

const (
	ActionSubmit     Action = "submit"
	ActionSendBack   Action = "send-back"
	ActionVerify     Action = "verify"
	ActionApprove    Action = "approve"
	ActionReject     Action = "reject"
	ActionBlock      Action = "block"
	ActionSuspend    Action = "suspend"
	ActionActivate   Action = "activate"
	ActionReinitiate Action = "reinitiate"
)

var rfqActions = map[Action]bool{
	ActionSubmit:   true,
	ActionSendBack: true,
	ActionVerify:   true,
	ActionApprove:  true,
	ActionReject:   true,
}

var vendorActions = map[Action]bool{
	ActionBlock:      true,
	ActionSuspend:    true,
	ActionActivate:   true,
	ActionReinitiate: true,
}

// String returns the string representation of the action
func (a Action) String() string {
	return string(a)
}

// IsValid returns true if the action is one of the nine lifecycle actions
func (a Action) IsValid() bool {
	return rfqActions[a] || vendorActions[a]
}

// TargetsRFQ reports whether the action is addressed by reference id
func (a Action) TargetsRFQ() bool {
	return rfqActions[a]
}

// TargetsVendor reports whether the action is addressed by vendor code
func (a Action) TargetsVendor() bool {
	return vendorActions[a]
}

// RequiresExpiry reports whether the caller must supply an expiry date
func (a Action) RequiresExpiry() bool {
	return a == ActionVerify || a == ActionApprove
}
