package workflow

import (
	domainwf "github.com/garyjia/vendor-lifecycle/internal/domain/workflow"
)

// RFQGuards holds the context-dependent checks of the submission lifecycle
type RFQGuards struct {
	// Approve refuses approval when the linked vendor cannot be reactivated
	Approve domainwf.GuardFunc
}

// VendorGuards holds the context-dependent checks of the vendor lifecycle
type VendorGuards struct {
	// Reinitiate refuses while a renewal is in flight or the vendor is outside the renewal window
	Reinitiate domainwf.GuardFunc
}

// BuildRFQStateMachine creates a state machine for one submission.
// Each state forbids the actions it cannot take with the most specific reason available.
func BuildRFQStateMachine(initial domainwf.RFQStatus, guards RFQGuards) domainwf.StateMachine[domainwf.RFQStatus] {
	builder := domainwf.NewBuilder[domainwf.RFQStatus]()

	builder.Configure(domainwf.RFQInitial).
		Permit(domainwf.ActionSubmit, domainwf.RFQSubmitted).
		Forbid(domainwf.ActionSendBack, domainwf.ErrNotSubmitted).
		Forbid(domainwf.ActionVerify, domainwf.ErrNotSubmitted).
		Forbid(domainwf.ActionApprove, domainwf.ErrNotVerified).
		Forbid(domainwf.ActionReject, domainwf.ErrNotSubmitted)

	builder.Configure(domainwf.RFQSubmitted).
		Forbid(domainwf.ActionSubmit, domainwf.ErrAlreadySubmitted).
		Permit(domainwf.ActionSendBack, domainwf.RFQSentBack).
		Permit(domainwf.ActionVerify, domainwf.RFQVerified).
		Forbid(domainwf.ActionApprove, domainwf.ErrNotVerified).
		Permit(domainwf.ActionReject, domainwf.RFQRejected)

	builder.Configure(domainwf.RFQVerified).
		Forbid(domainwf.ActionSubmit, domainwf.ErrAlreadyVerified).
		Permit(domainwf.ActionSendBack, domainwf.RFQSentBack).
		Forbid(domainwf.ActionVerify, domainwf.ErrAlreadyVerified).
		PermitIf(domainwf.ActionApprove, domainwf.RFQApproved, guards.Approve).
		Permit(domainwf.ActionReject, domainwf.RFQRejected)

	builder.Configure(domainwf.RFQSentBack).
		Permit(domainwf.ActionSubmit, domainwf.RFQSubmitted).
		Forbid(domainwf.ActionSendBack, domainwf.ErrAlreadySentBack).
		Forbid(domainwf.ActionVerify, domainwf.ErrAwaitingResubmission).
		Forbid(domainwf.ActionApprove, domainwf.ErrNotVerified).
		Forbid(domainwf.ActionReject, domainwf.ErrAwaitingResubmission)

	// Settled submissions refuse every action with the reason of their final state
	settled := map[domainwf.RFQStatus]map[domainwf.Action]error{
		domainwf.RFQApproved: {
			domainwf.ActionSubmit:   domainwf.ErrAlreadyApproved,
			domainwf.ActionSendBack: domainwf.ErrAlreadyApproved,
			domainwf.ActionVerify:   domainwf.ErrAlreadyApproved,
			domainwf.ActionApprove:  domainwf.ErrAlreadyApproved,
			domainwf.ActionReject:   domainwf.ErrAlreadyApproved,
		},
		domainwf.RFQRejected: {
			domainwf.ActionSubmit:   domainwf.ErrRFQRejected,
			domainwf.ActionSendBack: domainwf.ErrRFQRejected,
			domainwf.ActionVerify:   domainwf.ErrRFQRejected,
			domainwf.ActionApprove:  domainwf.ErrRFQRejected,
			domainwf.ActionReject:   domainwf.ErrAlreadyRejected,
		},
		domainwf.RFQBlocked:   forbidAll(domainwf.ErrRFQBlocked),
		domainwf.RFQSuspended: forbidAll(domainwf.ErrRFQSuspended),
		domainwf.RFQExpired:   forbidAll(domainwf.ErrRFQExpired),
	}
	for status, reasons := range settled {
		config := builder.Configure(status)
		for action, reason := range reasons {
			config.Forbid(action, reason)
		}
	}

	return builder.Build(initial)
}

func forbidAll(reason error) map[domainwf.Action]error {
	return map[domainwf.Action]error{
		domainwf.ActionSubmit:   reason,
		domainwf.ActionSendBack: reason,
		domainwf.ActionVerify:   reason,
		domainwf.ActionApprove:  reason,
		domainwf.ActionReject:   reason,
	}
}

// BuildVendorStateMachine creates a state machine for one vendor.
// Re-initiation leaves the vendor status unchanged, so it is a self-transition.
func BuildVendorStateMachine(initial domainwf.VendorStatus, guards VendorGuards) domainwf.StateMachine[domainwf.VendorStatus] {
	builder := domainwf.NewBuilder[domainwf.VendorStatus]()

	builder.Configure(domainwf.VendorApproved).
		Permit(domainwf.ActionBlock, domainwf.VendorBlocked).
		Permit(domainwf.ActionSuspend, domainwf.VendorSuspended).
		Forbid(domainwf.ActionActivate, domainwf.ErrAlreadyActive).
		PermitIf(domainwf.ActionReinitiate, domainwf.VendorApproved, guards.Reinitiate)

	builder.Configure(domainwf.VendorBlocked).
		Forbid(domainwf.ActionBlock, domainwf.ErrAlreadyBlocked).
		Forbid(domainwf.ActionSuspend, domainwf.ErrActivateFirst).
		Permit(domainwf.ActionActivate, domainwf.VendorApproved).
		Forbid(domainwf.ActionReinitiate, domainwf.ErrActivateFirst)

	builder.Configure(domainwf.VendorSuspended).
		Permit(domainwf.ActionBlock, domainwf.VendorBlocked).
		Forbid(domainwf.ActionSuspend, domainwf.ErrAlreadySuspended).
		Permit(domainwf.ActionActivate, domainwf.VendorApproved).
		Forbid(domainwf.ActionReinitiate, domainwf.ErrActivateFirst)

	builder.Configure(domainwf.VendorExpired).
		Permit(domainwf.ActionBlock, domainwf.VendorBlocked).
		Permit(domainwf.ActionSuspend, domainwf.VendorSuspended).
		Forbid(domainwf.ActionActivate, domainwf.ErrReinitiateRequired).
		PermitIf(domainwf.ActionReinitiate, domainwf.VendorExpired, guards.Reinitiate)

	return builder.Build(initial)
}
