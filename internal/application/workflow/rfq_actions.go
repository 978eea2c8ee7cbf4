package workflow

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/garyjia/vendor-lifecycle/internal/application/port"
	"github.com/garyjia/vendor-lifecycle/internal/domain/entity"
	"github.com/garyjia/vendor-lifecycle/internal/domain/event"
	domainwf "github.com/garyjia/vendor-lifecycle/internal/domain/workflow"
)

func requireRFQInput(referenceID, actor string) error {
	if strings.TrimSpace(actor) == "" {
		return domainwf.ErrActorRequired
	}
	if strings.TrimSpace(referenceID) == "" {
		return domainwf.ErrReferenceRequired
	}
	return nil
}

// loadRFQ reads the submission inside the transaction and builds its state machine
func (e *engineImpl) loadRFQ(ctx context.Context, t *transition, referenceID string, guards RFQGuards) (*entity.RFQ, domainwf.StateMachine[domainwf.RFQStatus], error) {
	rfq, err := e.getRFQ(ctx, t, referenceID)
	if err != nil {
		return nil, nil, err
	}
	return rfq, BuildRFQStateMachine(rfq.Status, guards), nil
}

// getRFQ reads the submission once per transition and records it as the subject
func (e *engineImpl) getRFQ(ctx context.Context, t *transition, referenceID string) (*entity.RFQ, error) {
	t.subject = event.SubjectRFQ
	t.subjectKey = referenceID
	t.result.ReferenceID = referenceID

	rfq, err := e.repos.RFQs.GetByReferenceID(ctx, referenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get rfq %s: %w", referenceID, err)
	}
	if rfq == nil {
		return nil, fmt.Errorf("%w: %s", domainwf.ErrRFQNotFound, referenceID)
	}

	t.from = rfq.Status.String()
	return rfq, nil
}

// fire applies the action to the machine and the in-memory submission
func fireRFQ(ctx context.Context, t *transition, rfq *entity.RFQ, machine domainwf.StateMachine[domainwf.RFQStatus], action domainwf.Action) error {
	if err := machine.Fire(ctx, action); err != nil {
		return subjectError(err, rfq.ReferenceID)
	}
	rfq.Status = machine.State()
	t.to = rfq.Status.String()
	t.result.RFQStatus = t.to
	return nil
}

func (e *engineImpl) saveRFQ(ctx context.Context, rfq *entity.RFQ) error {
	if err := e.repos.RFQs.SetStatus(ctx, rfq); err != nil {
		return fmt.Errorf("failed to update rfq %s: %w", rfq.ReferenceID, err)
	}
	return nil
}

func rfqVariables(rfq *entity.RFQ, actor string) map[string]string {
	return map[string]string{
		"reference_id":     rfq.ReferenceID,
		"vendor_name":      rfq.VendorName,
		"contact_name":     rfq.ContactName,
		"status":           rfq.Status.String(),
		"submission_count": strconv.Itoa(rfq.SubmissionCount),
		"actor":            actor,
	}
}

// Submit moves a new or sent-back submission into review
func (e *engineImpl) Submit(ctx context.Context, referenceID, actor string) (*Result, error) {
	if err := requireRFQInput(referenceID, actor); err != nil {
		return nil, err
	}

	return e.run(ctx, domainwf.ActionSubmit, actor, func(txCtx context.Context, t *transition) error {
		rfq, machine, err := e.loadRFQ(txCtx, t, referenceID, RFQGuards{})
		if err != nil {
			return err
		}

		resubmission := rfq.Status == domainwf.RFQSentBack
		if err := fireRFQ(txCtx, t, rfq, machine, domainwf.ActionSubmit); err != nil {
			return err
		}
		rfq.SubmissionCount++
		if err := e.saveRFQ(txCtx, rfq); err != nil {
			return err
		}

		template, note := entity.TemplateSubmitted, "first submission"
		if resubmission {
			template, note = entity.TemplateResubmitted, fmt.Sprintf("resubmission #%d", rfq.SubmissionCount)
		}
		t.result.Resubmission = resubmission

		if err := e.record(txCtx, t, domainwf.ActionSubmit, note); err != nil {
			return err
		}
		return e.notify(txCtx, t, port.OutboundMessage{
			Template:    template,
			Audience:    entity.AudienceBoth,
			SubjectKey:  rfq.ReferenceID,
			VendorEmail: rfq.Email,
			Variables:   rfqVariables(rfq, actor),
		})
	})
}

// SendBack returns a submission to the vendor with the reviewers' pending comments
func (e *engineImpl) SendBack(ctx context.Context, referenceID, actor string) (*Result, error) {
	if err := requireRFQInput(referenceID, actor); err != nil {
		return nil, err
	}

	return e.run(ctx, domainwf.ActionSendBack, actor, func(txCtx context.Context, t *transition) error {
		rfq, machine, err := e.loadRFQ(txCtx, t, referenceID, RFQGuards{})
		if err != nil {
			return err
		}
		if err := fireRFQ(txCtx, t, rfq, machine, domainwf.ActionSendBack); err != nil {
			return err
		}
		if err := e.saveRFQ(txCtx, rfq); err != nil {
			return err
		}

		comments, err := e.repos.Comments.ListUnemailed(txCtx, referenceID)
		if err != nil {
			return fmt.Errorf("failed to list review comments: %w", err)
		}
		text, ids := groupComments(comments)
		if len(ids) > 0 {
			if err := e.repos.Comments.MarkEmailed(txCtx, ids, e.now()); err != nil {
				return fmt.Errorf("failed to mark review comments emailed: %w", err)
			}
		}

		if err := e.record(txCtx, t, domainwf.ActionSendBack, fmt.Sprintf("%d comments", len(ids))); err != nil {
			return err
		}

		vars := rfqVariables(rfq, actor)
		vars["comments"] = text
		return e.notify(txCtx, t, port.OutboundMessage{
			Template:    entity.TemplateSentBack,
			Audience:    entity.AudienceVendor,
			SubjectKey:  rfq.ReferenceID,
			VendorEmail: rfq.Email,
			Variables:   vars,
		})
	})
}

// groupComments concatenates comments per review step, steps in order of first appearance
func groupComments(comments []*entity.ReviewComment) (string, []int64) {
	var (
		steps  []string
		byStep = make(map[string][]string)
		ids    = make([]int64, 0, len(comments))
	)
	for _, c := range comments {
		step := strings.TrimSpace(c.Step)
		if step == "" {
			step = "General"
		}
		if _, seen := byStep[step]; !seen {
			steps = append(steps, step)
		}
		byStep[step] = append(byStep[step], strings.TrimSpace(c.Comment))
		ids = append(ids, c.ID)
	}

	var b strings.Builder
	for i, step := range steps {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(step)
		b.WriteString(":\n")
		for _, line := range byStep[step] {
			b.WriteString("- ")
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n"), ids
}

// Verify marks a submitted registration as checked and sets its expiry
func (e *engineImpl) Verify(ctx context.Context, referenceID, actor string, expiry time.Time) (*Result, error) {
	if err := requireRFQInput(referenceID, actor); err != nil {
		return nil, err
	}
	expiryDate, err := e.futureExpiry(expiry)
	if err != nil {
		return nil, err
	}

	return e.run(ctx, domainwf.ActionVerify, actor, func(txCtx context.Context, t *transition) error {
		rfq, machine, err := e.loadRFQ(txCtx, t, referenceID, RFQGuards{})
		if err != nil {
			return err
		}
		if err := fireRFQ(txCtx, t, rfq, machine, domainwf.ActionVerify); err != nil {
			return err
		}
		rfq.ExpiryDate = &expiryDate
		if err := e.saveRFQ(txCtx, rfq); err != nil {
			return err
		}

		if err := e.record(txCtx, t, domainwf.ActionVerify, "expiry "+expiryDate.Format(time.DateOnly)); err != nil {
			return err
		}

		vars := rfqVariables(rfq, actor)
		vars["expiry_date"] = expiryDate.Format(time.DateOnly)
		return e.notify(txCtx, t, port.OutboundMessage{
			Template:    entity.TemplateVerified,
			Audience:    entity.AudienceVendor,
			SubjectKey:  rfq.ReferenceID,
			VendorEmail: rfq.Email,
			Variables:   vars,
		})
	})
}

// Approve settles a verified submission, creating the vendor on first approval
func (e *engineImpl) Approve(ctx context.Context, referenceID, actor string, expiry time.Time) (*Result, error) {
	if err := requireRFQInput(referenceID, actor); err != nil {
		return nil, err
	}
	expiryDate, err := e.futureExpiry(expiry)
	if err != nil {
		return nil, err
	}

	return e.run(ctx, domainwf.ActionApprove, actor, func(txCtx context.Context, t *transition) error {
		rfq, err := e.getRFQ(txCtx, t, referenceID)
		if err != nil {
			return err
		}

		var linked *entity.Vendor
		if rfq.HasVendor() {
			linked, err = e.repos.Vendors.GetByID(txCtx, *rfq.VendorID)
			if err != nil {
				return fmt.Errorf("failed to get vendor %d: %w", *rfq.VendorID, err)
			}
			if linked == nil {
				return fmt.Errorf("%w: id %d linked from %s", domainwf.ErrVendorNotFound, *rfq.VendorID, referenceID)
			}
		}

		guards := RFQGuards{Approve: func(ctx context.Context) error {
			if linked == nil {
				return nil
			}
			switch linked.Status {
			case domainwf.VendorBlocked:
				return domainwf.ErrRFQBlocked
			case domainwf.VendorSuspended:
				return domainwf.ErrRFQSuspended
			}
			return nil
		}}

		machine := BuildRFQStateMachine(rfq.Status, guards)
		if err := fireRFQ(txCtx, t, rfq, machine, domainwf.ActionApprove); err != nil {
			return err
		}

		vendor, err := e.approvedVendor(txCtx, t, rfq, linked)
		if err != nil {
			return err
		}

		if err := e.repos.RFQs.LinkVendor(txCtx, rfq, vendor.ID); err != nil {
			return fmt.Errorf("failed to link vendor to rfq %s: %w", referenceID, err)
		}
		if err := e.repos.RFQs.DeactivateOthers(txCtx, vendor.ID, rfq.ID); err != nil {
			return fmt.Errorf("failed to deactivate previous rfqs of vendor %s: %w", vendor.VendorCode, err)
		}

		rfq.ExpiryDate = &expiryDate
		rfq.IsActive = true
		if err := e.saveRFQ(txCtx, rfq); err != nil {
			return err
		}

		t.result.VendorCode = vendor.VendorCode
		t.result.VendorStatus = vendor.Status.String()

		if err := e.record(txCtx, t, domainwf.ActionApprove, "vendor "+vendor.VendorCode); err != nil {
			return err
		}

		vars := rfqVariables(rfq, actor)
		vars["vendor_code"] = vendor.VendorCode
		vars["expiry_date"] = expiryDate.Format(time.DateOnly)
		return e.notify(txCtx, t, port.OutboundMessage{
			Template:    entity.TemplateApproved,
			Audience:    entity.AudienceBoth,
			SubjectKey:  rfq.ReferenceID,
			VendorEmail: rfq.Email,
			Variables:   vars,
		})
	})
}

// approvedVendor creates the vendor for a first approval or reactivates the linked one.
// An existing vendor keeps its code.
func (e *engineImpl) approvedVendor(ctx context.Context, t *transition, rfq *entity.RFQ, linked *entity.Vendor) (*entity.Vendor, error) {
	rfqID := rfq.ID

	if linked == nil {
		counterparty, err := e.repos.Counterparties.GetByReferenceID(ctx, rfq.ReferenceID)
		if err != nil {
			return nil, fmt.Errorf("failed to get counterparty %s: %w", rfq.ReferenceID, err)
		}
		if counterparty == nil {
			return nil, fmt.Errorf("%w: %s", domainwf.ErrCounterpartyNotFound, rfq.ReferenceID)
		}

		code, err := e.codes.Next(ctx, counterparty, e.now().In(e.location))
		if err != nil {
			return nil, fmt.Errorf("failed to generate vendor code: %w", err)
		}

		vendor := &entity.Vendor{
			VendorCode: code,
			Status:     domainwf.VendorApproved,
			ActiveRFQ:  &rfqID,
			VendorName: rfq.VendorName,
			Email:      rfq.Email,
		}
		if err := e.repos.Vendors.Create(ctx, vendor); err != nil {
			return nil, fmt.Errorf("failed to create vendor %s: %w", code, err)
		}
		if err := e.recordVendor(ctx, t, vendor.VendorCode, domainwf.ActionApprove, "", vendor.Status, "created from "+rfq.ReferenceID); err != nil {
			return nil, err
		}
		return vendor, nil
	}

	if linked.VendorCode == "" {
		return nil, &domainwf.TransitionError{Action: domainwf.ActionApprove, Subject: rfq.ReferenceID, Err: domainwf.ErrVendorCodeMissing}
	}

	from := linked.Status.String()
	linked.Status = domainwf.VendorApproved
	linked.ActiveRFQ = &rfqID
	if err := e.repos.Vendors.SetStatus(ctx, linked); err != nil {
		return nil, fmt.Errorf("failed to update vendor %s: %w", linked.VendorCode, err)
	}
	if err := e.recordVendor(ctx, t, linked.VendorCode, domainwf.ActionApprove, from, linked.Status, "renewed by "+rfq.ReferenceID); err != nil {
		return nil, err
	}
	return linked, nil
}

// Reject closes a submission; a linked active or expired vendor becomes Expired and may be re-initiated
func (e *engineImpl) Reject(ctx context.Context, referenceID, actor string) (*Result, error) {
	if err := requireRFQInput(referenceID, actor); err != nil {
		return nil, err
	}

	return e.run(ctx, domainwf.ActionReject, actor, func(txCtx context.Context, t *transition) error {
		rfq, machine, err := e.loadRFQ(txCtx, t, referenceID, RFQGuards{})
		if err != nil {
			return err
		}
		if err := fireRFQ(txCtx, t, rfq, machine, domainwf.ActionReject); err != nil {
			return err
		}
		rfq.IsActive = false
		if err := e.saveRFQ(txCtx, rfq); err != nil {
			return err
		}

		if rfq.HasVendor() {
			if err := e.expireLinkedVendor(txCtx, t, rfq); err != nil {
				return err
			}
		}

		if err := e.record(txCtx, t, domainwf.ActionReject, ""); err != nil {
			return err
		}
		return e.notify(txCtx, t, port.OutboundMessage{
			Template:    entity.TemplateRejected,
			Audience:    entity.AudienceVendor,
			SubjectKey:  rfq.ReferenceID,
			VendorEmail: rfq.Email,
			Variables:   rfqVariables(rfq, actor),
		})
	})
}

// expireLinkedVendor applies the vendor side of a rejection.
// Blocked and suspended vendors keep their status; only a pointer to the rejected row is cleared.
func (e *engineImpl) expireLinkedVendor(ctx context.Context, t *transition, rfq *entity.RFQ) error {
	vendor, err := e.repos.Vendors.GetByID(ctx, *rfq.VendorID)
	if err != nil {
		return fmt.Errorf("failed to get vendor %d: %w", *rfq.VendorID, err)
	}
	if vendor == nil {
		return fmt.Errorf("%w: id %d linked from %s", domainwf.ErrVendorNotFound, *rfq.VendorID, rfq.ReferenceID)
	}

	from := vendor.Status
	switch vendor.Status {
	case domainwf.VendorApproved, domainwf.VendorExpired:
		vendor.Status = domainwf.VendorExpired
		vendor.ActiveRFQ = nil
	default:
		if vendor.ActiveRFQ == nil || *vendor.ActiveRFQ != rfq.ID {
			t.result.VendorCode = vendor.VendorCode
			t.result.VendorStatus = vendor.Status.String()
			return nil
		}
		vendor.ActiveRFQ = nil
	}

	if err := e.repos.Vendors.SetStatus(ctx, vendor); err != nil {
		return fmt.Errorf("failed to update vendor %s: %w", vendor.VendorCode, err)
	}
	if vendor.Status == domainwf.VendorExpired {
		// an expired vendor has no active submission, including the one that approved it
		if err := e.repos.RFQs.DeactivateOthers(ctx, vendor.ID, 0); err != nil {
			return fmt.Errorf("failed to deactivate rfqs of vendor %s: %w", vendor.VendorCode, err)
		}
	}
	t.result.VendorCode = vendor.VendorCode
	t.result.VendorStatus = vendor.Status.String()

	return e.recordVendor(ctx, t, vendor.VendorCode, domainwf.ActionReject, from.String(), vendor.Status, "rejected "+rfq.ReferenceID)
}

// recordVendor writes a vendor history row for a side effect of a submission action
func (e *engineImpl) recordVendor(ctx context.Context, t *transition, vendorCode string, action domainwf.Action, from string, to domainwf.VendorStatus, note string) error {
	history := &entity.StatusHistory{
		SubjectType: string(event.SubjectVendor),
		SubjectKey:  vendorCode,
		Action:      action.String(),
		FromStatus:  from,
		ToStatus:    to.String(),
		Actor:       t.actor,
		Note:        note,
		Timestamp:   e.now(),
	}
	if err := e.repos.History.Create(ctx, history); err != nil {
		return fmt.Errorf("failed to create vendor history record: %w", err)
	}
	return nil
}
