package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/vendor-lifecycle/internal/application/port"
	"github.com/garyjia/vendor-lifecycle/internal/domain/entity"
	"github.com/garyjia/vendor-lifecycle/internal/domain/event"
	domainwf "github.com/garyjia/vendor-lifecycle/internal/domain/workflow"
)

var vendorTemplates = map[domainwf.Action]string{
	domainwf.ActionBlock:    entity.TemplateBlocked,
	domainwf.ActionSuspend:  entity.TemplateSuspended,
	domainwf.ActionActivate: entity.TemplateActivated,
}

func requireVendorInput(vendorCode, actor string) error {
	if strings.TrimSpace(actor) == "" {
		return domainwf.ErrActorRequired
	}
	if strings.TrimSpace(vendorCode) == "" {
		return domainwf.ErrVendorCodeRequired
	}
	return nil
}

func (e *engineImpl) loadVendor(ctx context.Context, t *transition, vendorCode string) (*entity.Vendor, error) {
	vendor, err := e.repos.Vendors.GetByCode(ctx, vendorCode)
	if err != nil {
		return nil, fmt.Errorf("failed to get vendor %s: %w", vendorCode, err)
	}
	if vendor == nil {
		return nil, fmt.Errorf("%w: %s", domainwf.ErrVendorNotFound, vendorCode)
	}
	e.bindVendor(t, vendor)
	return vendor, nil
}

func (e *engineImpl) bindVendor(t *transition, vendor *entity.Vendor) {
	t.subject = event.SubjectVendor
	t.subjectKey = vendor.VendorCode
	t.from = vendor.Status.String()
	t.result.VendorCode = vendor.VendorCode
}

// Block bars a vendor from doing business
func (e *engineImpl) Block(ctx context.Context, vendorCode, actor string) (*Result, error) {
	return e.changeVendorStatus(ctx, domainwf.ActionBlock, vendorCode, actor)
}

// Suspend pauses a vendor
func (e *engineImpl) Suspend(ctx context.Context, vendorCode, actor string) (*Result, error) {
	return e.changeVendorStatus(ctx, domainwf.ActionSuspend, vendorCode, actor)
}

// Activate restores a blocked or suspended vendor
func (e *engineImpl) Activate(ctx context.Context, vendorCode, actor string) (*Result, error) {
	return e.changeVendorStatus(ctx, domainwf.ActionActivate, vendorCode, actor)
}

func (e *engineImpl) changeVendorStatus(ctx context.Context, action domainwf.Action, vendorCode, actor string) (*Result, error) {
	if err := requireVendorInput(vendorCode, actor); err != nil {
		return nil, err
	}

	return e.run(ctx, action, actor, func(txCtx context.Context, t *transition) error {
		vendor, err := e.loadVendor(txCtx, t, vendorCode)
		if err != nil {
			return err
		}

		machine := BuildVendorStateMachine(vendor.Status, VendorGuards{})
		if err := machine.Fire(txCtx, action); err != nil {
			return subjectError(err, vendor.VendorCode)
		}

		vendor.Status = machine.State()
		if err := e.repos.Vendors.SetStatus(txCtx, vendor); err != nil {
			return fmt.Errorf("failed to update vendor %s: %w", vendor.VendorCode, err)
		}
		t.to = vendor.Status.String()
		t.result.VendorStatus = t.to

		if err := e.record(txCtx, t, action, ""); err != nil {
			return err
		}
		return e.notify(txCtx, t, port.OutboundMessage{
			Template:    vendorTemplates[action],
			Audience:    entity.AudienceVendor,
			SubjectKey:  vendor.VendorCode,
			VendorEmail: vendor.Email,
			Variables: map[string]string{
				"vendor_code": vendor.VendorCode,
				"vendor_name": vendor.VendorName,
				"status":      vendor.Status.String(),
				"actor":       actor,
			},
		})
	})
}

// Reinitiate opens a renewal submission for a vendor.
// The vendor keeps its status and active submission until the renewal is approved.
func (e *engineImpl) Reinitiate(ctx context.Context, vendorCode, referenceID, actor string) (*Result, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, domainwf.ErrActorRequired
	}
	if strings.TrimSpace(vendorCode) == "" && strings.TrimSpace(referenceID) == "" {
		return nil, domainwf.ErrVendorCodeRequired
	}

	return e.run(ctx, domainwf.ActionReinitiate, actor, func(txCtx context.Context, t *transition) error {
		vendor, err := e.resolveReinitiateVendor(txCtx, t, vendorCode, referenceID)
		if err != nil {
			return err
		}

		var source *entity.RFQ
		guards := VendorGuards{Reinitiate: func(ctx context.Context) error {
			inFlight, err := e.repos.RFQs.CountInFlightByVendor(ctx, vendor.ID)
			if err != nil {
				return fmt.Errorf("failed to count in-flight rfqs: %w", err)
			}
			if inFlight > 0 {
				return domainwf.ErrReinitiationInProgress
			}

			source, err = e.sourceRFQ(ctx, vendor)
			if err != nil {
				return err
			}
			if source.ExpiryDate == nil {
				return nil
			}
			days := daysBetween(e.today(), *source.ExpiryDate)
			if days > e.renewalDays {
				return fmt.Errorf("%w: %d days to expiry, window is %d", domainwf.ErrOutsideRenewalWindow, days, e.renewalDays)
			}
			return nil
		}}

		machine := BuildVendorStateMachine(vendor.Status, guards)
		if err := machine.Fire(txCtx, domainwf.ActionReinitiate); err != nil {
			return subjectError(err, vendor.VendorCode)
		}
		t.to = machine.State().String()
		t.result.VendorStatus = t.to

		newRef, err := e.references.Next(txCtx)
		if err != nil {
			return fmt.Errorf("failed to generate reference id: %w", err)
		}

		renewal := source.Renewal(newRef, t.actor)
		if renewal.VendorID == nil {
			vendorID := vendor.ID
			renewal.VendorID = &vendorID
		}
		if err := e.repos.RFQs.Create(txCtx, renewal); err != nil {
			return fmt.Errorf("failed to create rfq %s: %w", newRef, err)
		}

		counterparty, err := e.repos.Counterparties.GetByReferenceID(txCtx, source.ReferenceID)
		if err != nil {
			return fmt.Errorf("failed to get counterparty %s: %w", source.ReferenceID, err)
		}
		if counterparty == nil {
			return fmt.Errorf("%w: %s", domainwf.ErrCounterpartyNotFound, source.ReferenceID)
		}
		if err := e.repos.Counterparties.Create(txCtx, counterparty.Snapshot(newRef)); err != nil {
			return fmt.Errorf("failed to copy counterparty to %s: %w", newRef, err)
		}

		t.result.NewReferenceID = newRef
		t.result.ReferenceID = source.ReferenceID
		t.result.RFQStatus = renewal.Status.String()

		if err := e.record(txCtx, t, domainwf.ActionReinitiate, "renewal "+newRef); err != nil {
			return err
		}
		created := &entity.StatusHistory{
			SubjectType: string(event.SubjectRFQ),
			SubjectKey:  newRef,
			Action:      domainwf.ActionReinitiate.String(),
			ToStatus:    renewal.Status.String(),
			Actor:       t.actor,
			Note:        "re-initiated from " + source.ReferenceID,
			Timestamp:   e.now(),
		}
		if err := e.repos.History.Create(txCtx, created); err != nil {
			return fmt.Errorf("failed to create history record: %w", err)
		}

		email := renewal.Email
		if email == "" {
			email = vendor.Email
		}
		vars := map[string]string{
			"vendor_code":         vendor.VendorCode,
			"vendor_name":         vendor.VendorName,
			"new_reference_id":    newRef,
			"source_reference_id": source.ReferenceID,
			"actor":               t.actor,
		}
		if source.ExpiryDate != nil {
			vars["expiry_date"] = source.ExpiryDate.Format(time.DateOnly)
		}
		return e.notify(txCtx, t, port.OutboundMessage{
			Template:    entity.TemplateReinitiated,
			Audience:    entity.AudienceBoth,
			SubjectKey:  newRef,
			VendorEmail: email,
			Variables:   vars,
		})
	})
}

// resolveReinitiateVendor finds the vendor by code, or through a submission when only a reference id is given.
// A submission that never reached approval has no vendor code to renew.
func (e *engineImpl) resolveReinitiateVendor(ctx context.Context, t *transition, vendorCode, referenceID string) (*entity.Vendor, error) {
	if strings.TrimSpace(vendorCode) != "" {
		vendor, err := e.loadVendor(ctx, t, vendorCode)
		if err != nil {
			return nil, err
		}
		return vendor, nil
	}

	t.subject = event.SubjectRFQ
	t.subjectKey = referenceID
	rfq, err := e.repos.RFQs.GetByReferenceID(ctx, referenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get rfq %s: %w", referenceID, err)
	}
	if rfq == nil {
		return nil, fmt.Errorf("%w: %s", domainwf.ErrRFQNotFound, referenceID)
	}

	missing := &domainwf.TransitionError{
		Action:  domainwf.ActionReinitiate,
		Subject: referenceID,
		From:    rfq.Status.String(),
		Err:     domainwf.ErrVendorCodeMissing,
	}
	if !rfq.HasVendor() {
		return nil, missing
	}

	vendor, err := e.repos.Vendors.GetByID(ctx, *rfq.VendorID)
	if err != nil {
		return nil, fmt.Errorf("failed to get vendor %d: %w", *rfq.VendorID, err)
	}
	if vendor == nil {
		return nil, fmt.Errorf("%w: id %d linked from %s", domainwf.ErrVendorNotFound, *rfq.VendorID, referenceID)
	}
	if vendor.VendorCode == "" {
		return nil, missing
	}

	e.bindVendor(t, vendor)
	return vendor, nil
}

// sourceRFQ picks the submission a renewal copies from: the active one,
// else the latest approved one, else the latest of any status
func (e *engineImpl) sourceRFQ(ctx context.Context, vendor *entity.Vendor) (*entity.RFQ, error) {
	if vendor.ActiveRFQ != nil {
		rfq, err := e.repos.RFQs.GetByID(ctx, *vendor.ActiveRFQ)
		if err != nil {
			return nil, fmt.Errorf("failed to get active rfq of %s: %w", vendor.VendorCode, err)
		}
		if rfq != nil {
			return rfq, nil
		}
	}

	rfqs, err := e.repos.RFQs.ListByVendor(ctx, vendor.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rfqs of %s: %w", vendor.VendorCode, err)
	}
	if len(rfqs) == 0 {
		return nil, domainwf.ErrNoSourceRFQ
	}
	for _, rfq := range rfqs {
		if rfq.Status == domainwf.RFQApproved {
			return rfq, nil
		}
	}
	return rfqs[0], nil
}
