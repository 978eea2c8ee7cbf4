package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/garyjia/vendor-lifecycle/internal/application/dispatcher"
	"github.com/garyjia/vendor-lifecycle/internal/application/identifier"
	"github.com/garyjia/vendor-lifecycle/internal/application/port"
	"github.com/garyjia/vendor-lifecycle/internal/domain/entity"
	"github.com/garyjia/vendor-lifecycle/internal/domain/event"
	"github.com/garyjia/vendor-lifecycle/internal/domain/workflow"
)

// RegistrationInput is a new vendor registration request
type RegistrationInput struct {
	EntityID     int64               `json:"entity_id" validate:"gte=0"`
	VendorName   string              `json:"vendor_name" validate:"required,max=200"`
	ContactName  string              `json:"contact_name" validate:"required,max=200"`
	Email        string              `json:"email" validate:"required,email"`
	Mobile       string              `json:"mobile" validate:"omitempty,min=7,max=20"`
	Counterparty entity.Counterparty `json:"counterparty"`
}

// CommentInput is a reviewer note for one review step
type CommentInput struct {
	Step    string `json:"step" validate:"required,max=100"`
	Comment string `json:"comment" validate:"required,max=4000"`
}

// RegistrationResult is the outcome of a committed registration
type RegistrationResult struct {
	RFQ             *entity.RFQ `json:"rfq"`
	NotificationErr error       `json:"-"`
}

// Warning returns a caller-facing message when the registration committed but its email did not go out
func (r *RegistrationResult) Warning() string {
	if r == nil || r.NotificationErr == nil {
		return ""
	}
	return "registration committed but notification delivery failed; it will be retried: " + r.NotificationErr.Error()
}

// RegistrationService handles the editable part of a submission: creation, profile edits and review comments
type RegistrationService interface {
	Register(ctx context.Context, input RegistrationInput, actor string) (*RegistrationResult, error)
	UpdateCounterparty(ctx context.Context, referenceID string, counterparty entity.Counterparty, actor string) (*entity.Counterparty, error)
	AddComment(ctx context.Context, referenceID string, input CommentInput, author string) (*entity.ReviewComment, error)
}

type registrationServiceImpl struct {
	rfqRepo          port.RFQRepository
	counterpartyRepo port.CounterpartyRepository
	commentRepo      port.CommentRepository
	historyRepo      port.HistoryRepository
	txManager        port.TransactionManager
	outbox           port.Outbox
	references       *identifier.ReferenceGenerator
	dispatcher       dispatcher.Dispatcher
	validate         *validator.Validate
	logger           Logger
}

// NewRegistrationService creates a new RegistrationService
func NewRegistrationService(
	rfqRepo port.RFQRepository,
	counterpartyRepo port.CounterpartyRepository,
	commentRepo port.CommentRepository,
	historyRepo port.HistoryRepository,
	sequenceRepo port.SequenceRepository,
	txManager port.TransactionManager,
	outbox port.Outbox,
	eventDispatcher dispatcher.Dispatcher,
	logger Logger,
) RegistrationService {
	return &registrationServiceImpl{
		rfqRepo:          rfqRepo,
		counterpartyRepo: counterpartyRepo,
		commentRepo:      commentRepo,
		historyRepo:      historyRepo,
		txManager:        txManager,
		outbox:           outbox,
		references:       identifier.NewReferenceGenerator(sequenceRepo, rfqRepo),
		dispatcher:       eventDispatcher,
		validate:         validator.New(validator.WithRequiredStructEnabled()),
		logger:           logger,
	}
}

// validationError flattens validator output into an invalid_registration reason
func (s *registrationServiceImpl) validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", workflow.ErrInvalidRegistration, err)
	}
	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", workflow.ErrInvalidRegistration, strings.Join(fields, "; "))
}

func (s *registrationServiceImpl) validateCounterparty(counterparty *entity.Counterparty) error {
	if err := s.validate.Struct(counterparty); err != nil {
		return s.validationError(err)
	}
	// The vendor code needs a state segment, so catch an unusable state at registration
	if _, err := identifier.StateCode(counterparty); err != nil {
		return err
	}
	return nil
}

// Register creates the Initial submission and its profile in one transaction
func (s *registrationServiceImpl) Register(ctx context.Context, input RegistrationInput, actor string) (*RegistrationResult, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, workflow.ErrActorRequired
	}
	if err := s.validate.Struct(input); err != nil {
		return nil, s.validationError(err)
	}
	if err := s.validateCounterparty(&input.Counterparty); err != nil {
		return nil, err
	}

	rfq := &entity.RFQ{
		Status:      workflow.RFQInitial,
		EntityID:    input.EntityID,
		Email:       strings.TrimSpace(input.Email),
		Mobile:      strings.TrimSpace(input.Mobile),
		VendorName:  strings.TrimSpace(input.VendorName),
		ContactName: strings.TrimSpace(input.ContactName),
		CreatedBy:   actor,
	}

	var notificationID int64
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		referenceID, err := s.references.Next(txCtx)
		if err != nil {
			return fmt.Errorf("generate reference id: %w", err)
		}
		rfq.ReferenceID = referenceID

		if err := s.rfqRepo.Create(txCtx, rfq); err != nil {
			return fmt.Errorf("create rfq: %w", err)
		}

		counterparty := input.Counterparty
		counterparty.ReferenceID = referenceID
		if err := s.counterpartyRepo.Create(txCtx, &counterparty); err != nil {
			return fmt.Errorf("create counterparty: %w", err)
		}

		history := &entity.StatusHistory{
			SubjectType: string(event.SubjectRFQ),
			SubjectKey:  referenceID,
			Action:      "register",
			ToStatus:    rfq.Status.String(),
			Actor:       actor,
			Timestamp:   time.Now(),
		}
		if err := s.historyRepo.Create(txCtx, history); err != nil {
			return fmt.Errorf("create history: %w", err)
		}

		if s.outbox != nil {
			notificationID, err = s.outbox.Enqueue(txCtx, port.OutboundMessage{
				Template:    entity.TemplateRegistered,
				Audience:    entity.AudienceVendor,
				SubjectKey:  referenceID,
				VendorEmail: rfq.Email,
				Variables: map[string]string{
					"reference_id": referenceID,
					"vendor_name":  rfq.VendorName,
					"contact_name": rfq.ContactName,
				},
			})
			if err != nil {
				return fmt.Errorf("queue notification: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to register rfq", "vendor_name", input.VendorName, "error", err)
		return nil, err
	}

	s.logger.Info("RFQ registered",
		"reference_id", rfq.ReferenceID,
		"vendor_name", rfq.VendorName,
		"actor", actor,
	)

	result := &RegistrationResult{RFQ: rfq}
	if notificationID > 0 {
		if err := s.outbox.Deliver(ctx, notificationID); err != nil {
			result.NotificationErr = err
		}
	}

	if s.dispatcher != nil {
		evt := event.NewEvent(event.TypeRFQRegistered, event.SubjectRFQ, rfq.ReferenceID, map[string]interface{}{
			event.KeyActor:    actor,
			event.KeyToStatus: rfq.Status.String(),
		})
		s.dispatcher.DispatchAsync(context.WithoutCancel(ctx), evt)
	}

	return result, nil
}

// UpdateCounterparty replaces the profile while the submission is editable
func (s *registrationServiceImpl) UpdateCounterparty(ctx context.Context, referenceID string, counterparty entity.Counterparty, actor string) (*entity.Counterparty, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, workflow.ErrActorRequired
	}
	if err := s.validateCounterparty(&counterparty); err != nil {
		return nil, err
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		rfq, err := s.rfqRepo.GetByReferenceID(txCtx, referenceID)
		if err != nil {
			return fmt.Errorf("get rfq: %w", err)
		}
		if rfq == nil {
			return fmt.Errorf("%w: %s", workflow.ErrRFQNotFound, referenceID)
		}
		if rfq.Status != workflow.RFQInitial && rfq.Status != workflow.RFQSentBack {
			return &workflow.TransitionError{
				Action:  "edit-profile",
				Subject: referenceID,
				From:    rfq.Status.String(),
				Err:     workflow.ErrProfileLocked,
			}
		}

		existing, err := s.counterpartyRepo.GetByReferenceID(txCtx, referenceID)
		if err != nil {
			return fmt.Errorf("get counterparty: %w", err)
		}
		counterparty.ReferenceID = referenceID
		if existing == nil {
			return s.counterpartyRepo.Create(txCtx, &counterparty)
		}
		counterparty.ID = existing.ID
		counterparty.CreatedAt = existing.CreatedAt
		return s.counterpartyRepo.Update(txCtx, &counterparty)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Counterparty updated", "reference_id", referenceID, "actor", actor)
	return &counterparty, nil
}

// AddComment stores a reviewer comment for the next send-back email
func (s *registrationServiceImpl) AddComment(ctx context.Context, referenceID string, input CommentInput, author string) (*entity.ReviewComment, error) {
	if strings.TrimSpace(author) == "" {
		return nil, workflow.ErrActorRequired
	}
	if err := s.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("%w: %v", workflow.ErrCommentRequired, err)
	}

	rfq, err := s.rfqRepo.GetByReferenceID(ctx, referenceID)
	if err != nil {
		return nil, fmt.Errorf("get rfq: %w", err)
	}
	if rfq == nil {
		return nil, fmt.Errorf("%w: %s", workflow.ErrRFQNotFound, referenceID)
	}

	comment := &entity.ReviewComment{
		ReferenceID: referenceID,
		Step:        strings.TrimSpace(input.Step),
		Comment:     strings.TrimSpace(input.Comment),
		Author:      author,
	}
	if err := s.commentRepo.Create(ctx, comment); err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}

	s.logger.Info("Review comment added", "reference_id", referenceID, "step", comment.Step, "author", author)
	return comment, nil
}
