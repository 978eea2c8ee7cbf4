package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/vendor-lifecycle/internal/application/port"
	"github.com/garyjia/vendor-lifecycle/internal/domain/entity"
	"go.uber.org/zap"
)

// CounterpartyRepository implements port.CounterpartyRepository.
// Addresses, contacts and bank details live in JSON columns.
type CounterpartyRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCounterpartyRepository creates a new counterparty repository
func NewCounterpartyRepository(db *sql.DB, logger *zap.Logger) port.CounterpartyRepository {
	return &CounterpartyRepository{
		db:     db,
		logger: logger,
	}
}

type counterpartyDocs struct {
	registered     string
	correspondence string
	contacts       string
	bank           string
}

func encodeCounterparty(c *entity.Counterparty) (counterpartyDocs, error) {
	var docs counterpartyDocs
	for _, field := range []struct {
		dst *string
		src interface{}
	}{
		{&docs.registered, c.RegisteredAddress},
		{&docs.correspondence, c.CorrespondenceAddress},
		{&docs.contacts, c.Contacts},
		{&docs.bank, c.Bank},
	} {
		data, err := json.Marshal(field.src)
		if err != nil {
			return docs, fmt.Errorf("failed to encode counterparty: %w", err)
		}
		*field.dst = string(data)
	}
	return docs, nil
}

// Create inserts the profile owned by one reference id
func (r *CounterpartyRepository) Create(ctx context.Context, c *entity.Counterparty) error {
	docs, err := encodeCounterparty(c)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO counterparties (
			reference_id, legal_name, entity_type, pan, gstin, cin, msme_number,
			country, indian_state, foreign_state, registered_address,
			correspondence_address, contacts, bank_details, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	result, err := executor(ctx, r.db).ExecContext(ctx, query,
		c.ReferenceID,
		c.LegalName,
		c.EntityType,
		c.PAN,
		c.GSTIN,
		c.CIN,
		c.MSMENumber,
		c.Country,
		c.IndianState,
		c.ForeignState,
		docs.registered,
		docs.correspondence,
		docs.contacts,
		docs.bank,
		now,
		now,
	)
	if err != nil {
		r.logger.Error("Failed to create counterparty", zap.String("reference_id", c.ReferenceID), zap.Error(err))
		return fmt.Errorf("failed to create counterparty: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	c.ID = id
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

// GetByReferenceID retrieves the profile of a submission, nil when absent
func (r *CounterpartyRepository) GetByReferenceID(ctx context.Context, referenceID string) (*entity.Counterparty, error) {
	query := `
		SELECT id, reference_id, legal_name, entity_type, pan, gstin, cin, msme_number,
			country, indian_state, foreign_state, registered_address,
			correspondence_address, contacts, bank_details, created_at, updated_at
		FROM counterparties
		WHERE reference_id = ?
	`

	var (
		c    entity.Counterparty
		docs counterpartyDocs
	)
	err := executor(ctx, r.db).QueryRowContext(ctx, query, referenceID).Scan(
		&c.ID,
		&c.ReferenceID,
		&c.LegalName,
		&c.EntityType,
		&c.PAN,
		&c.GSTIN,
		&c.CIN,
		&c.MSMENumber,
		&c.Country,
		&c.IndianState,
		&c.ForeignState,
		&docs.registered,
		&docs.correspondence,
		&docs.contacts,
		&docs.bank,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get counterparty", zap.String("reference_id", referenceID), zap.Error(err))
		return nil, fmt.Errorf("failed to get counterparty: %w", err)
	}

	for _, field := range []struct {
		src string
		dst interface{}
	}{
		{docs.registered, &c.RegisteredAddress},
		{docs.correspondence, &c.CorrespondenceAddress},
		{docs.contacts, &c.Contacts},
		{docs.bank, &c.Bank},
	} {
		if field.src == "" {
			continue
		}
		if err := json.Unmarshal([]byte(field.src), field.dst); err != nil {
			return nil, fmt.Errorf("failed to decode counterparty %s: %w", referenceID, err)
		}
	}
	return &c, nil
}

// Update overwrites the editable fields of a profile
func (r *CounterpartyRepository) Update(ctx context.Context, c *entity.Counterparty) error {
	docs, err := encodeCounterparty(c)
	if err != nil {
		return err
	}

	query := `
		UPDATE counterparties
		SET legal_name = ?, entity_type = ?, pan = ?, gstin = ?, cin = ?, msme_number = ?,
			country = ?, indian_state = ?, foreign_state = ?, registered_address = ?,
			correspondence_address = ?, contacts = ?, bank_details = ?, updated_at = ?
		WHERE reference_id = ?
	`

	now := time.Now().UTC()
	result, err := executor(ctx, r.db).ExecContext(ctx, query,
		c.LegalName,
		c.EntityType,
		c.PAN,
		c.GSTIN,
		c.CIN,
		c.MSMENumber,
		c.Country,
		c.IndianState,
		c.ForeignState,
		docs.registered,
		docs.correspondence,
		docs.contacts,
		docs.bank,
		now,
		c.ReferenceID,
	)
	if err != nil {
		r.logger.Error("Failed to update counterparty", zap.String("reference_id", c.ReferenceID), zap.Error(err))
		return fmt.Errorf("failed to update counterparty: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("counterparty not found: %s", c.ReferenceID)
	}

	c.UpdatedAt = now
	return nil
}

var _ port.CounterpartyRepository = (*CounterpartyRepository)(nil)
