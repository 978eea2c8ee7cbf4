package identifier

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/vendor-lifecycle/internal/domain/entity"
)

const (
	referencePrefix   = "RFI-VEN-"
	vendorCodePrefix  = "VNDR"
	referenceSequence = "rfq_reference"
)

// Sequence issues the next value of a named counter, never less than floor+1.
// Calls made inside a transaction are serialized with the rest of its writes.
type Sequence interface {
	Next(ctx context.Context, name string, floor int64) (int64, error)
}

// MaxIDReader reports the largest submission row id
type MaxIDReader interface {
	MaxID(ctx context.Context) (int64, error)
}

// PrefixCounter counts existing vendor codes with a prefix
type PrefixCounter interface {
	CountByCodePrefix(ctx context.Context, prefix string) (int, error)
}

// ReferenceGenerator issues RFI-VEN-NNNNN reference ids
type ReferenceGenerator struct {
	seq  Sequence
	rfqs MaxIDReader
}

// NewReferenceGenerator creates a reference id generator
func NewReferenceGenerator(seq Sequence, rfqs MaxIDReader) *ReferenceGenerator {
	return &ReferenceGenerator{seq: seq, rfqs: rfqs}
}

// Next returns a reference id that has never been issued before
func (g *ReferenceGenerator) Next(ctx context.Context) (string, error) {
	maxID, err := g.rfqs.MaxID(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read max rfq id: %w", err)
	}

	value, err := g.seq.Next(ctx, referenceSequence, maxID)
	if err != nil {
		return "", fmt.Errorf("failed to advance reference sequence: %w", err)
	}

	return FormatReferenceID(value), nil
}

// FormatReferenceID renders a sequence value as a reference id
func FormatReferenceID(value int64) string {
	return fmt.Sprintf("%s%05d", referencePrefix, value)
}

// VendorCodeGenerator issues VNDR/{state}/{fy}/{serial} vendor codes
type VendorCodeGenerator struct {
	seq     Sequence
	vendors PrefixCounter
}

// NewVendorCodeGenerator creates a vendor code generator
func NewVendorCodeGenerator(seq Sequence, vendors PrefixCounter) *VendorCodeGenerator {
	return &VendorCodeGenerator{seq: seq, vendors: vendors}
}

// Prefix returns the code prefix shared by vendors of one state and financial year
func Prefix(stateCode string, at time.Time) string {
	return fmt.Sprintf("%s/%s/%s/", vendorCodePrefix, stateCode, FinancialYear(at))
}

// Next returns the next vendor code for the counterparty's state in the financial year of at
func (g *VendorCodeGenerator) Next(ctx context.Context, counterparty *entity.Counterparty, at time.Time) (string, error) {
	stateCode, err := StateCode(counterparty)
	if err != nil {
		return "", err
	}

	prefix := Prefix(stateCode, at)
	existing, err := g.vendors.CountByCodePrefix(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("failed to count vendor codes for %s: %w", prefix, err)
	}

	serial, err := g.seq.Next(ctx, "vendor_code:"+prefix, int64(existing))
	if err != nil {
		return "", fmt.Errorf("failed to advance vendor code sequence: %w", err)
	}

	return fmt.Sprintf("%s%04d", prefix, serial), nil
}
