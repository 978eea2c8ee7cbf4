package entity

import (
	"strings"
	"time"
)

// Address is a postal address stored as JSON on the counterparty row
type Address struct {
	Line1      string `json:"line1" validate:"required"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country" validate:"required"`
}

// ContactPerson is one named contact at the counterparty
type ContactPerson struct {
	Name        string `json:"name" validate:"required"`
	Designation string `json:"designation,omitempty"`
	Email       string `json:"email" validate:"required,email"`
	Mobile      string `json:"mobile,omitempty"`
}

// BankDetails holds the payout account of the counterparty
type BankDetails struct {
	AccountName   string `json:"account_name,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	IFSC          string `json:"ifsc,omitempty"`
	BankName      string `json:"bank_name,omitempty"`
}

// Counterparty is the company profile owned by one submission
type Counterparty struct {
	ID                    int64           `json:"id"`
	ReferenceID           string          `json:"reference_id"`
	LegalName             string          `json:"legal_name" validate:"required"`
	EntityType            string          `json:"entity_type" validate:"required"`
	PAN                   string          `json:"pan,omitempty" validate:"omitempty,len=10,alphanum"`
	GSTIN                 string          `json:"gstin,omitempty" validate:"omitempty,len=15,alphanum"`
	CIN                   string          `json:"cin,omitempty"`
	MSMENumber            string          `json:"msme_number,omitempty"`
	Country               string          `json:"country" validate:"required"`
	IndianState           string          `json:"indian_state,omitempty"`
	ForeignState          string          `json:"foreign_state,omitempty"`
	RegisteredAddress     Address         `json:"registered_address"`
	CorrespondenceAddress Address         `json:"correspondence_address" validate:"-"`
	Contacts              []ContactPerson `json:"contacts" validate:"dive"`
	Bank                  BankDetails     `json:"bank" validate:"-"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// IsDomestic reports whether the counterparty is registered in India
func (c *Counterparty) IsDomestic() bool {
	country := strings.ToUpper(strings.TrimSpace(c.Country))
	return country == CountryIndia || country == "INDIA"
}

// Snapshot returns a deep copy of the profile owned by another reference id.
// Only the reference id and row identity differ from the source.
func (c *Counterparty) Snapshot(referenceID string) *Counterparty {
	copied := *c
	copied.ID = 0
	copied.ReferenceID = referenceID
	copied.CreatedAt = time.Time{}
	copied.UpdatedAt = time.Time{}
	if c.Contacts != nil {
		copied.Contacts = make([]ContactPerson, len(c.Contacts))
		copy(copied.Contacts, c.Contacts)
	}
	return &copied
}
