package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind discriminates the four job variants.
type Kind string

// Job kinds follow the action-entity naming used on the wire.
const (
	KindFetchAccountData Kind = "fetch-account-data"
	KindFetchInvoice     Kind = "fetch-invoice"
	KindPayInvoice       Kind = "pay-invoice"
	KindRejectInvoice    Kind = "reject-invoice"
)

// Kinds lists every supported job kind.
func Kinds() []Kind {
	return []Kind{KindFetchAccountData, KindFetchInvoice, KindPayInvoice, KindRejectInvoice}
}

// Valid reports whether k is a known job kind.
func (k Kind) Valid() bool {
	switch k {
	case KindFetchAccountData, KindFetchInvoice, KindPayInvoice, KindRejectInvoice:
		return true
	}
	return false
}

// InvoiceStatus filters invoices returned by a provider.
type InvoiceStatus string

const (
	InvoiceStatusUnpaid InvoiceStatus = "unpaid"
	InvoiceStatusPaid   InvoiceStatus = "paid"
	InvoiceStatusAll    InvoiceStatus = "all"
)

// Valid reports whether s is a known invoice status.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusUnpaid, InvoiceStatusPaid, InvoiceStatusAll:
		return true
	}
	return false
}

// Target identifies the provider account a job operates on.
type Target struct {
	Provider        string
	AccountContract string
}

// Payload is a validated job variant. Only the types in this file implement it,
// so every Payload carries the fields its kind requires.
type Payload interface {
	Kind() Kind
	Target() Target
	isPayload()
}

// FetchAccountData asks a provider for the account balance.
type FetchAccountData struct {
	Account Target
}

// FetchInvoice lists invoices in the given status.
type FetchInvoice struct {
	Account Target
	Status  InvoiceStatus
}

// PayInvoice pays Amount towards InvoiceNumber.
type PayInvoice struct {
	Account       Target
	InvoiceNumber string
	Amount        float64
}

// RejectInvoice disputes InvoiceNumber.
type RejectInvoice struct {
	Account       Target
	InvoiceNumber string
	Reason        string
}

func (FetchAccountData) Kind() Kind { return KindFetchAccountData }
func (FetchInvoice) Kind() Kind     { return KindFetchInvoice }
func (PayInvoice) Kind() Kind       { return KindPayInvoice }
func (RejectInvoice) Kind() Kind    { return KindRejectInvoice }

func (p FetchAccountData) Target() Target { return p.Account }
func (p FetchInvoice) Target() Target     { return p.Account }
func (p PayInvoice) Target() Target       { return p.Account }
func (p RejectInvoice) Target() Target    { return p.Account }

func (FetchAccountData) isPayload() {}
func (FetchInvoice) isPayload()     {}
func (PayInvoice) isPayload()       {}
func (RejectInvoice) isPayload()    {}

// Request is the flat wire shape of a job: what callers submit and what the
// store keeps as the job's data.
type Request struct {
	Type            Kind          `json:"type"`
	Provider        string        `json:"provider"`
	AccountContract string        `json:"accountContract"`
	Status          InvoiceStatus `json:"status,omitempty"`
	InvoiceNumber   string        `json:"invoiceNumber,omitempty"`
	Amount          *float64      `json:"amount,omitempty"`
	Reason          string        `json:"reason,omitempty"`
}

// Payload validates the request and converts it to its typed variant.
func (r Request) Payload() (Payload, error) {
	if r.Type == "" {
		return nil, NewValidationError("type", "type is required")
	}
	if !r.Type.Valid() {
		return nil, NewValidationError("type", "type must be one of %s", KindNames())
	}
	if strings.TrimSpace(r.Provider) == "" {
		return nil, NewValidationError("provider", "provider is required")
	}
	if strings.TrimSpace(r.AccountContract) == "" {
		return nil, NewValidationError("accountContract", "accountContract is required")
	}

	target := Target{Provider: r.Provider, AccountContract: r.AccountContract}

	switch r.Type {
	case KindFetchAccountData:
		return FetchAccountData{Account: target}, nil

	case KindFetchInvoice:
		status := r.Status
		if status == "" {
			status = InvoiceStatusUnpaid
		}
		if !status.Valid() {
			return nil, NewValidationError("status", "status must be one of unpaid, paid, all")
		}
		return FetchInvoice{Account: target, Status: status}, nil

	case KindPayInvoice:
		if r.InvoiceNumber == "" || r.Amount == nil {
			return nil, NewValidationError("invoiceNumber", "pay-invoice requires invoiceNumber and amount")
		}
		if *r.Amount <= 0 {
			return nil, NewValidationError("amount", "amount must be greater than 0")
		}
		return PayInvoice{Account: target, InvoiceNumber: r.InvoiceNumber, Amount: *r.Amount}, nil

	case KindRejectInvoice:
		if r.InvoiceNumber == "" || r.Reason == "" {
			return nil, NewValidationError("invoiceNumber", "reject-invoice requires invoiceNumber and reason")
		}
		return RejectInvoice{Account: target, InvoiceNumber: r.InvoiceNumber, Reason: r.Reason}, nil
	}

	return nil, &UnknownJobKindError{Kind: r.Type}
}

// RequestFor converts a typed payload back to its wire shape.
func RequestFor(p Payload) Request {
	t := p.Target()
	req := Request{
		Type:            p.Kind(),
		Provider:        t.Provider,
		AccountContract: t.AccountContract,
	}

	switch v := p.(type) {
	case FetchInvoice:
		req.Status = v.Status
	case PayInvoice:
		amount := v.Amount
		req.InvoiceNumber = v.InvoiceNumber
		req.Amount = &amount
	case RejectInvoice:
		req.InvoiceNumber = v.InvoiceNumber
		req.Reason = v.Reason
	}

	return req
}

// EncodePayload marshals a payload into the JSON stored as job data.
func EncodePayload(p Payload) ([]byte, error) {
	data, err := json.Marshal(RequestFor(p))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return data, nil
}

// DecodePayload parses stored job data. Unknown kinds are reported with
// ErrUnknownJobKind; anything else malformed wraps ErrInvalidPayload.
func DecodePayload(data []byte) (Payload, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if req.Type != "" && !req.Type.Valid() {
		return nil, &UnknownJobKindError{Kind: req.Type}
	}

	p, err := req.Payload()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return p, nil
}

// KindNames lists the job kinds as a comma-separated string.
func KindNames() string {
	kinds := Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
