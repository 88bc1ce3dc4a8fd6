package billing

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// =========== Payments ===========

const (
	MethodCash     = "cash"
	MethodCard     = "card"
	MethodTransfer = "transfer"
	MethodHMO      = "hmo"

	PaymentCompleted = "completed"
	PaymentVoided    = "voided"
)

var validMethods = map[string]bool{MethodCash: true, MethodCard: true, MethodTransfer: true, MethodHMO: true}

type Payment struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	Amount      float64    `db:"amount" json:"amount"`
	Method      string     `db:"method" json:"method"`
	Reference   *string    `db:"reference" json:"reference,omitempty"`
	Description *string    `db:"description" json:"description,omitempty"`
	Status      string     `db:"status" json:"status"`
	ReceivedBy  *uuid.UUID `db:"received_by" json:"received_by,omitempty"`
	VoidReason  *string    `db:"void_reason" json:"void_reason,omitempty"`
	VoidedBy    *uuid.UUID `db:"voided_by" json:"voided_by,omitempty"`
	VoidedAt    *time.Time `db:"voided_at" json:"voided_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

type VoidRequest struct {
	Reason string `json:"reason"`
}

// =========== HMO ===========

type HMOProvider struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Code         string    `db:"code" json:"code"`
	ContactEmail *string   `db:"contact_email" json:"contact_email,omitempty"`
	ContactPhone *string   `db:"contact_phone" json:"contact_phone,omitempty"`
	Address      *string   `db:"address" json:"address,omitempty"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

const (
	PreauthPending  = "pending"
	PreauthApproved = "approved"
	PreauthDenied   = "denied"
)

type PreAuthorization struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patient_id"`
	HMOProviderID   uuid.UUID  `db:"hmo_provider_id" json:"hmo_provider_id"`
	ServiceCode     string     `db:"service_code" json:"service_code"`
	Diagnosis       *string    `db:"diagnosis" json:"diagnosis,omitempty"`
	RequestedAmount float64    `db:"requested_amount" json:"requested_amount"`
	Status          string     `db:"status" json:"status"`
	AuthCode        *string    `db:"auth_code" json:"auth_code,omitempty"`
	ValidFrom       *time.Time `db:"valid_from" json:"valid_from,omitempty"`
	ValidUntil      *time.Time `db:"valid_until" json:"valid_until,omitempty"`
	DenialReason    *string    `db:"denial_reason" json:"denial_reason,omitempty"`
	RequestedBy     *uuid.UUID `db:"requested_by" json:"requested_by,omitempty"`
	DecidedBy       *uuid.UUID `db:"decided_by" json:"decided_by,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// UsableAt reports whether the authorization is approved and t falls
// inside its validity window.
func (p *PreAuthorization) UsableAt(t time.Time) bool {
	if p.Status != PreauthApproved || p.ValidFrom == nil || p.ValidUntil == nil {
		return false
	}
	return !t.Before(*p.ValidFrom) && t.Before(*p.ValidUntil)
}

type ApproveRequest struct {
	ValidDays int `json:"valid_days"`
}

type DenyRequest struct {
	Reason string `json:"reason"`
}

// =========== Claims ===========

const (
	ClaimDraft     = "draft"
	ClaimSubmitted = "submitted"
	ClaimApproved  = "approved"
	ClaimRejected  = "rejected"
	ClaimPaid      = "paid"
)

type Claim struct {
	ID              uuid.UUID   `db:"id" json:"id"`
	ClaimNumber     string      `db:"claim_number" json:"claim_number"`
	PatientID       uuid.UUID   `db:"patient_id" json:"patient_id"`
	HMOProviderID   uuid.UUID   `db:"hmo_provider_id" json:"hmo_provider_id"`
	PreauthID       *uuid.UUID  `db:"preauth_id" json:"preauth_id,omitempty"`
	Status          string      `db:"status" json:"status"`
	TotalAmount     float64     `db:"total_amount" json:"total_amount"`
	CopayAmount     float64     `db:"copay_amount" json:"copay_amount"`
	ClaimAmount     float64     `db:"claim_amount" json:"claim_amount"`
	SubmittedAt     *time.Time  `db:"submitted_at" json:"submitted_at,omitempty"`
	DecidedAt       *time.Time  `db:"decided_at" json:"decided_at,omitempty"`
	RejectionReason *string     `db:"rejection_reason" json:"rejection_reason,omitempty"`
	Notes           *string     `db:"notes" json:"notes,omitempty"`
	CreatedBy       *uuid.UUID  `db:"created_by" json:"created_by,omitempty"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updated_at"`
	Items           []ClaimItem `db:"-" json:"items"`
}

type ClaimItem struct {
	ID          uuid.UUID `db:"id" json:"id"`
	ClaimID     uuid.UUID `db:"claim_id" json:"claim_id"`
	ServiceCode string    `db:"service_code" json:"service_code"`
	Description *string   `db:"description" json:"description,omitempty"`
	Quantity    int       `db:"quantity" json:"quantity"`
	UnitPrice   float64   `db:"unit_price" json:"unit_price"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

func (i ClaimItem) LineTotal() float64 {
	return round2(float64(i.Quantity) * i.UnitPrice)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ClaimTotals returns the sum of the line totals and the amount claimed
// from the HMO after the patient's copay.
func ClaimTotals(items []ClaimItem, copay float64) (total, claim float64) {
	for _, it := range items {
		total += it.LineTotal()
	}
	total = round2(total)
	return total, round2(total - copay)
}

// ClaimUpdate carries the header fields editable while a claim is a draft.
type ClaimUpdate struct {
	CopayAmount *float64   `json:"copay_amount"`
	PreauthID   *uuid.UUID `json:"preauth_id"`
	Notes       *string    `json:"notes"`
}

type ClaimStatusChange struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// =========== Service Codes ===========

// ServiceCode is an NHIS tariff entry.
type ServiceCode struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Code        string    `db:"code" json:"code"`
	Description string    `db:"description" json:"description"`
	Category    *string   `db:"category" json:"category,omitempty"`
	Tariff      float64   `db:"tariff" json:"tariff"`
	Active      bool      `db:"active" json:"active"`
}

// =========== Dashboard ===========

// PaymentAggregate is one (status, method) group of payments.
type PaymentAggregate struct {
	Status string
	Method string
	Count  int
	Amount float64
}

// ClaimAggregate is one status group of claims.
type ClaimAggregate struct {
	Status string
	Count  int
	Amount float64
}

type Dashboard struct {
	From              time.Time          `json:"from"`
	To                time.Time          `json:"to"`
	TotalRevenue      float64            `json:"total_revenue"`
	RevenueByMethod   map[string]float64 `json:"revenue_by_method"`
	PaymentCount      int                `json:"payment_count"`
	VoidedCount       int                `json:"voided_count"`
	ClaimsByStatus    map[string]int     `json:"claims_by_status"`
	OutstandingClaims float64            `json:"outstanding_claims"`
	GeneratedAt       time.Time          `json:"generated_at"`
}

// BuildDashboard folds aggregates into the dashboard totals. Revenue counts
// completed payments only; claims awaiting a decision or payment are
// outstanding.
func BuildDashboard(payments []PaymentAggregate, claims []ClaimAggregate) *Dashboard {
	d := &Dashboard{
		RevenueByMethod: make(map[string]float64),
		ClaimsByStatus:  make(map[string]int),
	}
	for _, p := range payments {
		if p.Status == PaymentVoided {
			d.VoidedCount += p.Count
			continue
		}
		d.RevenueByMethod[p.Method] = round2(d.RevenueByMethod[p.Method] + p.Amount)
		d.TotalRevenue = round2(d.TotalRevenue + p.Amount)
		d.PaymentCount += p.Count
	}
	for _, c := range claims {
		d.ClaimsByStatus[c.Status] += c.Count
		if c.Status == ClaimSubmitted || c.Status == ClaimApproved {
			d.OutstandingClaims = round2(d.OutstandingClaims + c.Amount)
		}
	}
	return d
}
