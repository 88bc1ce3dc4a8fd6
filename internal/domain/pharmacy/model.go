package pharmacy

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	StatusActive    = "active"
	StatusDispensed = "dispensed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

const (
	DispenseFill    = "fill"
	DispenseRefill  = "refill"
	DispensePartial = "partial"

	DispenseDraft = "draft"
	DispenseFinal = "final"
)

// Medication is one line of a prescription.
type Medication struct {
	Name      string `json:"name"`
	Code      string `json:"code,omitempty"`
	Dosage    string `json:"dosage"`
	Frequency string `json:"frequency"`
	Duration  string `json:"duration,omitempty"`
	Quantity  int    `json:"quantity"`
}

// Key identifies the medication within its prescription: the drug code
// when present, otherwise the lower-cased name.
func (m Medication) Key() string {
	if m.Code != "" {
		return m.Code
	}
	return strings.ToLower(strings.TrimSpace(m.Name))
}

type Prescription struct {
	ID             uuid.UUID    `db:"id" json:"id"`
	PatientID      uuid.UUID    `db:"patient_id" json:"patient_id"`
	PrescribedBy   uuid.UUID    `db:"prescribed_by" json:"prescribed_by"`
	AppointmentID  *uuid.UUID   `db:"appointment_id" json:"appointment_id,omitempty"`
	Medications    []Medication `db:"medications" json:"medications"`
	Status         string       `db:"status" json:"status"`
	RefillsAllowed int          `db:"refills_allowed" json:"refills_allowed"`
	RefillsUsed    int          `db:"refills_used" json:"refills_used"`
	// Delivered counts units handed over, per medication key, in the fill or
	// refill that is still short. It is empty between complete deliveries.
	Delivered map[string]int `db:"delivered" json:"delivered,omitempty"`
	Notes     *string        `db:"notes" json:"notes,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

// Outstanding is how many units of m are still owed in the current fill or
// refill.
func (p *Prescription) Outstanding(m Medication) int {
	if owed := m.Quantity - p.Delivered[m.Key()]; owed > 0 {
		return owed
	}
	return 0
}

// RxState is the dispensing state written back after a final dispense.
type RxState struct {
	Status      string
	RefillsUsed int
	Delivered   map[string]int
}

func (p *Prescription) RemainingRefills() int {
	if r := p.RefillsAllowed - p.RefillsUsed; r > 0 {
		return r
	}
	return 0
}

// DrugStock is the pharmacy's on-hand quantity of one drug code.
type DrugStock struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	DrugCode     string     `db:"drug_code" json:"drug_code"`
	DrugName     string     `db:"drug_name" json:"drug_name"`
	Form         *string    `db:"form" json:"form,omitempty"`
	Strength     *string    `db:"strength" json:"strength,omitempty"`
	Quantity     int        `db:"quantity" json:"quantity"`
	ReorderLevel int        `db:"reorder_level" json:"reorder_level"`
	UnitPrice    float64    `db:"unit_price" json:"unit_price"`
	ExpiryDate   *time.Time `db:"expiry_date" json:"expiry_date,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

type RestockRequest struct {
	Quantity int `json:"quantity"`
}

// DispenseItem records what was handed over for one medication.
type DispenseItem struct {
	Key        string `json:"key"`
	Name       string `json:"name"`
	Code       string `json:"code,omitempty"`
	Prescribed int    `json:"prescribed"`
	Dispensed  int    `json:"dispensed"`
	// Remaining is what is still owed for this line after the dispense.
	Remaining int  `json:"remaining"`
	Scanned   bool `json:"scanned"`
}

type Dispense struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	PrescriptionID uuid.UUID      `db:"prescription_id" json:"prescription_id"`
	PatientID      uuid.UUID      `db:"patient_id" json:"patient_id"`
	PharmacistID   uuid.UUID      `db:"pharmacist_id" json:"pharmacist_id"`
	DispenseType   string         `db:"dispense_type" json:"dispense_type"`
	Status         string         `db:"status" json:"status"`
	Items          []DispenseItem `db:"items" json:"items"`
	Checks         []string       `db:"checks" json:"checks"`
	Counseling     *string        `db:"counseling" json:"counseling,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	FinalizedAt    *time.Time     `db:"finalized_at" json:"finalized_at,omitempty"`
}

// DispenseRequest is the submitted state of the dispense wizard.
type DispenseRequest struct {
	PrescriptionID   uuid.UUID  `json:"prescription_id"`
	Final            bool       `json:"final"`
	Scanned          []string   `json:"scanned"`
	Checks           []string   `json:"checks"`
	CounselingNotes  string     `json:"counseling_notes"`
	CounselingPoints []string   `json:"counseling_points"`
	DraftID          *uuid.UUID `json:"draft_id,omitempty"`
}

// =========== Review ===========

type ReviewItem struct {
	Medication  Medication `json:"medication"`
	Outstanding int        `json:"outstanding"`
	InStock     int        `json:"in_stock"`
	Short       bool       `json:"short"`
}

type AllergyAlert struct {
	Medication string `json:"medication"`
	Allergen   string `json:"allergen"`
}

type InteractionAlert struct {
	MedicationA string `json:"medication_a"`
	MedicationB string `json:"medication_b"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// Review is what the pharmacist sees before verifying a dispense.
type Review struct {
	Prescription     *Prescription      `json:"prescription"`
	DispenseType     string             `json:"dispense_type"`
	RemainingRefills int                `json:"remaining_refills"`
	Items            []ReviewItem       `json:"items"`
	Allergies        []AllergyAlert     `json:"allergy_alerts"`
	Interactions     []InteractionAlert `json:"interaction_alerts"`
}

// HasAlerts reports whether any allergy or interaction was found.
func (r *Review) HasAlerts() bool {
	return len(r.Allergies) > 0 || len(r.Interactions) > 0
}
