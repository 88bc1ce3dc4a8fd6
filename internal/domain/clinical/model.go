package clinical

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	RecordTypeConsultNote = "consult_note"

	StatusDraft = "draft"
	StatusFinal = "final"
)

type MedicalRecord struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patient_id"`
	ProviderID      uuid.UUID  `db:"provider_id" json:"provider_id"`
	AppointmentID   *uuid.UUID `db:"appointment_id" json:"appointment_id,omitempty"`
	RecordType      string     `db:"record_type" json:"record_type"`
	Title           string     `db:"title" json:"title"`
	Content         string     `db:"content" json:"content"`
	Status          string     `db:"status" json:"status"`
	AmendmentReason *string    `db:"amendment_reason" json:"amendment_reason,omitempty"`
	FinalizedAt     *time.Time `db:"finalized_at" json:"finalized_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`

	// SOAP is the decoded content of a consult note.
	SOAP *SOAPNote `db:"-" json:"soap,omitempty"`
}

// SOAPNote is the structured body of a consult note.
type SOAPNote struct {
	Subjective string `json:"subjective"`
	Objective  string `json:"objective"`
	Assessment string `json:"assessment"`
	Plan       string `json:"plan"`
}

// Missing returns the names of empty SOAP sections in order.
func (n *SOAPNote) Missing() []string {
	var missing []string
	for _, f := range []struct{ name, val string }{
		{"subjective", n.Subjective},
		{"objective", n.Objective},
		{"assessment", n.Assessment},
		{"plan", n.Plan},
	} {
		if strings.TrimSpace(f.val) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

func (n *SOAPNote) Encode() (string, error) {
	b, err := json.Marshal(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeSOAP parses a consult note's content. Content that is not a SOAP
// object yields nil.
func DecodeSOAP(content string) *SOAPNote {
	var n SOAPNote
	if err := json.Unmarshal([]byte(content), &n); err != nil {
		return nil
	}
	return &n
}

// RecordUpdate carries the editable fields of a medical record.
type RecordUpdate struct {
	Title           *string   `json:"title"`
	Content         *string   `json:"content"`
	SOAP            *SOAPNote `json:"soap"`
	Status          *string   `json:"status"`
	AmendmentReason *string   `json:"amendment_reason"`
}

// =========== Vital Signs ===========

type VitalSigns struct {
	ID               uuid.UUID `db:"id" json:"id"`
	PatientID        uuid.UUID `db:"patient_id" json:"patient_id"`
	RecordedBy       uuid.UUID `db:"recorded_by" json:"recorded_by"`
	RecordedAt       time.Time `db:"recorded_at" json:"recorded_at"`
	SystolicBP       *int      `db:"systolic_bp" json:"systolic_bp,omitempty"`
	DiastolicBP      *int      `db:"diastolic_bp" json:"diastolic_bp,omitempty"`
	HeartRate        *int      `db:"heart_rate" json:"heart_rate,omitempty"`
	Temperature      *float64  `db:"temperature" json:"temperature,omitempty"`
	RespiratoryRate  *int      `db:"respiratory_rate" json:"respiratory_rate,omitempty"`
	OxygenSaturation *float64  `db:"oxygen_saturation" json:"oxygen_saturation,omitempty"`
	Weight           *float64  `db:"weight" json:"weight,omitempty"`
	Height           *float64  `db:"height" json:"height,omitempty"`
	BMI              *float64  `db:"bmi" json:"bmi,omitempty"`
	Notes            *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// ComputeBMI returns weight (kg) over height (m) squared, rounded to one
// decimal. Height is given in centimetres.
func ComputeBMI(weightKg, heightCm float64) float64 {
	m := heightCm / 100
	return math.Round(weightKg/(m*m)*10) / 10
}

// HasMeasurement reports whether at least one vital was captured.
func (v *VitalSigns) HasMeasurement() bool {
	return v.SystolicBP != nil || v.DiastolicBP != nil || v.HeartRate != nil ||
		v.Temperature != nil || v.RespiratoryRate != nil || v.OxygenSaturation != nil ||
		v.Weight != nil || v.Height != nil
}
