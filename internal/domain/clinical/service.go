package clinical

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/apperror"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
)

// PatientDirectory checks that a referenced patient exists.
type PatientDirectory interface {
	PatientExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// ChangeRecorder keeps before and after snapshots of an edited resource.
type ChangeRecorder interface {
	RecordChange(ctx context.Context, resourceType string, id uuid.UUID, before, after any) error
}

type Service struct {
	records  RecordRepository
	vitals   VitalsRepository
	patients PatientDirectory
	tx       db.TxRunner
	audit    ChangeRecorder
	now      func() time.Time
}

func NewService(records RecordRepository, vitals VitalsRepository, patients PatientDirectory, tx db.TxRunner) *Service {
	if tx == nil {
		tx = db.NoopTxRunner{}
	}
	return &Service{records: records, vitals: vitals, patients: patients, tx: tx, now: time.Now}
}

// WithAudit makes record edits write an audit entry in the same
// transaction as the edit.
func (s *Service) WithAudit(r ChangeRecorder) *Service {
	s.audit = r
	return s
}

func (s *Service) requirePatient(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return apperror.Validation("patient_id is required")
	}
	if s.patients == nil {
		return nil
	}
	ok, err := s.patients.PatientExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.Validation("patient does not exist")
	}
	return nil
}

// currentUser returns the authenticated user's id, or uuid.Nil.
func currentUser(ctx context.Context) uuid.UUID {
	id, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil {
		return uuid.Nil
	}
	return id
}

// -- Medical Records --

var validRecordStatuses = map[string]bool{StatusDraft: true, StatusFinal: true}

// applySOAP validates and serializes a consult note's SOAP body into content.
func applySOAP(m *MedicalRecord) error {
	if m.RecordType != RecordTypeConsultNote {
		return nil
	}
	if m.SOAP == nil {
		return apperror.Validation("consult notes require subjective, objective, assessment and plan")
	}
	if missing := m.SOAP.Missing(); len(missing) > 0 {
		return apperror.Validation("consult note is missing: %s", strings.Join(missing, ", "))
	}
	content, err := m.SOAP.Encode()
	if err != nil {
		return err
	}
	m.Content = content
	return nil
}

func (s *Service) CreateRecord(ctx context.Context, m *MedicalRecord) error {
	if err := s.requirePatient(ctx, m.PatientID); err != nil {
		return err
	}
	if m.ProviderID == uuid.Nil {
		m.ProviderID = currentUser(ctx)
	}
	if m.ProviderID == uuid.Nil {
		return apperror.Validation("provider_id is required")
	}
	m.RecordType = strings.TrimSpace(m.RecordType)
	if m.RecordType == "" {
		return apperror.Validation("record_type is required")
	}
	m.Title = strings.TrimSpace(m.Title)
	if m.Title == "" {
		if m.RecordType != RecordTypeConsultNote {
			return apperror.Validation("title is required")
		}
		m.Title = "Consult Note"
	}
	if m.Status == "" {
		m.Status = StatusDraft
	}
	if !validRecordStatuses[m.Status] {
		return apperror.Validation("invalid record status: %s", m.Status)
	}
	if err := applySOAP(m); err != nil {
		return err
	}
	m.AmendmentReason = nil
	if m.Status == StatusFinal {
		t := s.now()
		m.FinalizedAt = &t
	}
	return s.records.Create(ctx, m)
}

func (s *Service) GetRecord(ctx context.Context, id uuid.UUID) (*MedicalRecord, error) {
	m, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.RecordType == RecordTypeConsultNote {
		m.SOAP = DecodeSOAP(m.Content)
	}
	return m, nil
}

func (s *Service) ListRecords(ctx context.Context, params map[string]string, limit, offset int) ([]*MedicalRecord, int, error) {
	if st := params["status"]; st != "" && !validRecordStatuses[st] {
		return nil, 0, apperror.Validation("invalid record status: %s", st)
	}
	items, total, err := s.records.Search(ctx, params, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	for _, m := range items {
		if m.RecordType == RecordTypeConsultNote {
			m.SOAP = DecodeSOAP(m.Content)
		}
	}
	return items, total, nil
}

// UpdateRecord edits a record. A final record stays final and every edit
// to it must carry an amendment reason.
func (s *Service) UpdateRecord(ctx context.Context, id uuid.UUID, u *RecordUpdate) (*MedicalRecord, error) {
	m, err := s.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *m

	wasFinal := m.Status == StatusFinal
	if wasFinal {
		if u.AmendmentReason == nil || strings.TrimSpace(*u.AmendmentReason) == "" {
			return nil, apperror.Validation("amendment_reason is required to edit a final record")
		}
		if u.Status != nil && *u.Status != StatusFinal {
			return nil, apperror.Validation("a final record cannot return to %s", *u.Status)
		}
		reason := strings.TrimSpace(*u.AmendmentReason)
		m.AmendmentReason = &reason
	}

	if u.Title != nil {
		if strings.TrimSpace(*u.Title) == "" {
			return nil, apperror.Validation("title cannot be empty")
		}
		m.Title = strings.TrimSpace(*u.Title)
	}
	if u.SOAP != nil {
		m.SOAP = u.SOAP
	}
	if u.Content != nil && m.RecordType != RecordTypeConsultNote {
		m.Content = *u.Content
	}
	if err := applySOAP(m); err != nil {
		return nil, err
	}
	if u.Status != nil {
		if !validRecordStatuses[*u.Status] {
			return nil, apperror.Validation("invalid record status: %s", *u.Status)
		}
		m.Status = *u.Status
	}
	if !wasFinal && m.Status == StatusFinal {
		t := s.now()
		m.FinalizedAt = &t
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.records.Update(ctx, m); err != nil {
			return err
		}
		if s.audit == nil {
			return nil
		}
		return s.audit.RecordChange(ctx, "medical-records", m.ID, &before, m)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// -- Vital Signs --

type vitalRange struct {
	name     string
	min, max float64
}

func checkRange(r vitalRange, v float64) error {
	if v < r.min || v > r.max {
		return apperror.Validation("%s must be between %g and %g", r.name, r.min, r.max)
	}
	return nil
}

func validateVitals(v *VitalSigns) error {
	if !v.HasMeasurement() {
		return apperror.Validation("at least one vital sign is required")
	}
	ints := []struct {
		r vitalRange
		v *int
	}{
		{vitalRange{"systolic_bp", 40, 300}, v.SystolicBP},
		{vitalRange{"diastolic_bp", 20, 200}, v.DiastolicBP},
		{vitalRange{"heart_rate", 0, 300}, v.HeartRate},
		{vitalRange{"respiratory_rate", 0, 100}, v.RespiratoryRate},
	}
	for _, f := range ints {
		if f.v != nil {
			if err := checkRange(f.r, float64(*f.v)); err != nil {
				return err
			}
		}
	}
	floats := []struct {
		r vitalRange
		v *float64
	}{
		{vitalRange{"temperature", 25, 45}, v.Temperature},
		{vitalRange{"oxygen_saturation", 0, 100}, v.OxygenSaturation},
		{vitalRange{"weight", 0.2, 500}, v.Weight},
		{vitalRange{"height", 20, 300}, v.Height},
	}
	for _, f := range floats {
		if f.v != nil {
			if err := checkRange(f.r, *f.v); err != nil {
				return err
			}
		}
	}
	if v.SystolicBP != nil && v.DiastolicBP != nil && *v.DiastolicBP >= *v.SystolicBP {
		return apperror.Validation("diastolic_bp must be lower than systolic_bp")
	}
	return nil
}

func (s *Service) RecordVitals(ctx context.Context, v *VitalSigns) error {
	if err := s.requirePatient(ctx, v.PatientID); err != nil {
		return err
	}
	if err := validateVitals(v); err != nil {
		return err
	}
	if v.RecordedBy == uuid.Nil {
		v.RecordedBy = currentUser(ctx)
	}
	if v.RecordedBy == uuid.Nil {
		return apperror.Validation("recorded_by is required")
	}
	if v.RecordedAt.IsZero() {
		v.RecordedAt = s.now()
	}
	v.BMI = nil
	if v.Weight != nil && v.Height != nil {
		bmi := ComputeBMI(*v.Weight, *v.Height)
		v.BMI = &bmi
	}
	return s.vitals.Create(ctx, v)
}

func (s *Service) ListVitals(ctx context.Context, params map[string]string, limit, offset int) ([]*VitalSigns, int, error) {
	return s.vitals.Search(ctx, params, limit, offset)
}

func (s *Service) LatestVitals(ctx context.Context, patientID uuid.UUID) (*VitalSigns, error) {
	return s.vitals.Latest(ctx, patientID)
}
