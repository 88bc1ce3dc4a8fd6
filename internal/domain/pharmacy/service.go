package pharmacy

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/apperror"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
)

// PatientDirectory answers the patient questions the pharmacy needs.
type PatientDirectory interface {
	PatientExists(ctx context.Context, id uuid.UUID) (bool, error)
	PatientAllergies(ctx context.Context, id uuid.UUID) ([]string, error)
}

type Service struct {
	rx        PrescriptionRepository
	drugs     DrugRepository
	dispenses DispenseRepository
	patients  PatientDirectory
	tx        db.TxRunner
	now       func() time.Time
}

func NewService(rx PrescriptionRepository, drugs DrugRepository, dispenses DispenseRepository, patients PatientDirectory, tx db.TxRunner) *Service {
	if tx == nil {
		tx = db.NoopTxRunner{}
	}
	return &Service{rx: rx, drugs: drugs, dispenses: dispenses, patients: patients, tx: tx, now: time.Now}
}

func currentUser(ctx context.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil {
		return uuid.Nil, apperror.New(apperror.CodeUnauthorized, "")
	}
	return id, nil
}

// -- Prescriptions --

var validRxStatuses = map[string]bool{
	StatusActive: true, StatusDispensed: true, StatusCompleted: true, StatusCancelled: true,
}

func validateMedications(meds []Medication) error {
	if len(meds) == 0 {
		return apperror.Validation("at least one medication is required")
	}
	seen := make(map[string]bool, len(meds))
	for i := range meds {
		m := &meds[i]
		m.Name = strings.TrimSpace(m.Name)
		m.Code = strings.TrimSpace(m.Code)
		if m.Name == "" {
			return apperror.Validation("medication %d: name is required", i+1)
		}
		if strings.TrimSpace(m.Dosage) == "" {
			return apperror.Validation("%s: dosage is required", m.Name)
		}
		if strings.TrimSpace(m.Frequency) == "" {
			return apperror.Validation("%s: frequency is required", m.Name)
		}
		if m.Quantity <= 0 {
			return apperror.Validation("%s: quantity must be positive", m.Name)
		}
		if seen[m.Key()] {
			return apperror.Validation("%s is listed more than once", m.Name)
		}
		seen[m.Key()] = true
	}
	return nil
}

func (s *Service) CreatePrescription(ctx context.Context, p *Prescription) error {
	if p.PatientID == uuid.Nil {
		return apperror.Validation("patient_id is required")
	}
	if err := validateMedications(p.Medications); err != nil {
		return err
	}
	if p.RefillsAllowed < 0 {
		return apperror.Validation("refills_allowed cannot be negative")
	}
	if s.patients != nil {
		ok, err := s.patients.PatientExists(ctx, p.PatientID)
		if err != nil {
			return err
		}
		if !ok {
			return apperror.Validation("patient does not exist")
		}
	}
	prescriber, err := currentUser(ctx)
	if err != nil {
		return err
	}
	p.PrescribedBy = prescriber
	p.Status = StatusActive
	p.RefillsUsed = 0
	return s.rx.Create(ctx, p)
}

func (s *Service) GetPrescription(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return s.rx.GetByID(ctx, id)
}

func (s *Service) ListPrescriptions(ctx context.Context, params map[string]string, limit, offset int) ([]*Prescription, int, error) {
	if st := params["status"]; st != "" && !validRxStatuses[st] {
		return nil, 0, apperror.Validation("invalid prescription status: %s", st)
	}
	return s.rx.Search(ctx, params, limit, offset)
}

// CancelPrescription stops a prescription that has not been dispensed.
func (s *Service) CancelPrescription(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	p, err := s.rx.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusActive {
		return nil, apperror.Conflict("a %s prescription cannot be cancelled", p.Status)
	}
	st := RxState{Status: StatusCancelled, RefillsUsed: p.RefillsUsed, Delivered: p.Delivered}
	if err := s.rx.UpdateState(ctx, id, StatusActive, st); err != nil {
		return nil, err
	}
	p.Status = StatusCancelled
	return p, nil
}

// -- Drug Inventory --

func (s *Service) CreateDrug(ctx context.Context, d *DrugStock) error {
	d.DrugCode = strings.TrimSpace(d.DrugCode)
	d.DrugName = strings.TrimSpace(d.DrugName)
	if d.DrugCode == "" {
		return apperror.Validation("drug_code is required")
	}
	if d.DrugName == "" {
		return apperror.Validation("drug_name is required")
	}
	if d.Quantity < 0 || d.ReorderLevel < 0 {
		return apperror.Validation("quantity and reorder_level cannot be negative")
	}
	if d.UnitPrice < 0 {
		return apperror.Validation("unit_price cannot be negative")
	}
	return s.drugs.Create(ctx, d)
}

func (s *Service) ListDrugs(ctx context.Context, params map[string]string, limit, offset int) ([]*DrugStock, int, error) {
	return s.drugs.Search(ctx, params, limit, offset)
}

func (s *Service) RestockDrug(ctx context.Context, id uuid.UUID, qty int) (*DrugStock, error) {
	if qty <= 0 {
		return nil, apperror.Validation("quantity must be positive")
	}
	return s.drugs.Restock(ctx, id, qty)
}

// available returns the on-hand quantity for a medication. Medications
// without a code or not stocked count as zero.
func (s *Service) available(ctx context.Context, m Medication) (int, error) {
	if m.Code == "" {
		return 0, nil
	}
	d, err := s.drugs.GetByCode(ctx, m.Code)
	if err != nil {
		if apperror.IsCode(err, apperror.CodeNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return d.Quantity, nil
}

// -- Review --

// DetermineDispenseType decides how a prescription would be dispensed now.
// A shortage on any line makes the dispense partial.
func DetermineDispenseType(p *Prescription, short bool) (string, error) {
	switch p.Status {
	case StatusCancelled:
		return "", apperror.Conflict("prescription is cancelled")
	case StatusCompleted:
		return "", apperror.Conflict("prescription has no refills remaining")
	case StatusDispensed:
		if p.RemainingRefills() == 0 {
			return "", apperror.Conflict("prescription has no refills remaining")
		}
	}
	if short {
		return DispensePartial, nil
	}
	if p.Status == StatusDispensed {
		return DispenseRefill, nil
	}
	return DispenseFill, nil
}

// stockItems compares what is still owed per line with what is on hand.
// Lines already delivered in full are never short.
func (s *Service) stockItems(ctx context.Context, p *Prescription) ([]ReviewItem, bool, error) {
	items := make([]ReviewItem, 0, len(p.Medications))
	short := false
	for _, m := range p.Medications {
		owed := p.Outstanding(m)
		qty := 0
		if owed > 0 {
			var err error
			if qty, err = s.available(ctx, m); err != nil {
				return nil, false, err
			}
		}
		it := ReviewItem{Medication: m, Outstanding: owed, InStock: qty, Short: qty < owed}
		short = short || it.Short
		items = append(items, it)
	}
	return items, short, nil
}

// Review prepares the first wizard step: stock per line, allergy and
// interaction alerts, and the dispense type.
func (s *Service) Review(ctx context.Context, prescriptionID uuid.UUID) (*Review, error) {
	p, err := s.rx.GetByID(ctx, prescriptionID)
	if err != nil {
		return nil, err
	}
	items, short, err := s.stockItems(ctx, p)
	if err != nil {
		return nil, err
	}
	kind, err := DetermineDispenseType(p, short)
	if err != nil {
		return nil, err
	}

	var allergies []string
	if s.patients != nil {
		allergies, err = s.patients.PatientAllergies(ctx, p.PatientID)
		if err != nil {
			return nil, err
		}
	}
	return &Review{
		Prescription:     p,
		DispenseType:     kind,
		RemainingRefills: p.RemainingRefills(),
		Items:            items,
		Allergies:        CheckAllergies(p.Medications, allergies),
		Interactions:     CheckInteractions(p.Medications),
	}, nil
}

// -- Dispense --

func buildItems(w *Wizard, stock []ReviewItem, partial bool) []DispenseItem {
	items := make([]DispenseItem, 0, len(stock))
	for _, it := range stock {
		give := it.Outstanding
		if partial && it.InStock < give {
			give = it.InStock
		}
		items = append(items, DispenseItem{
			Key:        it.Medication.Key(),
			Name:       it.Medication.Name,
			Code:       it.Medication.Code,
			Prescribed: it.Medication.Quantity,
			Dispensed:  give,
			Remaining:  it.Outstanding - give,
			Scanned:    w.Scanned(it.Medication.Key()),
		})
	}
	return items
}

// advance returns the prescription state after a final dispense of items.
// While any line is still owed the delivery stays open and status and
// refill count are unchanged. Completing it counts as the fill (status
// active) or as one refill (status dispensed).
func advance(p *Prescription, items []DispenseItem) RxState {
	delivered := make(map[string]int, len(p.Medications))
	for k, n := range p.Delivered {
		delivered[k] = n
	}
	for _, it := range items {
		if it.Dispensed > 0 {
			delivered[it.Key] += it.Dispensed
		}
	}
	for _, m := range p.Medications {
		if delivered[m.Key()] < m.Quantity {
			return RxState{Status: p.Status, RefillsUsed: p.RefillsUsed, Delivered: delivered}
		}
	}

	st := RxState{Status: StatusDispensed, RefillsUsed: p.RefillsUsed, Delivered: map[string]int{}}
	if p.Status == StatusDispensed {
		st.RefillsUsed++
	}
	if st.RefillsUsed >= p.RefillsAllowed {
		st.Status = StatusCompleted
	}
	return st
}

// SubmitDispense stores the wizard's outcome. A final submission passes
// the verification gates before anything is written, then decrements
// stock, records the dispense and advances the prescription in one
// transaction. A draft is stored as-is.
func (s *Service) SubmitDispense(ctx context.Context, req *DispenseRequest) (*Dispense, error) {
	if req.PrescriptionID == uuid.Nil {
		return nil, apperror.Validation("prescription_id is required")
	}
	pharmacist, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	p, err := s.rx.GetByID(ctx, req.PrescriptionID)
	if err != nil {
		return nil, err
	}
	w := NewWizard(p.Medications)
	if err := w.Apply(req); err != nil {
		return nil, err
	}
	if req.Final {
		if err := w.Validate(); err != nil {
			return nil, err
		}
	}

	var out *Dispense
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if req.Final {
			p, err = s.rx.GetForUpdate(ctx, req.PrescriptionID)
			if err != nil {
				return err
			}
		}
		stock, short, err := s.stockItems(ctx, p)
		if err != nil {
			return err
		}
		kind, err := DetermineDispenseType(p, short)
		if err != nil {
			return err
		}
		items := buildItems(w, stock, kind == DispensePartial)

		d := &Dispense{
			PrescriptionID: p.ID,
			PatientID:      p.PatientID,
			PharmacistID:   pharmacist,
			DispenseType:   kind,
			Status:         DispenseDraft,
			Items:          items,
			Checks:         w.Checks(),
		}
		if text := w.Counseling(); text != "" {
			d.Counseling = &text
		}

		if req.DraftID != nil {
			draft, err := s.dispenses.GetByID(ctx, *req.DraftID)
			if err != nil {
				return err
			}
			if draft.PrescriptionID != p.ID {
				return apperror.Validation("draft belongs to a different prescription")
			}
			if err := s.dispenses.DeleteDraft(ctx, draft.ID); err != nil {
				return err
			}
		}

		if !req.Final {
			if err := s.dispenses.Create(ctx, d); err != nil {
				return err
			}
			out = d
			return nil
		}

		total := 0
		for _, it := range items {
			total += it.Dispensed
		}
		if total == 0 {
			return apperror.Conflict("none of the prescribed medications are in stock")
		}
		for _, it := range items {
			if it.Dispensed == 0 {
				continue
			}
			if err := s.drugs.Decrement(ctx, it.Code, it.Dispensed); err != nil {
				return err
			}
		}

		now := s.now()
		d.Status = DispenseFinal
		d.FinalizedAt = &now
		if err := s.dispenses.Create(ctx, d); err != nil {
			return err
		}
		if err := s.rx.UpdateState(ctx, p.ID, p.Status, advance(p, items)); err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) GetDispense(ctx context.Context, id uuid.UUID) (*Dispense, error) {
	return s.dispenses.GetByID(ctx, id)
}

func (s *Service) ListDispenses(ctx context.Context, params map[string]string, limit, offset int) ([]*Dispense, int, error) {
	return s.dispenses.Search(ctx, params, limit, offset)
}

// DiscardDraft deletes a saved draft dispense.
func (s *Service) DiscardDraft(ctx context.Context, id uuid.UUID) error {
	return s.dispenses.DeleteDraft(ctx, id)
}
