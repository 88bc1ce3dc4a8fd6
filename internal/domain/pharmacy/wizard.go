package pharmacy

import (
	"strings"

	"github.com/hms/hms/internal/platform/apperror"
)

// Step is a page of the dispense wizard.
type Step int

const (
	StepReview Step = iota
	StepVerify
	StepCounsel
)

func (s Step) String() string {
	switch s {
	case StepReview:
		return "review"
	case StepVerify:
		return "verify"
	case StepCounsel:
		return "counsel"
	}
	return "unknown"
}

// Verification checks that must all be ticked before a final dispense.
const (
	CheckPatientIdentity = "patient_identity"
	CheckMedicationMatch = "medication_match"
	CheckDosageCorrect   = "dosage_correct"
)

var RequiredChecks = []string{CheckPatientIdentity, CheckMedicationMatch, CheckDosageCorrect}

// Wizard holds the in-progress state of one dispense. Moving between steps
// is unguarded; the gates are evaluated only by Validate.
type Wizard struct {
	meds    []Medication
	step    Step
	scanned map[string]bool
	checks  map[string]bool
	notes   string
	points  []string
}

func NewWizard(meds []Medication) *Wizard {
	w := &Wizard{meds: meds}
	w.Cancel()
	return w
}

func (w *Wizard) Step() Step { return w.step }

// Next advances one step; it stops at the last step.
func (w *Wizard) Next() Step {
	if w.step < StepCounsel {
		w.step++
	}
	return w.step
}

// Back returns one step; it stops at the first step.
func (w *Wizard) Back() Step {
	if w.step > StepReview {
		w.step--
	}
	return w.step
}

func (w *Wizard) hasMedication(key string) bool {
	for _, m := range w.meds {
		if m.Key() == key {
			return true
		}
	}
	return false
}

// Scan marks a medication as scanned.
func (w *Wizard) Scan(key string) error {
	if !w.hasMedication(key) {
		return apperror.Validation("medication %q is not on this prescription", key)
	}
	w.scanned[key] = true
	return nil
}

func (w *Wizard) Unscan(key string) {
	delete(w.scanned, key)
}

func (w *Wizard) Scanned(key string) bool { return w.scanned[key] }

// Check ticks a verification check. Unknown names are rejected.
func (w *Wizard) Check(name string) error {
	for _, c := range RequiredChecks {
		if c == name {
			w.checks[name] = true
			return nil
		}
	}
	return apperror.Validation("unknown verification check %q", name)
}

func (w *Wizard) Uncheck(name string) {
	delete(w.checks, name)
}

// Checks returns the ticked checks in canonical order.
func (w *Wizard) Checks() []string {
	out := make([]string, 0, len(w.checks))
	for _, c := range RequiredChecks {
		if w.checks[c] {
			out = append(out, c)
		}
	}
	return out
}

func (w *Wizard) SetCounseling(notes string, points []string) {
	w.notes = notes
	w.points = points
}

// HasProgress reports whether cancelling would discard anything.
func (w *Wizard) HasProgress() bool {
	return len(w.scanned) > 0 || len(w.checks) > 0 ||
		strings.TrimSpace(w.notes) != "" || len(w.points) > 0
}

// Cancel discards all wizard state and returns to the first step.
func (w *Wizard) Cancel() {
	w.step = StepReview
	w.scanned = make(map[string]bool)
	w.checks = make(map[string]bool)
	w.notes = ""
	w.points = nil
}

// Validate reports GATE_FAILED unless every medication is scanned and
// every required check is ticked.
func (w *Wizard) Validate() error {
	var unscanned []string
	for _, m := range w.meds {
		if !w.scanned[m.Key()] {
			unscanned = append(unscanned, m.Name)
		}
	}
	var missing []string
	for _, c := range RequiredChecks {
		if !w.checks[c] {
			missing = append(missing, c)
		}
	}
	switch {
	case len(unscanned) > 0 && len(missing) > 0:
		return apperror.GateFailed("medications not scanned: %s; checks missing: %s",
			strings.Join(unscanned, ", "), strings.Join(missing, ", "))
	case len(unscanned) > 0:
		return apperror.GateFailed("medications not scanned: %s", strings.Join(unscanned, ", "))
	case len(missing) > 0:
		return apperror.GateFailed("checks missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Counseling joins the free-text notes and the ticked counseling points
// into the text stored with the dispense.
func (w *Wizard) Counseling() string {
	var b strings.Builder
	notes := strings.TrimSpace(w.notes)
	b.WriteString(notes)
	if len(w.points) > 0 {
		if notes != "" {
			b.WriteString("\n\n")
		}
		b.WriteString("Counseling points covered:")
		for _, p := range w.points {
			if p = strings.TrimSpace(p); p != "" {
				b.WriteString("\n- ")
				b.WriteString(p)
			}
		}
	}
	return b.String()
}

// Apply loads a submitted request into the wizard.
func (w *Wizard) Apply(req *DispenseRequest) error {
	w.Cancel()
	for _, key := range req.Scanned {
		if err := w.Scan(key); err != nil {
			return err
		}
	}
	for _, c := range req.Checks {
		if err := w.Check(c); err != nil {
			return err
		}
	}
	w.SetCounseling(req.CounselingNotes, req.CounselingPoints)
	w.step = StepCounsel
	return nil
}
