package diagnostics

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/apperror"
	"github.com/hms/hms/internal/platform/auth"
)

// PatientDirectory checks that a referenced patient exists.
type PatientDirectory interface {
	PatientExists(ctx context.Context, id uuid.UUID) (bool, error)
}

type Service struct {
	labs      LabResultRepository
	inventory InventoryRepository
	patients  PatientDirectory
	now       func() time.Time
}

func NewService(labs LabResultRepository, inventory InventoryRepository, patients PatientDirectory) *Service {
	return &Service{labs: labs, inventory: inventory, patients: patients, now: time.Now}
}

func currentUser(ctx context.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil {
		return uuid.Nil, apperror.New(apperror.CodeUnauthorized, "")
	}
	return id, nil
}

func isAdmin(ctx context.Context) bool {
	for _, r := range auth.RolesFromContext(ctx) {
		if r == auth.RoleAdmin {
			return true
		}
	}
	return false
}

// -- Lab Results --

var validLabStatuses = map[string]bool{
	StatusOrdered: true, StatusInProgress: true, StatusCompleted: true, StatusVerified: true,
}

func (s *Service) OrderLab(ctx context.Context, l *LabResult) error {
	if l.PatientID == uuid.Nil {
		return apperror.Validation("patient_id is required")
	}
	l.TestName = strings.TrimSpace(l.TestName)
	if l.TestName == "" {
		return apperror.Validation("test_name is required")
	}
	l.TestType = strings.TrimSpace(l.TestType)
	if l.TestType == "" {
		return apperror.Validation("test_type is required")
	}
	if l.Priority == "" {
		l.Priority = "routine"
	}
	if !validPriorities[l.Priority] {
		return apperror.Validation("invalid priority: %s", l.Priority)
	}
	if s.patients != nil {
		ok, err := s.patients.PatientExists(ctx, l.PatientID)
		if err != nil {
			return err
		}
		if !ok {
			return apperror.Validation("patient does not exist")
		}
	}
	orderedBy, err := currentUser(ctx)
	if err != nil {
		return err
	}

	l.OrderedBy = orderedBy
	l.Status = StatusOrdered
	l.OrderedAt = s.now()
	l.PerformedBy, l.VerifiedBy = nil, nil
	l.PerformedAt, l.CompletedAt, l.VerifiedAt = nil, nil, nil
	l.Results, l.CriticalValues = nil, false
	return s.labs.Create(ctx, l)
}

func (s *Service) GetLab(ctx context.Context, id uuid.UUID) (*LabResult, error) {
	return s.labs.GetByID(ctx, id)
}

func (s *Service) ListLabs(ctx context.Context, params map[string]string, limit, offset int) ([]*LabResult, int, error) {
	if st := params["status"]; st != "" && !validLabStatuses[st] {
		return nil, 0, apperror.Validation("invalid lab status: %s", st)
	}
	return s.labs.Search(ctx, params, limit, offset)
}

// advance loads a lab result and checks it may move to status. The write
// that follows is conditional on the status read here.
func (s *Service) advance(ctx context.Context, id uuid.UUID, status string) (*LabResult, error) {
	l, err := s.labs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if next[l.Status] != status {
		return nil, apperror.Conflict("lab result is %s and cannot move to %s", l.Status, status)
	}
	return l, nil
}

// StartLab marks the sample as being processed by the current user.
func (s *Service) StartLab(ctx context.Context, id uuid.UUID) (*LabResult, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	l, err := s.advance(ctx, id, StatusInProgress)
	if err != nil {
		return nil, err
	}
	now := s.now()
	prev := l.Status
	l.Status = StatusInProgress
	l.PerformedBy = &user
	l.PerformedAt = &now
	if err := s.labs.Update(ctx, l, prev); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *Service) CompleteLab(ctx context.Context, id uuid.UUID, req *CompleteRequest) (*LabResult, error) {
	results := strings.TrimSpace(req.Results)
	if results == "" {
		return nil, apperror.Validation("results are required")
	}
	l, err := s.advance(ctx, id, StatusCompleted)
	if err != nil {
		return nil, err
	}
	now := s.now()
	prev := l.Status
	l.Status = StatusCompleted
	l.CompletedAt = &now
	l.Results = &results
	l.ReferenceRange = req.ReferenceRange
	if req.Notes != nil {
		l.Notes = req.Notes
	}
	l.CriticalValues = req.CriticalValues
	if err := s.labs.Update(ctx, l, prev); err != nil {
		return nil, err
	}
	return l, nil
}

// VerifyLab signs off a completed result. The verifier must be someone
// other than the performer; admins are exempt.
func (s *Service) VerifyLab(ctx context.Context, id uuid.UUID) (*LabResult, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	l, err := s.advance(ctx, id, StatusVerified)
	if err != nil {
		return nil, err
	}
	if l.PerformedBy != nil && *l.PerformedBy == user && !isAdmin(ctx) {
		return nil, apperror.Forbidden("a result cannot be verified by the technician who performed it")
	}
	now := s.now()
	prev := l.Status
	l.Status = StatusVerified
	l.VerifiedBy = &user
	l.VerifiedAt = &now
	if err := s.labs.Update(ctx, l, prev); err != nil {
		return nil, err
	}
	return l, nil
}

// -- Lab Inventory --

func (s *Service) CreateItem(ctx context.Context, i *LabItem) error {
	i.Name = strings.TrimSpace(i.Name)
	if i.Name == "" {
		return apperror.Validation("name is required")
	}
	if i.Quantity < 0 {
		return apperror.Validation("quantity cannot be negative")
	}
	if i.ReorderLevel < 0 {
		return apperror.Validation("reorder_level cannot be negative")
	}
	if i.Unit == "" {
		i.Unit = "unit"
	}
	return s.inventory.Create(ctx, i)
}

func (s *Service) GetItem(ctx context.Context, id uuid.UUID) (*LabItem, error) {
	return s.inventory.GetByID(ctx, id)
}

func (s *Service) ListItems(ctx context.Context, params map[string]string, limit, offset int) ([]*LabItem, int, error) {
	if v := params["low_stock"]; v != "" && v != "true" && v != "false" {
		return nil, 0, apperror.Validation("invalid low_stock: %q", v)
	}
	return s.inventory.Search(ctx, params, limit, offset)
}

// AdjustItem adds a signed delta to stock. Stock never goes below zero.
func (s *Service) AdjustItem(ctx context.Context, id uuid.UUID, req *AdjustRequest) (*LabItem, error) {
	if req.Delta == 0 {
		return nil, apperror.Validation("delta must not be zero")
	}
	return s.inventory.Adjust(ctx, id, req.Delta)
}
