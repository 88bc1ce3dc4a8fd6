package diagnostics

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/apperror"
	"github.com/hms/hms/internal/platform/auth"
)

// =========== Mock Repositories ===========

type mockLabRepo struct {
	store map[uuid.UUID]*LabResult
	// beforeUpdate runs ahead of each Update and may change the stored row.
	beforeUpdate func(stored *LabResult)
}

func newMockLabRepo() *mockLabRepo {
	return &mockLabRepo{store: make(map[uuid.UUID]*LabResult)}
}

func (m *mockLabRepo) Create(_ context.Context, l *LabResult) error {
	l.ID = uuid.New()
	cp := *l
	m.store[l.ID] = &cp
	return nil
}

func (m *mockLabRepo) GetByID(_ context.Context, id uuid.UUID) (*LabResult, error) {
	l, ok := m.store[id]
	if !ok {
		return nil, apperror.NotFound("lab result")
	}
	cp := *l
	return &cp, nil
}

func (m *mockLabRepo) Update(_ context.Context, l *LabResult, from string) error {
	stored, ok := m.store[l.ID]
	if !ok {
		return apperror.NotFound("lab result")
	}
	if m.beforeUpdate != nil {
		m.beforeUpdate(stored)
	}
	if stored.Status != from {
		return apperror.Conflict("lab result is no longer %s", from)
	}
	cp := *l
	m.store[l.ID] = &cp
	return nil
}

func (m *mockLabRepo) Search(_ context.Context, params map[string]string, limit, offset int) ([]*LabResult, int, error) {
	var result []*LabResult
	for _, l := range m.store {
		if st := params["status"]; st != "" && l.Status != st {
			continue
		}
		result = append(result, l)
	}
	return result, len(result), nil
}

type mockInventoryRepo struct {
	store map[uuid.UUID]*LabItem
}

func newMockInventoryRepo() *mockInventoryRepo {
	return &mockInventoryRepo{store: make(map[uuid.UUID]*LabItem)}
}

func (m *mockInventoryRepo) Create(_ context.Context, i *LabItem) error {
	i.ID = uuid.New()
	cp := *i
	m.store[i.ID] = &cp
	return nil
}

func (m *mockInventoryRepo) GetByID(_ context.Context, id uuid.UUID) (*LabItem, error) {
	i, ok := m.store[id]
	if !ok {
		return nil, apperror.NotFound("lab inventory item")
	}
	cp := *i
	return &cp, nil
}

func (m *mockInventoryRepo) Search(_ context.Context, params map[string]string, limit, offset int) ([]*LabItem, int, error) {
	var result []*LabItem
	for _, i := range m.store {
		if params["low_stock"] == "true" && !i.LowStock() {
			continue
		}
		result = append(result, i)
	}
	return result, len(result), nil
}

func (m *mockInventoryRepo) Adjust(_ context.Context, id uuid.UUID, delta int) (*LabItem, error) {
	i, ok := m.store[id]
	if !ok {
		return nil, apperror.NotFound("lab inventory item")
	}
	if i.Quantity+delta < 0 {
		return nil, apperror.Conflict("insufficient stock")
	}
	i.Quantity += delta
	cp := *i
	return &cp, nil
}

type stubPatients map[uuid.UUID]bool

func (p stubPatients) PatientExists(_ context.Context, id uuid.UUID) (bool, error) {
	return p[id], nil
}

var (
	testPatient = uuid.New()
	doctorID    = uuid.New()
	techA       = uuid.New()
	techB       = uuid.New()
	fixedNow    = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
)

func newTestService() (*Service, *mockLabRepo, *mockInventoryRepo) {
	labs := newMockLabRepo()
	inv := newMockInventoryRepo()
	svc := NewService(labs, inv, stubPatients{testPatient: true})
	svc.now = func() time.Time { return fixedNow }
	return svc, labs, inv
}

func ctxAs(id uuid.UUID, roles ...string) context.Context {
	return auth.WithUser(context.Background(), id.String(), "test", roles)
}

func orderCBC(t *testing.T, svc *Service) *LabResult {
	t.Helper()
	l := &LabResult{PatientID: testPatient, TestType: "hematology", TestName: "Full Blood Count"}
	if err := svc.OrderLab(ctxAs(doctorID, auth.RoleDoctor), l); err != nil {
		t.Fatalf("order: %v", err)
	}
	return l
}

// =========== Lab Result Tests ===========

func TestOrderLab(t *testing.T) {
	svc, _, _ := newTestService()
	l := orderCBC(t, svc)
	if l.Status != StatusOrdered {
		t.Errorf("expected ordered, got %s", l.Status)
	}
	if l.OrderedBy != doctorID {
		t.Errorf("expected ordered_by from context")
	}
	if l.Priority != "routine" {
		t.Errorf("expected routine priority, got %s", l.Priority)
	}
	if !l.OrderedAt.Equal(fixedNow) {
		t.Errorf("expected ordered_at %s, got %s", fixedNow, l.OrderedAt)
	}
}

func TestOrderLab_Validation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := ctxAs(doctorID, auth.RoleDoctor)
	cases := map[string]*LabResult{
		"no patient":      {TestType: "x", TestName: "y"},
		"unknown patient": {PatientID: uuid.New(), TestType: "x", TestName: "y"},
		"no name":         {PatientID: testPatient, TestType: "x"},
		"no type":         {PatientID: testPatient, TestName: "y"},
		"bad priority":    {PatientID: testPatient, TestType: "x", TestName: "y", Priority: "asap"},
	}
	for name, l := range cases {
		if err := svc.OrderLab(ctx, l); !apperror.IsCode(err, apperror.CodeValidation) {
			t.Errorf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestLabWorkflow(t *testing.T) {
	svc, _, _ := newTestService()
	l := orderCBC(t, svc)

	started, err := svc.StartLab(ctxAs(techA, auth.RoleLabTech), l.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Status != StatusInProgress || started.PerformedBy == nil || *started.PerformedBy != techA {
		t.Fatalf("unexpected started result %+v", started)
	}

	done, err := svc.CompleteLab(ctxAs(techA, auth.RoleLabTech), l.ID, &CompleteRequest{Results: "Hb 6.2 g/dL", CriticalValues: true})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != StatusCompleted || !done.CriticalValues || done.CompletedAt == nil {
		t.Fatalf("unexpected completed result %+v", done)
	}

	verified, err := svc.VerifyLab(ctxAs(techB, auth.RoleLabTech), l.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verified.Status != StatusVerified || *verified.VerifiedBy != techB {
		t.Fatalf("unexpected verified result %+v", verified)
	}
}

func TestLabWorkflow_StrictlyForward(t *testing.T) {
	svc, _, _ := newTestService()
	l := orderCBC(t, svc)
	tech := ctxAs(techA, auth.RoleLabTech)

	if _, err := svc.CompleteLab(tech, l.ID, &CompleteRequest{Results: "x"}); !apperror.IsCode(err, apperror.CodeConflict) {
		t.Errorf("complete before start: expected conflict, got %v", err)
	}
	if _, err := svc.VerifyLab(ctxAs(techB, auth.RoleLabTech), l.ID); !apperror.IsCode(err, apperror.CodeConflict) {
		t.Errorf("verify before complete: expected conflict, got %v", err)
	}
	if _, err := svc.StartLab(tech, l.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.StartLab(tech, l.ID); !apperror.IsCode(err, apperror.CodeConflict) {
		t.Errorf("start twice: expected conflict, got %v", err)
	}
}

func TestStartLab_ConcurrentStartConflicts(t *testing.T) {
	svc, labs, _ := newTestService()
	l := orderCBC(t, svc)
	labs.beforeUpdate = func(stored *LabResult) {
		stored.Status = StatusInProgress
		stored.PerformedBy = &techB
	}

	if _, err := svc.StartLab(ctxAs(techA, auth.RoleLabTech), l.ID); !apperror.IsCode(err, apperror.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if got := labs.store[l.ID]; *got.PerformedBy != techB {
		t.Error("the first technician's start must not be overwritten")
	}
}

func TestVerifyLab_StaleStatusConflicts(t *testing.T) {
	svc, labs, _ := newTestService()
	l := orderCBC(t, svc)
	tech := ctxAs(techA, auth.RoleLabTech)
	svc.StartLab(tech, l.ID)
	svc.CompleteLab(tech, l.ID, &CompleteRequest{Results: "normal"})
	labs.beforeUpdate = func(stored *LabResult) { stored.Status = StatusVerified }

	if _, err := svc.VerifyLab(ctxAs(techB, auth.RoleLabTech), l.ID); !apperror.IsCode(err, apperror.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if labs.store[l.ID].VerifiedBy != nil {
		t.Error("verified_by must not be written on conflict")
	}
}

func TestCompleteLab_RequiresResults(t *testing.T) {
	svc, _, _ := newTestService()
	l := orderCBC(t, svc)
	tech := ctxAs(techA, auth.RoleLabTech)
	if _, err := svc.StartLab(tech, l.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CompleteLab(tech, l.ID, &CompleteRequest{Results: "  "}); !apperror.IsCode(err, apperror.CodeValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestVerifyLab_PerformerCannotVerify(t *testing.T) {
	svc, _, _ := newTestService()
	l := orderCBC(t, svc)
	tech := ctxAs(techA, auth.RoleLabTech)
	svc.StartLab(tech, l.ID)
	svc.CompleteLab(tech, l.ID, &CompleteRequest{Results: "normal"})

	if _, err := svc.VerifyLab(tech, l.ID); !apperror.IsCode(err, apperror.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	// admins may self-verify
	if _, err := svc.VerifyLab(ctxAs(techA, auth.RoleAdmin), l.ID); err != nil {
		t.Fatalf("admin verify: %v", err)
	}
}

func TestStartLab_RequiresUser(t *testing.T) {
	svc, _, _ := newTestService()
	l := orderCBC(t, svc)
	if _, err := svc.StartLab(context.Background(), l.ID); !apperror.IsCode(err, apperror.CodeUnauthorized) {
		t.Errorf("expected unauthorized, got %v", err)
	}
}

func TestListLabs_InvalidStatus(t *testing.T) {
	svc, _, _ := newTestService()
	if _, _, err := svc.ListLabs(context.Background(), map[string]string{"status": "lost"}, 20, 0); !apperror.IsCode(err, apperror.CodeValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

// =========== Lab Inventory Tests ===========

func TestInventory_LowStockAndAdjust(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	reagent := &LabItem{Name: "Glucose reagent", Quantity: 3, ReorderLevel: 5}
	tubes := &LabItem{Name: "EDTA tubes", Quantity: 200, ReorderLevel: 50}
	for _, i := range []*LabItem{reagent, tubes} {
		if err := svc.CreateItem(ctx, i); err != nil {
			t.Fatal(err)
		}
	}
	if reagent.Unit != "unit" {
		t.Errorf("expected default unit, got %q", reagent.Unit)
	}

	low, total, err := svc.ListItems(ctx, map[string]string{"low_stock": "true"}, 20, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || low[0].Name != "Glucose reagent" {
		t.Errorf("expected only the reagent to be low, got %d items", total)
	}

	got, err := svc.AdjustItem(ctx, reagent.ID, &AdjustRequest{Delta: 10, Reason: "delivery"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Quantity != 13 || got.LowStock() {
		t.Errorf("expected 13 in stock, got %d", got.Quantity)
	}

	if _, err := svc.AdjustItem(ctx, reagent.ID, &AdjustRequest{Delta: -14}); !apperror.IsCode(err, apperror.CodeConflict) {
		t.Errorf("expected conflict below zero, got %v", err)
	}
	if _, err := svc.AdjustItem(ctx, reagent.ID, &AdjustRequest{Delta: 0}); !apperror.IsCode(err, apperror.CodeValidation) {
		t.Errorf("expected validation error for zero delta, got %v", err)
	}
}

func TestCreateItem_Validation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	for name, i := range map[string]*LabItem{
		"no name":          {Quantity: 1},
		"negative qty":     {Name: "x", Quantity: -1},
		"negative reorder": {Name: "x", ReorderLevel: -1},
	} {
		if err := svc.CreateItem(ctx, i); !apperror.IsCode(err, apperror.CodeValidation) {
			t.Errorf("%s: expected validation error, got %v", name, err)
		}
	}
	if _, _, err := svc.ListItems(ctx, map[string]string{"low_stock": "maybe"}, 20, 0); !apperror.IsCode(err, apperror.CodeValidation) {
		t.Errorf("expected validation error for low_stock, got %v", err)
	}
}
