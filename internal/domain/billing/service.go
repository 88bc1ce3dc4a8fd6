package billing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/apperror"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/cache"
	"github.com/hms/hms/internal/platform/db"
)

const (
	dashboardPrefix  = "dashboard:"
	serviceCodesKey  = "service_codes:active"
	serviceCodesTTL  = time.Hour
	defaultValidDays = 30
	maxValidDays     = 365
)

// PatientDirectory answers whether a patient exists.
type PatientDirectory interface {
	PatientExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// ChangeRecorder keeps before and after snapshots of an edited resource.
type ChangeRecorder interface {
	RecordChange(ctx context.Context, resourceType string, id uuid.UUID, before, after any) error
}

// Stores groups the billing repositories.
type Stores struct {
	Payments     PaymentRepository
	HMOs         HMORepository
	Preauths     PreauthRepository
	Claims       ClaimRepository
	ServiceCodes ServiceCodeRepository
	Reports      ReportRepository
}

type Service struct {
	st           Stores
	patients     PatientDirectory
	cache        cache.Cache
	dashboardTTL time.Duration
	tx           db.TxRunner
	audit        ChangeRecorder
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(stores Stores, patients PatientDirectory, c cache.Cache, dashboardTTL time.Duration, tx db.TxRunner, logger zerolog.Logger) *Service {
	if c == nil {
		c = cache.Noop{}
	}
	if tx == nil {
		tx = db.NoopTxRunner{}
	}
	return &Service{
		st:           stores,
		patients:     patients,
		cache:        c,
		dashboardTTL: dashboardTTL,
		tx:           tx,
		logger:       logger,
		now:          time.Now,
	}
}

// WithAudit makes claim status changes and payment voids write an audit
// entry in the same transaction.
func (s *Service) WithAudit(r ChangeRecorder) *Service {
	s.audit = r
	return s
}

func (s *Service) recordChange(ctx context.Context, resourceType string, id uuid.UUID, before, after any) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.RecordChange(ctx, resourceType, id, before, after)
}

func currentUser(ctx context.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil {
		return uuid.Nil, apperror.New(apperror.CodeUnauthorized, "")
	}
	return id, nil
}

func (s *Service) requirePatient(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return apperror.Validation("patient_id is required")
	}
	ok, err := s.patients.PatientExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.Validation("patient %s does not exist", id)
	}
	return nil
}

func (s *Service) requireActiveHMO(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return apperror.Validation("hmo_provider_id is required")
	}
	h, err := s.st.HMOs.GetByID(ctx, id)
	if err != nil {
		if apperror.IsCode(err, apperror.CodeNotFound) {
			return apperror.Validation("hmo provider %s does not exist", id)
		}
		return err
	}
	if !h.Active {
		return apperror.Validation("hmo provider %s is inactive", h.Code)
	}
	return nil
}

// invalidateDashboard drops every cached dashboard. Failures are logged; the
// entries expire on their own.
func (s *Service) invalidateDashboard(ctx context.Context) {
	if err := s.cache.DeletePrefix(ctx, dashboardPrefix); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate dashboard cache")
	}
}

func blank(p *string) bool {
	return p == nil || strings.TrimSpace(*p) == ""
}

// -- Payments --

func (s *Service) RecordPayment(ctx context.Context, p *Payment) error {
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}
	if err := s.requirePatient(ctx, p.PatientID); err != nil {
		return err
	}
	p.Amount = round2(p.Amount)
	if p.Amount <= 0 {
		return apperror.Validation("amount must be positive")
	}
	p.Method = strings.ToLower(strings.TrimSpace(p.Method))
	if !validMethods[p.Method] {
		return apperror.Validation("invalid payment method: %q", p.Method)
	}
	p.Status = PaymentCompleted
	p.ReceivedBy = &user
	p.VoidReason, p.VoidedBy, p.VoidedAt = nil, nil, nil
	if err := s.st.Payments.Create(ctx, p); err != nil {
		return err
	}
	s.invalidateDashboard(ctx)
	return nil
}

func (s *Service) GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	return s.st.Payments.GetByID(ctx, id)
}

func (s *Service) ListPayments(ctx context.Context, params map[string]string, limit, offset int) ([]*Payment, int, error) {
	return s.st.Payments.Search(ctx, params, limit, offset)
}

func (s *Service) VoidPayment(ctx context.Context, id uuid.UUID, reason string) (*Payment, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperror.Validation("a reason is required to void a payment")
	}
	p, err := s.st.Payments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status == PaymentVoided {
		return nil, apperror.Conflict("payment is already voided")
	}
	before := *p
	at := s.now()
	p.Status = PaymentVoided
	p.VoidReason = &reason
	p.VoidedBy = &user
	p.VoidedAt = &at
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.st.Payments.Void(ctx, p); err != nil {
			return err
		}
		return s.recordChange(ctx, "payments", p.ID, &before, p)
	})
	if err != nil {
		return nil, err
	}
	s.invalidateDashboard(ctx)
	return p, nil
}

// -- HMO providers --

func (s *Service) CreateHMO(ctx context.Context, h *HMOProvider) error {
	h.Name = strings.TrimSpace(h.Name)
	h.Code = strings.ToUpper(strings.TrimSpace(h.Code))
	if h.Name == "" {
		return apperror.Validation("name is required")
	}
	if h.Code == "" {
		return apperror.Validation("code is required")
	}
	h.Active = true
	return s.st.HMOs.Create(ctx, h)
}

func (s *Service) GetHMO(ctx context.Context, id uuid.UUID) (*HMOProvider, error) {
	return s.st.HMOs.GetByID(ctx, id)
}

func (s *Service) ListHMOs(ctx context.Context, params map[string]string, limit, offset int) ([]*HMOProvider, int, error) {
	return s.st.HMOs.Search(ctx, params, limit, offset)
}

// -- Pre-authorizations --

func (s *Service) RequestPreauth(ctx context.Context, p *PreAuthorization) error {
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}
	if err := s.requirePatient(ctx, p.PatientID); err != nil {
		return err
	}
	if err := s.requireActiveHMO(ctx, p.HMOProviderID); err != nil {
		return err
	}
	p.ServiceCode = strings.TrimSpace(p.ServiceCode)
	if p.ServiceCode == "" {
		return apperror.Validation("service_code is required")
	}
	if p.RequestedAmount < 0 {
		return apperror.Validation("requested_amount cannot be negative")
	}
	p.RequestedAmount = round2(p.RequestedAmount)
	p.Status = PreauthPending
	p.RequestedBy = &user
	p.AuthCode, p.ValidFrom, p.ValidUntil, p.DenialReason, p.DecidedBy = nil, nil, nil, nil, nil
	return s.st.Preauths.Create(ctx, p)
}

func (s *Service) GetPreauth(ctx context.Context, id uuid.UUID) (*PreAuthorization, error) {
	return s.st.Preauths.GetByID(ctx, id)
}

func (s *Service) ListPreauths(ctx context.Context, params map[string]string, limit, offset int) ([]*PreAuthorization, int, error) {
	return s.st.Preauths.Search(ctx, params, limit, offset)
}

// NewAuthCode returns a PA-YYYYMMDD-XXXXXXXX authorization code.
func NewAuthCode(t time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("PA-%s-%s", t.Format("20060102"), suffix)
}

func (s *Service) pendingPreauth(ctx context.Context, id uuid.UUID) (*PreAuthorization, error) {
	p, err := s.st.Preauths.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != PreauthPending {
		return nil, apperror.Conflict("pre-authorization is already %s", p.Status)
	}
	return p, nil
}

func (s *Service) ApprovePreauth(ctx context.Context, id uuid.UUID, req ApproveRequest) (*PreAuthorization, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	days := req.ValidDays
	if days == 0 {
		days = defaultValidDays
	}
	if days < 0 || days > maxValidDays {
		return nil, apperror.Validation("valid_days must be between 1 and %d", maxValidDays)
	}
	p, err := s.pendingPreauth(ctx, id)
	if err != nil {
		return nil, err
	}
	from := s.now()
	until := from.AddDate(0, 0, days)
	code := NewAuthCode(from)
	p.Status = PreauthApproved
	p.AuthCode = &code
	p.ValidFrom = &from
	p.ValidUntil = &until
	p.DecidedBy = &user
	if err := s.st.Preauths.Decide(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) DenyPreauth(ctx context.Context, id uuid.UUID, reason string) (*PreAuthorization, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperror.Validation("a reason is required to deny a pre-authorization")
	}
	p, err := s.pendingPreauth(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Status = PreauthDenied
	p.DenialReason = &reason
	p.DecidedBy = &user
	if err := s.st.Preauths.Decide(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// -- Claims --

var claimTransitions = map[string][]string{
	ClaimDraft:     {ClaimSubmitted},
	ClaimSubmitted: {ClaimApproved, ClaimRejected},
	ClaimApproved:  {ClaimPaid},
}

func CanTransitionClaim(from, to string) bool {
	for _, s := range claimTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func validateItem(it *ClaimItem) error {
	it.ServiceCode = strings.TrimSpace(it.ServiceCode)
	if it.ServiceCode == "" {
		return apperror.Validation("service_code is required")
	}
	if it.Quantity <= 0 {
		return apperror.Validation("%s: quantity must be positive", it.ServiceCode)
	}
	if it.UnitPrice < 0 {
		return apperror.Validation("%s: unit_price cannot be negative", it.ServiceCode)
	}
	it.UnitPrice = round2(it.UnitPrice)
	return nil
}

// applyTotals recomputes the claim amounts from its items.
func applyTotals(c *Claim) error {
	if c.CopayAmount < 0 {
		return apperror.Validation("copay_amount cannot be negative")
	}
	c.CopayAmount = round2(c.CopayAmount)
	total, claim := ClaimTotals(c.Items, c.CopayAmount)
	if c.CopayAmount > total {
		return apperror.Validation("copay_amount %.2f exceeds total %.2f", c.CopayAmount, total)
	}
	c.TotalAmount, c.ClaimAmount = total, claim
	return nil
}

// checkPreauth verifies that id names an approved, unexpired authorization
// for the claim's patient and HMO.
func (s *Service) checkPreauth(ctx context.Context, c *Claim, id uuid.UUID) error {
	p, err := s.st.Preauths.GetByID(ctx, id)
	if err != nil {
		if apperror.IsCode(err, apperror.CodeNotFound) {
			return apperror.Validation("pre-authorization %s does not exist", id)
		}
		return err
	}
	if p.PatientID != c.PatientID || p.HMOProviderID != c.HMOProviderID {
		return apperror.Validation("pre-authorization does not match the claim's patient and HMO")
	}
	if !p.UsableAt(s.now()) {
		return apperror.Validation("pre-authorization is not approved or has expired")
	}
	return nil
}

// NewClaimNumber returns a CLM-YYYYMMDD-XXXXXXXX claim number.
func NewClaimNumber(t time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("CLM-%s-%s", t.Format("20060102"), suffix)
}

func (s *Service) CreateClaim(ctx context.Context, c *Claim) error {
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}
	if err := s.requirePatient(ctx, c.PatientID); err != nil {
		return err
	}
	if err := s.requireActiveHMO(ctx, c.HMOProviderID); err != nil {
		return err
	}
	if c.PreauthID != nil {
		if err := s.checkPreauth(ctx, c, *c.PreauthID); err != nil {
			return err
		}
	}
	if c.Items == nil {
		c.Items = []ClaimItem{}
	}
	for i := range c.Items {
		if err := validateItem(&c.Items[i]); err != nil {
			return err
		}
	}
	if err := applyTotals(c); err != nil {
		return err
	}
	c.ClaimNumber = NewClaimNumber(s.now())
	c.Status = ClaimDraft
	c.CreatedBy = &user
	c.SubmittedAt, c.DecidedAt, c.RejectionReason = nil, nil, nil

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		return s.st.Claims.Create(ctx, c)
	})
	if err != nil {
		return err
	}
	s.invalidateDashboard(ctx)
	return nil
}

func (s *Service) GetClaim(ctx context.Context, id uuid.UUID) (*Claim, error) {
	return s.st.Claims.GetByID(ctx, id)
}

func (s *Service) ListClaims(ctx context.Context, params map[string]string, limit, offset int) ([]*Claim, int, error) {
	return s.st.Claims.Search(ctx, params, limit, offset)
}

// editDraft locks the claim, applies fn to it, recomputes the totals and
// persists the header. fn may change items through the repository and must
// mirror those changes on c.Items.
func (s *Service) editDraft(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, c *Claim) error) (*Claim, error) {
	var out *Claim
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		c, err := s.st.Claims.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if c.Status != ClaimDraft {
			return apperror.Conflict("claim %s is %s; only draft claims can be edited", c.ClaimNumber, c.Status)
		}
		if err := fn(ctx, c); err != nil {
			return err
		}
		if err := applyTotals(c); err != nil {
			return err
		}
		if err := s.st.Claims.Update(ctx, c); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidateDashboard(ctx)
	return out, nil
}

func (s *Service) UpdateClaim(ctx context.Context, id uuid.UUID, u ClaimUpdate) (*Claim, error) {
	return s.editDraft(ctx, id, func(ctx context.Context, c *Claim) error {
		if u.CopayAmount != nil {
			c.CopayAmount = *u.CopayAmount
		}
		if u.Notes != nil {
			c.Notes = u.Notes
		}
		if u.PreauthID != nil {
			if *u.PreauthID == uuid.Nil {
				c.PreauthID = nil
			} else {
				if err := s.checkPreauth(ctx, c, *u.PreauthID); err != nil {
					return err
				}
				c.PreauthID = u.PreauthID
			}
		}
		return nil
	})
}

func (s *Service) AddClaimItem(ctx context.Context, claimID uuid.UUID, it *ClaimItem) (*Claim, error) {
	if err := validateItem(it); err != nil {
		return nil, err
	}
	return s.editDraft(ctx, claimID, func(ctx context.Context, c *Claim) error {
		it.ClaimID = c.ID
		c.Items = append(c.Items, *it)
		// the copay check runs before the insert reaches the database
		if err := applyTotals(c); err != nil {
			return err
		}
		if err := s.st.Claims.AddItem(ctx, it); err != nil {
			return err
		}
		c.Items[len(c.Items)-1] = *it
		return nil
	})
}

func (s *Service) UpdateClaimItem(ctx context.Context, claimID uuid.UUID, it *ClaimItem) (*Claim, error) {
	if err := validateItem(it); err != nil {
		return nil, err
	}
	return s.editDraft(ctx, claimID, func(ctx context.Context, c *Claim) error {
		idx := findItem(c.Items, it.ID)
		if idx < 0 {
			return apperror.NotFound("claim item")
		}
		it.ClaimID = c.ID
		it.CreatedAt = c.Items[idx].CreatedAt
		c.Items[idx] = *it
		if err := applyTotals(c); err != nil {
			return err
		}
		return s.st.Claims.UpdateItem(ctx, it)
	})
}

func (s *Service) RemoveClaimItem(ctx context.Context, claimID, itemID uuid.UUID) (*Claim, error) {
	return s.editDraft(ctx, claimID, func(ctx context.Context, c *Claim) error {
		idx := findItem(c.Items, itemID)
		if idx < 0 {
			return apperror.NotFound("claim item")
		}
		c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
		if err := applyTotals(c); err != nil {
			return err
		}
		return s.st.Claims.RemoveItem(ctx, claimID, itemID)
	})
}

func findItem(items []ClaimItem, id uuid.UUID) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

var validClaimStatuses = map[string]bool{
	ClaimDraft: true, ClaimSubmitted: true, ClaimApproved: true, ClaimRejected: true, ClaimPaid: true,
}

func (s *Service) ChangeClaimStatus(ctx context.Context, id uuid.UUID, req ClaimStatusChange) (*Claim, error) {
	if !validClaimStatuses[req.Status] {
		return nil, apperror.Validation("invalid claim status: %q", req.Status)
	}
	var out *Claim
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		c, err := s.st.Claims.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransitionClaim(c.Status, req.Status) {
			return apperror.Conflict("cannot move claim from %s to %s", c.Status, req.Status)
		}
		before := *c
		now := s.now()
		switch req.Status {
		case ClaimSubmitted:
			if len(c.Items) == 0 {
				return apperror.Validation("a claim needs at least one item before submission")
			}
			c.SubmittedAt = &now
		case ClaimRejected:
			reason := strings.TrimSpace(req.Reason)
			if reason == "" {
				return apperror.Validation("a reason is required to reject a claim")
			}
			c.RejectionReason = &reason
			c.DecidedAt = &now
		case ClaimApproved:
			c.DecidedAt = &now
		}
		c.Status = req.Status
		if err := s.st.Claims.Update(ctx, c); err != nil {
			return err
		}
		if err := s.recordChange(ctx, "claims", c.ID, &before, c); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidateDashboard(ctx)
	return out, nil
}

// -- Service codes --

func (s *Service) activeServiceCodes(ctx context.Context) ([]*ServiceCode, error) {
	var codes []*ServiceCode
	hit, err := s.cache.GetJSON(ctx, serviceCodesKey, &codes)
	if err != nil {
		s.logger.Warn().Err(err).Msg("service code cache read failed")
	}
	if hit {
		return codes, nil
	}
	codes, err = s.st.ServiceCodes.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetJSON(ctx, serviceCodesKey, codes, serviceCodesTTL); err != nil {
		s.logger.Warn().Err(err).Msg("service code cache write failed")
	}
	return codes, nil
}

// SearchServiceCodes filters the active catalog by a case-insensitive
// substring of code or description and by exact category.
func (s *Service) SearchServiceCodes(ctx context.Context, q, category string) ([]*ServiceCode, error) {
	codes, err := s.activeServiceCodes(ctx)
	if err != nil {
		return nil, err
	}
	q = strings.ToLower(strings.TrimSpace(q))
	category = strings.TrimSpace(category)
	out := make([]*ServiceCode, 0, len(codes))
	for _, sc := range codes {
		if category != "" && (sc.Category == nil || !strings.EqualFold(*sc.Category, category)) {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(sc.Code), q) && !strings.Contains(strings.ToLower(sc.Description), q) {
			continue
		}
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// -- Dashboard --

func dashboardKey(from, to time.Time) string {
	return dashboardPrefix + from.Format("2006-01-02") + ":" + to.Format("2006-01-02")
}

// FinancialDashboard summarizes payments and claims created between the
// from and to dates, both inclusive.
func (s *Service) FinancialDashboard(ctx context.Context, from, to time.Time) (*Dashboard, error) {
	from = truncateDay(from)
	to = truncateDay(to)
	if to.Before(from) {
		return nil, apperror.Validation("to must not be before from")
	}
	key := dashboardKey(from, to)

	var cached Dashboard
	hit, err := s.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("dashboard cache read failed")
	}
	if hit {
		return &cached, nil
	}

	end := to.AddDate(0, 0, 1)
	payments, err := s.st.Reports.PaymentTotals(ctx, from, end)
	if err != nil {
		return nil, err
	}
	claims, err := s.st.Reports.ClaimTotals(ctx, from, end)
	if err != nil {
		return nil, err
	}
	d := BuildDashboard(payments, claims)
	d.From, d.To, d.GeneratedAt = from, to, s.now()

	if err := s.cache.SetJSON(ctx, key, d, s.dashboardTTL); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("dashboard cache write failed")
	}
	return d, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
