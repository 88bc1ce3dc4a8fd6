package identity

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/apperror"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
)

// TokenIssuer signs access tokens for authenticated users.
type TokenIssuer interface {
	Issue(subject, name string, roles []string) (string, time.Time, error)
}

// ChangeRecorder keeps before and after snapshots of an edited resource.
type ChangeRecorder interface {
	RecordChange(ctx context.Context, resourceType string, id uuid.UUID, before, after any) error
}

type Service struct {
	users    UserRepository
	patients PatientRepository
	tokens   TokenIssuer
	tx       db.TxRunner
	audit    ChangeRecorder
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(users UserRepository, patients PatientRepository, tokens TokenIssuer, tx db.TxRunner, logger zerolog.Logger) *Service {
	if tx == nil {
		tx = db.NoopTxRunner{}
	}
	return &Service{users: users, patients: patients, tokens: tokens, tx: tx, logger: logger, now: time.Now}
}

// WithAudit makes account activation changes write an audit entry.
func (s *Service) WithAudit(r ChangeRecorder) *Service {
	s.audit = r
	return s
}

// -- Users --

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{3,64}$`)

func validEmail(s string) bool {
	at := strings.Index(s, "@")
	return at > 0 && at < len(s)-1 && !strings.ContainsAny(s, " \t")
}

func (s *Service) CreateUser(ctx context.Context, req *CreateUserRequest) (*User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if !usernamePattern.MatchString(req.Username) {
		return nil, apperror.Validation("username must be 3-64 letters, digits, dots, dashes or underscores")
	}
	if !validEmail(req.Email) {
		return nil, apperror.Validation("a valid email is required")
	}
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		return nil, apperror.Validation("first_name and last_name are required")
	}
	if !auth.ValidRole(req.Role) {
		return nil, apperror.Validation("invalid role: %s", req.Role)
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, apperror.Validation("%s", err.Error())
	}

	u := &User{
		Username:      req.Username,
		Email:         req.Email,
		PasswordHash:  hash,
		FirstName:     strings.TrimSpace(req.FirstName),
		LastName:      strings.TrimSpace(req.LastName),
		Role:          req.Role,
		Department:    req.Department,
		Specialty:     req.Specialty,
		LicenseNumber: req.LicenseNumber,
		Phone:         req.Phone,
		Active:        true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if apperror.IsCode(err, apperror.CodeConflict) {
			return nil, apperror.Conflict("username or email already in use")
		}
		return nil, err
	}
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context, params map[string]string, limit, offset int) ([]*User, int, error) {
	if role := params["role"]; role != "" && !auth.ValidRole(role) {
		return nil, 0, apperror.Validation("invalid role: %s", role)
	}
	return s.users.Search(ctx, params, limit, offset)
}

func (s *Service) UpdateUser(ctx context.Context, id uuid.UUID, req *UpdateUserRequest) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*req.Email))
		if !validEmail(email) {
			return nil, apperror.Validation("a valid email is required")
		}
		u.Email = email
	}
	if req.Role != nil {
		if !auth.ValidRole(*req.Role) {
			return nil, apperror.Validation("invalid role: %s", *req.Role)
		}
		u.Role = *req.Role
	}
	if req.Password != nil {
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			return nil, apperror.Validation("%s", err.Error())
		}
		u.PasswordHash = hash
	}
	if req.FirstName != nil {
		u.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		u.LastName = strings.TrimSpace(*req.LastName)
	}
	if u.FirstName == "" || u.LastName == "" {
		return nil, apperror.Validation("first_name and last_name are required")
	}
	if req.Department != nil {
		u.Department = req.Department
	}
	if req.Specialty != nil {
		u.Specialty = req.Specialty
	}
	if req.LicenseNumber != nil {
		u.LicenseNumber = req.LicenseNumber
	}
	if req.Phone != nil {
		u.Phone = req.Phone
	}
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// DeactivateUser soft-deletes an account. Users are never removed.
func (s *Service) DeactivateUser(ctx context.Context, id uuid.UUID) error {
	if actor := auth.UserIDFromContext(ctx); actor == id.String() {
		return apperror.Validation("you cannot deactivate your own account")
	}
	return s.setActive(ctx, id, false)
}

func (s *Service) ActivateUser(ctx context.Context, id uuid.UUID) error {
	return s.setActive(ctx, id, true)
}

func (s *Service) setActive(ctx context.Context, id uuid.UUID, active bool) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		u, err := s.users.GetByID(ctx, id)
		if err != nil {
			return err
		}
		before := *u
		if err := s.users.SetActive(ctx, id, active); err != nil {
			return err
		}
		if s.audit == nil || before.Active == active {
			return nil
		}
		after := before
		after.Active = active
		return s.audit.RecordChange(ctx, "users", id, &before, &after)
	})
}

// Login verifies credentials and issues a token. Unknown users, wrong
// passwords and inactive accounts produce the same error.
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	invalid := apperror.New(apperror.CodeUnauthorized, "invalid username or password")
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return nil, invalid
	}

	u, err := s.users.GetByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if apperror.IsCode(err, apperror.CodeNotFound) {
			return nil, invalid
		}
		return nil, err
	}
	ok, err := auth.VerifyPassword(u.PasswordHash, req.Password)
	if err != nil {
		return nil, err
	}
	if !ok || !u.Active {
		return nil, invalid
	}

	token, exp, err := s.tokens.Issue(u.ID.String(), u.FullName(), []string{u.Role})
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if err := s.users.TouchLogin(ctx, u.ID, now); err != nil {
		s.logger.Warn().Err(err).Str("user_id", u.ID.String()).Msg("failed to record last login")
	} else {
		u.LastLoginAt = &now
	}

	return &LoginResponse{Token: token, ExpiresAt: exp, User: u}, nil
}

// -- Patients --

var validPatientStatuses = map[string]bool{"active": true, "inactive": true}

var validBloodTypes = map[string]bool{
	"A+": true, "A-": true, "B+": true, "B-": true,
	"AB+": true, "AB-": true, "O+": true, "O-": true,
}

const mrnAttempts = 3

// FormatMRN renders the MRN for the seq-th patient registered on day.
func FormatMRN(day time.Time, seq int) string {
	return fmt.Sprintf("MRN-%s-%06d", day.Format("20060102"), seq)
}

func (s *Service) validatePatient(p *Patient) error {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	if p.FirstName == "" || p.LastName == "" {
		return apperror.Validation("first_name and last_name are required")
	}
	if p.Status == "" {
		p.Status = "active"
	}
	if !validPatientStatuses[p.Status] {
		return apperror.Validation("invalid patient status: %s", p.Status)
	}
	if p.BloodType != nil && *p.BloodType != "" && !validBloodTypes[strings.ToUpper(*p.BloodType)] {
		return apperror.Validation("invalid blood_type: %s", *p.BloodType)
	}
	if p.DateOfBirth != nil && p.DateOfBirth.After(s.now()) {
		return apperror.Validation("date_of_birth cannot be in the future")
	}
	if p.Email != nil && *p.Email != "" && !validEmail(*p.Email) {
		return apperror.Validation("invalid email")
	}
	return nil
}

// CreatePatient registers a patient, generating an MRN when none is given.
func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if err := s.validatePatient(p); err != nil {
		return err
	}
	if p.AssignedDoctor != nil {
		if err := s.requireDoctor(ctx, *p.AssignedDoctor); err != nil {
			return err
		}
	}

	if p.MRN = strings.TrimSpace(p.MRN); p.MRN != "" {
		err := s.patients.Create(ctx, p)
		if apperror.IsCode(err, apperror.CodeConflict) {
			return apperror.Conflict("MRN %s is already registered", p.MRN)
		}
		return err
	}

	day := s.now()
	prefix := "MRN-" + day.Format("20060102") + "-"
	var err error
	for attempt := 0; attempt < mrnAttempts; attempt++ {
		var n int
		n, err = s.patients.CountMRNPrefix(ctx, prefix)
		if err != nil {
			return err
		}
		p.MRN = FormatMRN(day, n+1+attempt)
		err = s.patients.Create(ctx, p)
		if !apperror.IsCode(err, apperror.CodeConflict) {
			return err
		}
	}
	return apperror.Conflict("could not allocate a unique MRN, retry the request")
}

func (s *Service) requireDoctor(ctx context.Context, id uuid.UUID) error {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if apperror.IsCode(err, apperror.CodeNotFound) {
			return apperror.Validation("assigned_doctor does not exist")
		}
		return err
	}
	if u.Role != auth.RoleDoctor || !u.Active {
		return apperror.Validation("assigned_doctor must be an active doctor")
	}
	return nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) GetPatientByMRN(ctx context.Context, mrn string) (*Patient, error) {
	return s.patients.GetByMRN(ctx, strings.TrimSpace(mrn))
}

func (s *Service) ListPatients(ctx context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error) {
	if st := params["status"]; st != "" && !validPatientStatuses[st] {
		return nil, 0, apperror.Validation("invalid patient status: %s", st)
	}
	return s.patients.Search(ctx, params, limit, offset)
}

// UpdatePatient replaces the editable fields of an existing patient. The MRN
// is immutable.
func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	existing, err := s.patients.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	if p.MRN != "" && p.MRN != existing.MRN {
		return apperror.Validation("mrn cannot be changed")
	}
	p.MRN = existing.MRN
	if p.Status == "" {
		p.Status = existing.Status
	}
	if err := s.validatePatient(p); err != nil {
		return err
	}
	if p.AssignedDoctor != nil && (existing.AssignedDoctor == nil || *existing.AssignedDoctor != *p.AssignedDoctor) {
		if err := s.requireDoctor(ctx, *p.AssignedDoctor); err != nil {
			return err
		}
	}
	p.CreatedAt = existing.CreatedAt
	return s.patients.Update(ctx, p)
}

func (s *Service) DeactivatePatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status == "inactive" {
		return p, nil
	}
	p.Status = "inactive"
	if err := s.patients.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// PatientAllergies returns the parsed allergy list of a patient.
func (s *Service) PatientAllergies(ctx context.Context, patientID uuid.UUID) ([]string, error) {
	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return p.Allergies(), nil
}

// PatientExists reports whether a patient with id is registered.
func (s *Service) PatientExists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := s.patients.GetByID(ctx, id)
	if err == nil {
		return true, nil
	}
	if apperror.IsCode(err, apperror.CodeNotFound) {
		return false, nil
	}
	return false, err
}

// UserHasRole reports whether id is an active user holding role.
func (s *Service) UserHasRole(ctx context.Context, id uuid.UUID, role string) (bool, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if apperror.IsCode(err, apperror.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	return u.Active && u.Role == role, nil
}
