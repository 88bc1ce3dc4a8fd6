package identity

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is a staff account. PasswordHash is never serialized.
type User struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	Username      string     `db:"username" json:"username"`
	Email         string     `db:"email" json:"email"`
	PasswordHash  string     `db:"password_hash" json:"-"`
	FirstName     string     `db:"first_name" json:"first_name"`
	LastName      string     `db:"last_name" json:"last_name"`
	Role          string     `db:"role" json:"role"`
	Department    *string    `db:"department" json:"department,omitempty"`
	Specialty     *string    `db:"specialty" json:"specialty,omitempty"`
	LicenseNumber *string    `db:"license_number" json:"license_number,omitempty"`
	Phone         *string    `db:"phone" json:"phone,omitempty"`
	Active        bool       `db:"active" json:"active"`
	LastLoginAt   *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// CreateUserRequest is the admin payload for a new account.
type CreateUserRequest struct {
	Username      string  `json:"username"`
	Email         string  `json:"email"`
	Password      string  `json:"password"`
	FirstName     string  `json:"first_name"`
	LastName      string  `json:"last_name"`
	Role          string  `json:"role"`
	Department    *string `json:"department"`
	Specialty     *string `json:"specialty"`
	LicenseNumber *string `json:"license_number"`
	Phone         *string `json:"phone"`
}

// UpdateUserRequest carries optional changes; nil fields are left untouched.
type UpdateUserRequest struct {
	Email         *string `json:"email"`
	Password      *string `json:"password"`
	FirstName     *string `json:"first_name"`
	LastName      *string `json:"last_name"`
	Role          *string `json:"role"`
	Department    *string `json:"department"`
	Specialty     *string `json:"specialty"`
	LicenseNumber *string `json:"license_number"`
	Phone         *string `json:"phone"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

// Patient is a registered patient. Insurance, MedicalHistory, Allergies and
// CurrentMedications are free-text blobs, usually JSON.
type Patient struct {
	ID                    uuid.UUID  `db:"id" json:"id"`
	MRN                   string     `db:"mrn" json:"mrn"`
	FirstName             string     `db:"first_name" json:"first_name"`
	LastName              string     `db:"last_name" json:"last_name"`
	DateOfBirth           *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Gender                *string    `db:"gender" json:"gender,omitempty"`
	Phone                 *string    `db:"phone" json:"phone,omitempty"`
	Email                 *string    `db:"email" json:"email,omitempty"`
	Address               *string    `db:"address" json:"address,omitempty"`
	EmergencyContactName  *string    `db:"emergency_contact_name" json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone *string    `db:"emergency_contact_phone" json:"emergency_contact_phone,omitempty"`
	BloodType             *string    `db:"blood_type" json:"blood_type,omitempty"`
	Insurance             *string    `db:"insurance" json:"insurance,omitempty"`
	MedicalHistory        *string    `db:"medical_history" json:"medical_history,omitempty"`
	AllergiesText         *string    `db:"allergies" json:"allergies,omitempty"`
	CurrentMedications    *string    `db:"current_medications" json:"current_medications,omitempty"`
	AssignedDoctor        *uuid.UUID `db:"assigned_doctor" json:"assigned_doctor,omitempty"`
	Status                string     `db:"status" json:"status"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`
}

func (p *Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Allergies parses the allergy blob. It accepts a JSON array of strings, a
// JSON array of objects with a "name" or "allergen" field, or a comma or
// semicolon separated list. Entries are trimmed and lower-cased.
func (p *Patient) Allergies() []string {
	if p.AllergiesText == nil {
		return nil
	}
	return ParseAllergies(*p.AllergiesText)
}

func ParseAllergies(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "none") || strings.EqualFold(raw, "nkda") {
		return nil
	}

	var out []string
	add := func(s string) {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" && s != "none" {
			out = append(out, s)
		}
	}

	if strings.HasPrefix(raw, "[") {
		var names []string
		if err := json.Unmarshal([]byte(raw), &names); err == nil {
			for _, n := range names {
				add(n)
			}
			return out
		}
		var objs []struct {
			Name     string `json:"name"`
			Allergen string `json:"allergen"`
		}
		if err := json.Unmarshal([]byte(raw), &objs); err == nil {
			for _, o := range objs {
				if o.Name != "" {
					add(o.Name)
				} else {
					add(o.Allergen)
				}
			}
			return out
		}
	}

	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' || r == '\n' }) {
		add(part)
	}
	return out
}
