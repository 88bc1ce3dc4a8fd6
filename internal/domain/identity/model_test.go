package identity

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestParseAllergies(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"", nil},
		{"None", nil},
		{"NKDA", nil},
		{"Penicillin, Aspirin", []string{"penicillin", "aspirin"}},
		{"latex; peanuts\nshellfish", []string{"latex", "peanuts", "shellfish"}},
		{`["Ibuprofen"," codeine "]`, []string{"ibuprofen", "codeine"}},
		{`[{"name":"Sulfa","severity":"high"},{"allergen":"Eggs"}]`, []string{"sulfa", "eggs"}},
	}
	for _, tt := range tests {
		got := ParseAllergies(tt.raw)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseAllergies(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestPatient_AllergiesNil(t *testing.T) {
	p := &Patient{}
	if p.Allergies() != nil {
		t.Error("expected nil allergies when blob is absent")
	}
}

func TestUser_PasswordHashNotSerialized(t *testing.T) {
	u := User{Username: "doc", PasswordHash: "$2a$10$secret"}
	b, err := json.Marshal(u)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(b), "secret") || strings.Contains(string(b), "password") {
		t.Errorf("password hash leaked: %s", b)
	}
}

func TestFullName(t *testing.T) {
	u := &User{FirstName: "Meredith", LastName: "Grey"}
	if u.FullName() != "Meredith Grey" {
		t.Errorf("unexpected %q", u.FullName())
	}
	p := &Patient{FirstName: "Ada"}
	if p.FullName() != "Ada" {
		t.Errorf("unexpected %q", p.FullName())
	}
}
