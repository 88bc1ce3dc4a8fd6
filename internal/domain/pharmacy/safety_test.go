package pharmacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAllergies(t *testing.T) {
	meds := []Medication{
		{Name: "Amoxicillin 500mg"},
		{Name: "Paracetamol"},
		{Name: "Ibuprofen"},
	}

	alerts := CheckAllergies(meds, []string{"Penicillin", "NSAID"})
	require.Len(t, alerts, 2)
	assert.Equal(t, "Amoxicillin 500mg", alerts[0].Medication)
	assert.Equal(t, "Penicillin", alerts[0].Allergen)
	assert.Equal(t, "Ibuprofen", alerts[1].Medication)

	assert.Empty(t, CheckAllergies(meds, nil))
	assert.Empty(t, CheckAllergies(meds, []string{"", "latex"}))

	direct := CheckAllergies([]Medication{{Name: "Paracetamol"}}, []string{"paracetamol"})
	assert.Len(t, direct, 1)
}

func TestCheckInteractions(t *testing.T) {
	meds := []Medication{
		{Name: "Aspirin 75mg"},
		{Name: "Metformin"},
		{Name: "Warfarin 5mg"},
	}
	alerts := CheckInteractions(meds)
	require.Len(t, alerts, 1)
	assert.Equal(t, "Aspirin 75mg", alerts[0].MedicationA)
	assert.Equal(t, "Warfarin 5mg", alerts[0].MedicationB)
	assert.Equal(t, "major", alerts[0].Severity)

	assert.Empty(t, CheckInteractions([]Medication{{Name: "Warfarin"}}))
	assert.Empty(t, CheckInteractions([]Medication{{Name: "Paracetamol"}, {Name: "Amlodipine"}}))
}
