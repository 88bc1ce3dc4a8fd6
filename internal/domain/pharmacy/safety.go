package pharmacy

import "strings"

// allergyClasses expands an allergen class to the drugs it covers.
var allergyClasses = map[string][]string{
	"penicillin":      {"penicillin", "amoxicillin", "ampicillin", "cloxacillin", "piperacillin", "augmentin"},
	"sulfa":           {"sulfamethoxazole", "co-trimoxazole", "cotrimoxazole", "sulfadiazine", "sulfasalazine"},
	"nsaid":           {"ibuprofen", "diclofenac", "naproxen", "aspirin", "piroxicam", "ketorolac"},
	"cephalosporin":   {"cefuroxime", "ceftriaxone", "cefalexin", "cephalexin", "cefixime"},
	"sulfonamide":     {"sulfamethoxazole", "co-trimoxazole", "cotrimoxazole"},
	"opioid":          {"morphine", "codeine", "tramadol", "pethidine"},
	"fluoroquinolone": {"ciprofloxacin", "levofloxacin", "ofloxacin"},
}

type interaction struct {
	a, b        string
	severity    string
	description string
}

var interactionTable = []interaction{
	{"warfarin", "aspirin", "major", "Increased risk of bleeding"},
	{"warfarin", "ibuprofen", "major", "Increased risk of gastrointestinal bleeding"},
	{"warfarin", "metronidazole", "major", "Metronidazole potentiates the anticoagulant effect"},
	{"sildenafil", "nitroglycerin", "contraindicated", "Severe hypotension"},
	{"simvastatin", "clarithromycin", "major", "Raised statin levels and risk of myopathy"},
	{"lisinopril", "spironolactone", "moderate", "Risk of hyperkalaemia"},
	{"ciprofloxacin", "theophylline", "major", "Theophylline toxicity"},
	{"methotrexate", "co-trimoxazole", "major", "Bone marrow suppression"},
	{"artemether", "halofantrine", "contraindicated", "QT prolongation"},
	{"metformin", "alcohol", "moderate", "Risk of lactic acidosis"},
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// matches reports whether a medication name refers to drug.
func matches(medName, drug string) bool {
	return strings.Contains(normalize(medName), drug)
}

// CheckAllergies returns an alert for every medication that matches one
// of the patient's recorded allergens, directly or through its class.
func CheckAllergies(meds []Medication, allergies []string) []AllergyAlert {
	var alerts []AllergyAlert
	for _, m := range meds {
		for _, raw := range allergies {
			allergen := normalize(raw)
			if allergen == "" {
				continue
			}
			hit := matches(m.Name, allergen)
			for _, drug := range allergyClasses[allergen] {
				if hit {
					break
				}
				hit = matches(m.Name, drug)
			}
			if hit {
				alerts = append(alerts, AllergyAlert{Medication: m.Name, Allergen: raw})
			}
		}
	}
	return alerts
}

// CheckInteractions compares every pair of medications against the
// interaction table.
func CheckInteractions(meds []Medication) []InteractionAlert {
	var alerts []InteractionAlert
	for i := 0; i < len(meds); i++ {
		for j := i + 1; j < len(meds); j++ {
			a, b := meds[i].Name, meds[j].Name
			for _, in := range interactionTable {
				if (matches(a, in.a) && matches(b, in.b)) || (matches(a, in.b) && matches(b, in.a)) {
					alerts = append(alerts, InteractionAlert{
						MedicationA: a, MedicationB: b,
						Severity: in.severity, Description: in.description,
					})
				}
			}
		}
	}
	return alerts
}
