package portal

import "github.com/wolfman30/healthfirst-portals/internal/wizard"

var (
	GenderOptions = []wizard.Option{
		{Value: "male", Label: "Male"},
		{Value: "female", Label: "Female"},
		{Value: "other", Label: "Other"},
		{Value: "prefer-not-to-say", Label: "Prefer not to say"},
	}

	BloodTypeOptions = valueOptions("A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-", "Unknown")

	RelationOptions = valueOptions("Parent", "Spouse", "Sibling", "Child", "Friend", "Other")
)

func valueOptions(values ...string) []wizard.Option {
	out := make([]wizard.Option, len(values))
	for i, v := range values {
		out[i] = wizard.Option{Value: v, Label: v}
	}
	return out
}

func freeText(name, label string, kind wizard.FieldKind, maxLen int) wizard.Field {
	return wizard.Field{Name: name, Label: label, Kind: kind, MaxLength: maxLen}
}

// PatientDefinition is the four-step patient registration wizard.
func PatientDefinition(rules *wizard.Rules) *wizard.Definition {
	security := passwordFields(rules)
	security = append(security,
		wizard.Field{
			Name: "termsAccepted", Label: "Terms and conditions", Kind: wizard.KindCheckbox,
			Required: true, RequiredMessage: "You must accept the terms and conditions",
		},
		wizard.Field{
			Name: "privacyAccepted", Label: "Privacy policy", Kind: wizard.KindCheckbox,
			Required: true, RequiredMessage: "You must accept the privacy policy",
		},
		wizard.Field{Name: "communicationConsent", Label: "Communication consent", Kind: wizard.KindCheckbox},
	)

	return wizard.MustDefinition(string(Patient),
		wizard.Step{Label: "Personal Information", Fields: []wizard.Field{
			nameField("firstName", "First name"),
			nameField("lastName", "Last name"),
			emailField(rules),
			phoneField(rules, "phoneNumber", "Phone number"),
			{
				Name:     "dateOfBirth",
				Label:    "Date of birth",
				Kind:     wizard.KindDate,
				Required: true,
				Checks:   []wizard.Check{rules.BirthDateCheck()},
				Live:     true,
			},
			{Name: "gender", Label: "Gender", Kind: wizard.KindSelect, Required: true, Options: GenderOptions},
		}},
		wizard.Step{Label: "Address Information", Fields: addressFields(rules)},
		wizard.Step{Label: "Medical & Emergency Information", Fields: []wizard.Field{
			{Name: "emergencyContactName", Label: "Emergency contact name", Kind: wizard.KindText, Required: true, MaxLength: 100},
			phoneField(rules, "emergencyContactPhone", "Emergency contact phone"),
			{Name: "emergencyContactRelation", Label: "Relationship", Kind: wizard.KindSelect, Required: true, Options: RelationOptions},
			{Name: "bloodType", Label: "Blood type", Kind: wizard.KindSelect, Options: BloodTypeOptions},
			freeText("allergies", "Allergies", wizard.KindTextArea, 200),
			freeText("currentMedications", "Current medications", wizard.KindTextArea, 200),
			freeText("medicalHistory", "Medical history", wizard.KindTextArea, 200),
			freeText("insuranceProvider", "Insurance provider", wizard.KindText, 100),
			freeText("insurancePolicyNumber", "Policy number", wizard.KindText, 50),
			freeText("insuranceGroupNumber", "Group number", wizard.KindText, 50),
		}},
		wizard.Step{Label: "Account Security", Fields: security},
	)
}
