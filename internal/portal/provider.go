package portal

import "github.com/wolfman30/healthfirst-portals/internal/wizard"

var SpecializationOptions = valueOptions(
	"Cardiology",
	"Dermatology",
	"Emergency Medicine",
	"Family Medicine",
	"Internal Medicine",
	"Neurology",
	"Oncology",
	"Orthopedics",
	"Pediatrics",
	"Psychiatry",
	"Radiology",
	"Surgery",
	"Other",
)

// ProviderDefinition is the four-step provider registration wizard.
func ProviderDefinition(rules *wizard.Rules) *wizard.Definition {
	return wizard.MustDefinition(string(Provider),
		wizard.Step{Label: "Personal Information", Fields: []wizard.Field{
			nameField("firstName", "First name"),
			nameField("lastName", "Last name"),
			emailField(rules),
			phoneField(rules, "phoneNumber", "Phone number"),
		}},
		wizard.Step{Label: "Professional Information", Fields: []wizard.Field{
			{
				Name:            "specialization",
				Label:           "Specialization",
				Kind:            wizard.KindSelect,
				Required:        true,
				RequiredMessage: "Specialization must be at least 3 characters",
				Options:         SpecializationOptions,
				Checks:          []wizard.Check{wizard.MinLength(3, "Specialization must be at least 3 characters")},
			},
			{
				Name:            "medicalLicenseNumber",
				Label:           "Medical license number",
				Kind:            wizard.KindText,
				Required:        true,
				RequiredMessage: "Medical license number is required",
				Checks:          []wizard.Check{rules.LicenseCheck()},
				Live:            true,
			},
			{
				Name:            "yearsOfExperience",
				Label:           "Years of experience",
				Kind:            wizard.KindNumber,
				Required:        true,
				RequiredMessage: wizard.MsgExperienceRange,
				Checks:          []wizard.Check{rules.ExperienceCheck()},
			},
		}},
		wizard.Step{Label: "Clinic Address", Fields: addressFields(rules)},
		wizard.Step{Label: "Account Security", Fields: passwordFields(rules)},
	)
}
