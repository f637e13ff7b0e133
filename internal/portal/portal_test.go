package portal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/healthfirst-portals/internal/wizard"
)

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Patient ")
	require.NoError(t, err)
	assert.Equal(t, Patient, k)

	_, err = ParseKind("admin")
	assert.Error(t, err)
}

func TestRegistrySharesRules(t *testing.T) {
	rules := wizard.DefaultRules()
	reg := NewRegistry(rules)
	assert.Same(t, rules, reg.Rules)
	for _, k := range Kinds {
		def, ok := reg.Definition(k)
		require.True(t, ok, k)
		assert.Equal(t, 4, def.StepCount())
	}
}

func TestPatientFirstStepRequiredMessages(t *testing.T) {
	def := PatientDefinition(wizard.DefaultRules())
	s, err := wizard.Reduce(def, wizard.NewState(def), wizard.AdvanceStep{})
	require.ErrorIs(t, err, wizard.ErrStepInvalid)

	assert.Equal(t, wizard.ErrorMap{
		"firstName":   "First name must be at least 2 characters",
		"lastName":    "Last name must be at least 2 characters",
		"email":       "Email is required",
		"phoneNumber": "Phone number is required",
		"dateOfBirth": "Date of birth is required",
		"gender":      "Gender is required",
	}, s.Errors)
}

func TestPatientWalkthrough(t *testing.T) {
	rules := wizard.DefaultRules()
	rules.Now = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }
	def := PatientDefinition(rules)

	steps := [][]wizard.SetField{
		{
			{Name: "firstName", Value: "Ana"},
			{Name: "lastName", Value: "Li"},
			{Name: "email", Value: "ana@example.com"},
			{Name: "phoneNumber", Value: "(555) 010-2000"},
			{Name: "dateOfBirth", Value: "1988-07-14"},
			{Name: "gender", Value: "female"},
		},
		{
			{Name: "streetAddress", Value: "1 Main St"},
			{Name: "city", Value: "Springfield"},
			{Name: "state", Value: "IL"},
			{Name: "zipCode", Value: "62701-1234"},
		},
		{
			{Name: "emergencyContactName", Value: "Sam Li"},
			{Name: "emergencyContactPhone", Value: "5550102001"},
			{Name: "emergencyContactRelation", Value: "Spouse"},
			{Name: "bloodType", Value: "O+"},
		},
	}

	s := wizard.NewState(def)
	var err error
	for i, fields := range steps {
		for _, f := range fields {
			s, err = wizard.Reduce(def, s, f)
			require.NoError(t, err)
		}
		s, err = wizard.Reduce(def, s, wizard.AdvanceStep{})
		require.NoError(t, err, "step %d: %v", i, s.Errors)
		assert.Equal(t, i+1, s.Step)
	}

	s, err = wizard.Reduce(def, s, wizard.BeginSubmit{})
	require.ErrorIs(t, err, wizard.ErrStepInvalid)
	assert.Equal(t, "Password is required", s.Errors["password"])
	assert.Equal(t, "Please confirm your password", s.Errors["confirmPassword"])
	assert.Equal(t, "You must accept the terms and conditions", s.Errors["termsAccepted"])
	assert.Equal(t, "You must accept the privacy policy", s.Errors["privacyAccepted"])
	assert.NotContains(t, s.Errors, "communicationConsent")

	for _, f := range []wizard.SetField{
		{Name: "password", Value: "Passw0rd!"},
		{Name: "confirmPassword", Value: "Passw0rd!"},
		{Name: "termsAccepted", Value: "true"},
		{Name: "privacyAccepted", Value: "true"},
	} {
		s, err = wizard.Reduce(def, s, f)
		require.NoError(t, err)
	}
	s, err = wizard.Reduce(def, s, wizard.BeginSubmit{})
	require.NoError(t, err)
	assert.Equal(t, wizard.StatusPending, s.Status)
}

func TestProviderProfessionalStep(t *testing.T) {
	def := ProviderDefinition(wizard.DefaultRules())
	s := wizard.NewState(def)
	assert.Equal(t, "", s.Form["yearsOfExperience"])

	s.Step = 1
	s, err := wizard.Reduce(def, s, wizard.SetField{Name: "medicalLicenseNumber", Value: "md12345"})
	require.NoError(t, err)
	assert.Equal(t, wizard.MsgInvalidLicense, s.Errors["medicalLicenseNumber"])

	// Experience is only checked when the step is validated.
	s, err = wizard.Reduce(def, s, wizard.SetField{Name: "yearsOfExperience", Value: "51"})
	require.NoError(t, err)
	assert.NotContains(t, s.Errors, "yearsOfExperience")

	s, err = wizard.Reduce(def, s, wizard.AdvanceStep{})
	assert.ErrorIs(t, err, wizard.ErrStepInvalid)
	assert.Equal(t, 1, s.Step)
	assert.Equal(t, wizard.MsgExperienceRange, s.Errors["yearsOfExperience"])

	for _, f := range []wizard.SetField{
		{Name: "medicalLicenseNumber", Value: "MD12345"},
		{Name: "yearsOfExperience", Value: "12"},
		{Name: "specialization", Value: "Neurology"},
	} {
		s, err = wizard.Reduce(def, s, f)
		require.NoError(t, err)
	}
	s, err = wizard.Reduce(def, s, wizard.AdvanceStep{})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Step)
}

func TestProviderExperienceRequiredMessage(t *testing.T) {
	def := ProviderDefinition(wizard.DefaultRules())
	s := wizard.NewState(def)
	s.Step = 1

	s, err := wizard.Reduce(def, s, wizard.AdvanceStep{})
	assert.ErrorIs(t, err, wizard.ErrStepInvalid)
	assert.Equal(t, wizard.MsgExperienceRange, s.Errors["yearsOfExperience"])
}

func TestProviderLicenseIsNotTruncated(t *testing.T) {
	def := ProviderDefinition(wizard.DefaultRules())
	s := wizard.NewState(def)
	s.Step = 1

	for _, f := range []wizard.SetField{
		{Name: "specialization", Value: "Neurology"},
		{Name: "medicalLicenseNumber", Value: "ABCDEF1234567890"},
		{Name: "yearsOfExperience", Value: "5"},
	} {
		var err error
		s, err = wizard.Reduce(def, s, f)
		require.NoError(t, err)
	}
	assert.Equal(t, "ABCDEF1234567890", s.Form["medicalLicenseNumber"])
	assert.Equal(t, wizard.MsgInvalidLicense, s.Errors["medicalLicenseNumber"])

	s, err := wizard.Reduce(def, s, wizard.AdvanceStep{})
	assert.ErrorIs(t, err, wizard.ErrStepInvalid)
	assert.Equal(t, 1, s.Step)
	assert.Equal(t, wizard.MsgInvalidLicense, s.Errors["medicalLicenseNumber"])
}

func TestSensitiveFieldsArePasswords(t *testing.T) {
	for _, def := range []*wizard.Definition{
		PatientDefinition(wizard.DefaultRules()),
		ProviderDefinition(wizard.DefaultRules()),
	} {
		assert.ElementsMatch(t, []string{"password", "confirmPassword"}, def.SensitiveFields())
	}
}

func TestValidateLogin(t *testing.T) {
	def := LoginDefinition(wizard.DefaultRules())

	assert.Equal(t, wizard.ErrorMap{
		"email":    "Email is required",
		"password": "Password is required",
	}, ValidateLogin(def, "", ""))

	assert.Equal(t, wizard.ErrorMap{
		"email":    wizard.MsgInvalidEmail,
		"password": wizard.MsgPasswordTooShort,
	}, ValidateLogin(def, "nope", "short"))

	assert.Empty(t, ValidateLogin(def, "dr@example.com", "longenough"))
}
