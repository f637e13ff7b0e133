package portal

import "github.com/wolfman30/healthfirst-portals/internal/wizard"

// LoginDefinition is the single-step login form. It reuses the shared email
// rule and only enforces the minimum password length.
func LoginDefinition(rules *wizard.Rules) *wizard.Definition {
	return wizard.MustDefinition("login", wizard.Step{Label: "Login", Fields: []wizard.Field{
		emailField(rules),
		{
			Name:      "password",
			Label:     "Password",
			Kind:      wizard.KindPassword,
			Required:  true,
			Checks:    []wizard.Check{wizard.MinLength(rules.PasswordMinLength, wizard.MsgPasswordTooShort)},
			Live:      true,
			Sensitive: true,
		},
		{Name: "rememberMe", Label: "Remember me", Kind: wizard.KindCheckbox},
	}})
}

// ValidateLogin returns the login form's field errors, empty when it may be submitted.
func ValidateLogin(def *wizard.Definition, email, password string) wizard.ErrorMap {
	form := def.NewRecord()
	form["email"] = email
	form["password"] = password
	return wizard.ValidateStep(def, form, 0)
}
