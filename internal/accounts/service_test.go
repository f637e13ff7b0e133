package accounts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/wolfman30/healthfirst-portals/internal/events"
	"github.com/wolfman30/healthfirst-portals/internal/portal"
	"github.com/wolfman30/healthfirst-portals/internal/wizard"
)

type recordingPublisher struct {
	aggregates []string
	events     []events.CanonicalEvent
	err        error
}

func (p *recordingPublisher) Publish(_ context.Context, aggregate string, evt events.CanonicalEvent) error {
	p.aggregates = append(p.aggregates, aggregate)
	p.events = append(p.events, evt)
	return p.err
}

func newTestService(opts ...Option) (*Service, *MemoryRepository) {
	repo := NewMemoryRepository()
	opts = append([]Option{WithHashCost(bcrypt.MinCost)}, opts...)
	svc := NewService(repo, NewTokenIssuer("secret", time.Hour, 24*time.Hour), wizard.DefaultRules(), nil, opts...)
	return svc, repo
}

func patientForm() wizard.FormRecord {
	return wizard.FormRecord{
		"firstName":       "Ana",
		"lastName":        "Li",
		"email":           "Ana@Example.com",
		"phoneNumber":     "5550100",
		"bloodType":       "O+",
		"allergies":       "",
		"password":        "Passw0rd!",
		"confirmPassword": "Passw0rd!",
		"termsAccepted":   "true",
	}
}

func TestRegisterCreatesAccountAndPublishes(t *testing.T) {
	pub := &recordingPublisher{}
	svc, repo := newTestService(WithPublisher(pub))

	id, err := svc.Registrar(portal.Patient).Register(context.Background(), patientForm())
	require.NoError(t, err)

	acct, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", acct.Email)
	assert.Equal(t, "patient", acct.Portal)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte("Passw0rd!")))
	assert.Equal(t, map[string]string{"bloodType": "O+", "termsAccepted": "true"}, acct.Profile)

	require.Len(t, pub.events, 1)
	evt := pub.events[0].(events.AccountRegisteredV1)
	assert.Equal(t, id, evt.AccountID)
	assert.Equal(t, "account:"+id, pub.aggregates[0])
}

func TestRegisterDuplicateEmailIsUserFacing(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Register(context.Background(), portal.Patient, patientForm())
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), portal.Patient, patientForm())
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.Equal(t, MsgEmailTaken, wizard.FailureMessage(err))
}

func TestRegisterSurvivesPublishFailure(t *testing.T) {
	svc, _ := newTestService(WithPublisher(&recordingPublisher{err: errors.New("db down")}))
	id, err := svc.Register(context.Background(), portal.Provider, patientForm())
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestRegisterDemoFailureEmail(t *testing.T) {
	svc, _ := newTestService(WithDemoFailureEmail("ana@example.com"))
	_, err := svc.Register(context.Background(), portal.Patient, patientForm())
	require.Error(t, err)
	assert.Equal(t, wizard.DefaultFailureMessage, wizard.FailureMessage(err))
}

func TestLogin(t *testing.T) {
	svc, _ := newTestService()
	id, err := svc.Register(context.Background(), portal.Provider, patientForm())
	require.NoError(t, err)

	res, err := svc.Login(context.Background(), portal.Provider, LoginRequest{Email: "ana@example.com", Password: "Passw0rd!"})
	require.NoError(t, err)
	assert.Equal(t, id, res.AccountID)
	assert.NotEmpty(t, res.Token)

	_, err = svc.Login(context.Background(), portal.Provider, LoginRequest{Email: "ana@example.com", Password: "Wrong-pass1"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), portal.Patient, LoginRequest{Email: "ana@example.com", Password: "Passw0rd!"})
	assert.ErrorIs(t, err, ErrInvalidCredentials, "accounts are scoped to their portal")
}

func TestLoginValidation(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Login(context.Background(), portal.Patient, LoginRequest{Email: "bad", Password: "short"})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, wizard.MsgInvalidEmail, verr.Fields["email"])
	assert.Equal(t, wizard.MsgPasswordTooShort, verr.Fields["password"])
}

func TestLoginDemoFailureEmail(t *testing.T) {
	svc, _ := newTestService(WithDemoFailureEmail("error@test.com"))
	_, err := svc.Login(context.Background(), portal.Provider, LoginRequest{Email: "error@test.com", Password: "whatever123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterStoresPlainText(t *testing.T) {
	svc, repo := newTestService()
	form := patientForm()
	form["lastName"] = "O'Brien<img src=x onerror=alert(1)>"
	form["allergies"] = "<b>Penicillin</b> & latex"

	id, err := svc.Register(context.Background(), portal.Patient, form)
	require.NoError(t, err)
	acct, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "O'Brien", acct.LastName)
	assert.Equal(t, "Penicillin & latex", acct.Profile["allergies"])
}
