package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/wolfman30/healthfirst-portals/internal/accounts"
	"github.com/wolfman30/healthfirst-portals/internal/availability"
	httpmiddleware "github.com/wolfman30/healthfirst-portals/internal/http/middleware"
	"github.com/wolfman30/healthfirst-portals/internal/portal"
	"github.com/wolfman30/healthfirst-portals/internal/registration"
	"github.com/wolfman30/healthfirst-portals/internal/wizard"
	"github.com/wolfman30/healthfirst-portals/pkg/logging"
)

type testApp struct {
	router   http.Handler
	accounts *accounts.Service
}

func newTestRouter(t *testing.T, checks map[string]HealthCheck) testApp {
	t.Helper()

	logger := logging.Default()
	rules := wizard.DefaultRules()
	tokens := accounts.NewTokenIssuer("router-secret", time.Hour, 24*time.Hour)
	acctSvc := accounts.NewService(accounts.NewMemoryRepository(), tokens, rules, logger, accounts.WithHashCost(bcrypt.MinCost))
	regSvc := registration.NewService(portal.NewRegistry(rules), registration.NewMemoryStore(), registration.NewMemoryLocker(), acctSvc, logger)
	limiter := httpmiddleware.NewRateLimiter(100, 100)
	t.Cleanup(limiter.Close)

	cfg := &Config{
		Logger:              logger,
		RegistrationHandler: registration.NewHandler(regSvc, logger),
		LoginHandler:        accounts.NewLoginHandler(acctSvc, nil, nil, logger),
		AvailabilityHandler: availability.NewHandler(availability.NewService(availability.NewMemoryRepository(), logger), logger),
		Tokens:              tokens,
		LoginLimiter:        limiter,
		HealthChecks:        checks,
	}
	return testApp{router: New(cfg), accounts: acctSvc}
}

func (a testApp) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func TestRouterHealthEndpoint(t *testing.T) {
	app := newTestRouter(t, nil)

	rr := app.do(t, http.MethodGet, "/health", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var resp map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", resp["status"])
	}
}

func TestRouterHealthReportsFailedDependency(t *testing.T) {
	app := newTestRouter(t, map[string]HealthCheck{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})

	rr := app.do(t, http.MethodGet, "/health", "", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "connection refused") {
		t.Fatalf("expected failure detail, got %s", rr.Body.String())
	}
}

func TestRouterRegistrationRoutes(t *testing.T) {
	app := newTestRouter(t, nil)

	rr := app.do(t, http.MethodPost, "/api/patient/registrations", "", "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rr.Code, rr.Body.String())
	}
	var view registration.SessionView
	if err := json.NewDecoder(rr.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.StepLabel != "Personal Information" {
		t.Fatalf("unexpected step label %q", view.StepLabel)
	}

	rr = app.do(t, http.MethodGet, "/api/provider/registration/definition", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected definition, got %d", rr.Code)
	}
}

func TestRouterLoginAndAvailability(t *testing.T) {
	app := newTestRouter(t, nil)

	_, err := app.accounts.Register(context.Background(), portal.Provider, wizard.FormRecord{
		"firstName": "Grace", "lastName": "Hopper", "email": "grace@example.com",
		"phoneNumber": "5550103000", "password": "Passw0rd!", "confirmPassword": "Passw0rd!",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	rr := app.do(t, http.MethodGet, "/api/provider/availability", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d without token, got %d", http.StatusUnauthorized, rr.Code)
	}

	rr = app.do(t, http.MethodPost, "/api/provider/login", "", `{"email":"grace@example.com","password":"Passw0rd!"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected login to succeed, got %d: %s", rr.Code, rr.Body.String())
	}
	var login accounts.LoginResult
	if err := json.NewDecoder(rr.Body).Decode(&login); err != nil {
		t.Fatalf("decode login: %v", err)
	}

	rr = app.do(t, http.MethodGet, "/api/provider/availability", login.Token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected availability list, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = app.do(t, http.MethodPost, "/api/patient/login", "", `{"email":"grace@example.com","password":"Passw0rd!"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected provider account to be rejected on patient portal, got %d", rr.Code)
	}
}
