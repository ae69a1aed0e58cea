package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/api/http/handlers"
	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/repository"
	"github.com/spec-kit/queue-service/internal/service"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	logger := zap.NewNop()

	userRepo := repository.NewMemoryUserRepository()
	ticketRepo := repository.NewMemoryTicketRepository()

	authCfg := config.AuthConfig{
		JWTSecret:             "test-secret",
		AccessTokenTTLMinutes: 60,
		BcryptCost:            4,
		SeedAdmin:             true,
		AdminEmail:            "admin@example.com",
		AdminPassword:         "admin123",
	}
	authService := service.NewAuthService(authCfg, userRepo, logger)
	if err := authService.EnsureDefaultAdmin(context.Background()); err != nil {
		t.Fatalf("seed admin: %v", err)
	}

	hub := events.NewHub(logger)
	queueService := service.NewQueueService(config.QueueConfig{}, service.QueueDependencies{
		TicketRepo: ticketRepo,
		Publisher:  hub,
		Logger:     logger,
	})

	app := fiber.New()
	RegisterMiddlewares(app, logger, nil, 0)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("queue-service", "test", nil, nil),
		Users:          handlers.NewUsersHandler(authService),
		Queue:          handlers.NewQueueHandler(queueService),
		StaffQueue:     handlers.NewStaffQueueHandler(queueService),
		WS:             handlers.NewWSHandler(hub, queueService, authService.TokenManager(), logger),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), userRepo),
	})
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, raw, err)
		}
	}
	return resp.StatusCode, decoded
}

func loginAs(t *testing.T, app *fiber.App, email, password string) string {
	t.Helper()
	status, body := doJSON(t, app, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if status != http.StatusOK {
		t.Fatalf("login %s: status %d, body %v", email, status, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("login %s: no token in %v", email, body)
	}
	return token
}

func registerAndLogin(t *testing.T, app *fiber.App, email string) string {
	t.Helper()
	status, body := doJSON(t, app, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name":     "Test User",
		"email":    email,
		"phone":    "+15550001111",
		"password": "pass1234",
	})
	if status != http.StatusCreated {
		t.Fatalf("register: status %d, body %v", status, body)
	}
	return loginAs(t, app, email, "pass1234")
}

func TestBookingLifecycleOverHTTP(t *testing.T) {
	app := newTestApp(t)
	userToken := registerAndLogin(t, app, "alice@example.com")
	staffToken := loginAs(t, app, "admin@example.com", "admin123")

	status, body := doJSON(t, app, http.MethodPost, "/api/queue/book", userToken, map[string]string{
		"serviceType": "Bank",
		"timeSlot":    "10:00",
		"date":        "2026-08-28",
	})
	if status != http.StatusCreated {
		t.Fatalf("book: status %d, body %v", status, body)
	}
	data := body["data"].(map[string]any)
	if n := data["queueNumber"].(float64); n != 1 {
		t.Errorf("queue number = %v, want 1", n)
	}
	ticketID, _ := data["ticketId"].(string)
	if ticketID == "" {
		t.Fatal("missing ticket id")
	}

	status, body = doJSON(t, app, http.MethodPost, "/api/queue/next", staffToken, map[string]string{
		"serviceType": "Bank",
		"date":        "2026-08-28",
	})
	if status != http.StatusOK {
		t.Fatalf("next: status %d, body %v", status, body)
	}
	served := body["data"].(map[string]any)
	if served["status"] != "serving" {
		t.Errorf("status = %v, want serving", served["status"])
	}

	status, body = doJSON(t, app, http.MethodPost, "/api/queue/complete", staffToken, map[string]string{
		"ticketId": ticketID,
	})
	if status != http.StatusOK {
		t.Fatalf("complete: status %d, body %v", status, body)
	}

	status, body = doJSON(t, app, http.MethodGet, "/api/user/bookings", userToken, nil)
	if status != http.StatusOK {
		t.Fatalf("bookings: status %d", status)
	}
	bookings := body["data"].([]any)
	if len(bookings) != 1 {
		t.Fatalf("bookings = %d, want 1", len(bookings))
	}
	if got := bookings[0].(map[string]any)["status"]; got != "completed" {
		t.Errorf("booking status = %v, want completed", got)
	}
}

func TestStaffEndpointsRejectRegularUsers(t *testing.T) {
	app := newTestApp(t)
	userToken := registerAndLogin(t, app, "bob@example.com")

	for _, tc := range []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodPost, "/api/queue/next", map[string]string{"serviceType": "Bank"}},
		{http.MethodPost, "/api/queue/complete", map[string]string{"ticketId": "x"}},
		{http.MethodGet, "/api/queue/all", nil},
	} {
		status, body := doJSON(t, app, tc.method, tc.path, userToken, tc.body)
		if status != http.StatusForbidden {
			t.Errorf("%s %s: status %d, want 403 (body %v)", tc.method, tc.path, status, body)
		}
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	app := newTestApp(t)

	status, body := doJSON(t, app, http.MethodPost, "/api/queue/book", "", map[string]string{
		"serviceType": "Bank",
		"timeSlot":    "10:00",
	})
	if status != http.StatusUnauthorized {
		t.Errorf("book without token: status %d, want 401 (body %v)", status, body)
	}

	status, _ = doJSON(t, app, http.MethodGet, "/api/user/profile", "not-a-token", nil)
	if status != http.StatusUnauthorized {
		t.Errorf("profile with bad token: status %d, want 401", status)
	}
}

func TestErrorEnvelopeShape(t *testing.T) {
	app := newTestApp(t)
	userToken := registerAndLogin(t, app, "carol@example.com")

	status, body := doJSON(t, app, http.MethodPost, "/api/queue/book", userToken, map[string]string{
		"serviceType": "Barber Shop",
		"timeSlot":    "10:00",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
	errObj, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("missing error envelope in %v", body)
	}
	if errObj["code"] != "VALIDATION_FAILED" {
		t.Errorf("code = %v, want VALIDATION_FAILED", errObj["code"])
	}
}

func TestDuplicateRegistrationRejected(t *testing.T) {
	app := newTestApp(t)
	registerAndLogin(t, app, "dave@example.com")

	status, body := doJSON(t, app, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name":     "Dave Again",
		"email":    "dave@example.com",
		"phone":    "+15550002222",
		"password": "pass1234",
	})
	if status != http.StatusBadRequest {
		t.Errorf("duplicate register: status %d, want 400 (body %v)", status, body)
	}
}

func TestProfileUpdate(t *testing.T) {
	app := newTestApp(t)
	token := registerAndLogin(t, app, "erin@example.com")

	status, body := doJSON(t, app, http.MethodPut, "/api/user/profile", token, map[string]string{
		"name":  "Erin Updated",
		"phone": "+15550003333",
	})
	if status != http.StatusOK {
		t.Fatalf("update profile: status %d, body %v", status, body)
	}
	data := body["data"].(map[string]any)
	if data["name"] != "Erin Updated" {
		t.Errorf("name = %v, want Erin Updated", data["name"])
	}

	status, body = doJSON(t, app, http.MethodGet, "/api/user/profile", token, nil)
	if status != http.StatusOK {
		t.Fatalf("get profile: status %d", status)
	}
	if got := body["data"].(map[string]any)["name"]; got != "Erin Updated" {
		t.Errorf("persisted name = %v, want Erin Updated", got)
	}
}

func TestHealthEndpoints(t *testing.T) {
	app := newTestApp(t)

	status, body := doJSON(t, app, http.MethodGet, "/health/live", "", nil)
	if status != http.StatusOK || body["status"] != "alive" {
		t.Errorf("live: status %d body %v", status, body)
	}

	status, body = doJSON(t, app, http.MethodGet, "/health/ready", "", nil)
	if status != http.StatusOK {
		t.Errorf("ready: status %d body %v", status, body)
	}
}

func TestListAllGroupsByServiceType(t *testing.T) {
	app := newTestApp(t)
	userToken := registerAndLogin(t, app, "frank@example.com")
	staffToken := loginAs(t, app, "admin@example.com", "admin123")

	for i, serviceType := range []string{"Bank", "Bank", "DMV"} {
		status, body := doJSON(t, app, http.MethodPost, "/api/queue/book", userToken, map[string]string{
			"serviceType": serviceType,
			"timeSlot":    fmt.Sprintf("10:%02d", i),
			"date":        "2026-08-28",
		})
		if status != http.StatusCreated {
			t.Fatalf("book %s: status %d, body %v", serviceType, status, body)
		}
	}

	status, body := doJSON(t, app, http.MethodGet, "/api/queue/all?date=2026-08-28", staffToken, nil)
	if status != http.StatusOK {
		t.Fatalf("all: status %d, body %v", status, body)
	}
	data := body["data"].(map[string]any)
	if got := len(data["Bank"].([]any)); got != 2 {
		t.Errorf("Bank tickets = %d, want 2", got)
	}
	if got := len(data["DMV"].([]any)); got != 1 {
		t.Errorf("DMV tickets = %d, want 1", got)
	}
}
