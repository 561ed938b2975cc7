package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"fooddash/internal/http/handlers"
	httpmiddleware "fooddash/internal/http/middleware"
	"fooddash/internal/infra"
	"fooddash/internal/modules/driver"
	"fooddash/internal/modules/ledger"
	"fooddash/internal/types"
)

type fakeLedger struct {
	debt    map[types.ID]types.Money
	limit   types.Money
	calls   int
	failing bool
}

func (f *fakeLedger) Liquidate(_ context.Context, id types.ID, amount types.Money, _ types.ID) (*ledger.LiquidationResult, error) {
	f.calls++
	if f.failing {
		return nil, errors.New("connection reset")
	}
	prev, ok := f.debt[id]
	if !ok {
		return nil, ledger.ErrDriverNotFound
	}
	if amount <= 0 {
		return nil, ledger.ErrInvalidAmount
	}
	next := max(prev-amount, 0)
	f.debt[id] = next
	return &ledger.LiquidationResult{PreviousDebt: prev, NewDebt: next, Unblocked: prev >= f.limit && next < f.limit}, nil
}

func (f *fakeLedger) Entries(_ context.Context, id types.ID, limit int) ([]ledger.Entry, error) {
	if _, ok := f.debt[id]; !ok {
		return nil, nil
	}
	e := ledger.Entry{ID: uuid.New(), Type: ledger.EntryLiquidation, DriverID: id, Amount: 200, PreviousDebt: 1070, NewDebt: 870}
	return []ledger.Entry{e}[:min(limit, 1)], nil
}

type fakeDriverAdmin struct {
	onboarded []driver.OnboardCommand
	verified  []types.ID
}

func (f *fakeDriverAdmin) Onboard(_ context.Context, cmd driver.OnboardCommand) (*driver.Driver, error) {
	f.onboarded = append(f.onboarded, cmd)
	return &driver.Driver{ID: cmd.ID, MaxCashLimit: cmd.MaxCashLimit}, nil
}

func (f *fakeDriverAdmin) Verify(_ context.Context, id types.ID) error {
	if id == "ghost" {
		return driver.ErrNotFound
	}
	f.verified = append(f.verified, id)
	return nil
}

func (f *fakeDriverAdmin) Suspend(context.Context, types.ID) error { return nil }

type fakeUsers struct {
	created []infra.NewUser
}

func (f *fakeUsers) CreateUser(_ context.Context, u infra.NewUser) (string, error) {
	f.created = append(f.created, u)
	return "uid-new", nil
}

func buildAdminRouter(l handlers.Liquidator, d handlers.DriverAdmin, u infra.UserProvisioner) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(httpmiddleware.Auth(testVerifier()))
	h := handlers.NewAdminHandler(l, d, u, 1000)
	admin := r.Group("/api/admin", httpmiddleware.RequireRole(types.RoleAdmin))
	admin.POST("/drivers/:id/liquidate", h.Liquidate)
	admin.POST("/drivers/:id/verify", h.Verify)
	admin.POST("/users", h.CreateUser)
	admin.GET("/drivers/:id/ledger", h.Entries)
	return r
}

func TestLiquidate(t *testing.T) {
	l := &fakeLedger{debt: map[types.ID]types.Money{"d1": 1070}, limit: 1000}
	r := buildAdminRouter(l, &fakeDriverAdmin{}, &fakeUsers{})

	w := doRequest(r, http.MethodPost, "/api/admin/drivers/d1/liquidate", map[string]any{"amount_paid": 200}, "admin")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["success"] != true || body["new_debt"] != float64(870) {
		t.Fatalf("unexpected body %v", body)
	}

	cases := []struct {
		name  string
		path  string
		body  map[string]any
		token string
		want  int
	}{
		{"negative", "/api/admin/drivers/d1/liquidate", map[string]any{"amount_paid": -5}, "admin", http.StatusBadRequest},
		{"non-numeric", "/api/admin/drivers/d1/liquidate", map[string]any{"amount_paid": "lots"}, "admin", http.StatusBadRequest},
		{"fractional", "/api/admin/drivers/d1/liquidate", map[string]any{"amount_paid": 12.5}, "admin", http.StatusBadRequest},
		{"unknown driver", "/api/admin/drivers/ghost/liquidate", map[string]any{"amount_paid": 10}, "admin", http.StatusNotFound},
		{"not admin", "/api/admin/drivers/d1/liquidate", map[string]any{"amount_paid": 10}, "driver1", http.StatusForbidden},
		{"unauthenticated", "/api/admin/drivers/d1/liquidate", map[string]any{"amount_paid": 10}, "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doRequest(r, http.MethodPost, tc.path, tc.body, tc.token)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
		})
	}
	if l.debt["d1"] != 870 {
		t.Fatalf("failed liquidations changed the balance: %d", l.debt["d1"])
	}
}

func TestLiquidate_InternalError(t *testing.T) {
	r := buildAdminRouter(&fakeLedger{failing: true}, &fakeDriverAdmin{}, &fakeUsers{})
	w := doRequest(r, http.MethodPost, "/api/admin/drivers/d1/liquidate", map[string]any{"amount_paid": 10}, "admin")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if code := decode(t, w)["code"]; code != "internal" {
		t.Fatalf("expected internal code, got %v", code)
	}
}

func TestCreateUser_DriverIsOnboarded(t *testing.T) {
	drivers := &fakeDriverAdmin{}
	users := &fakeUsers{}
	r := buildAdminRouter(&fakeLedger{}, drivers, users)

	w := doRequest(r, http.MethodPost, "/api/admin/users", map[string]any{
		"email":        "rider@example.com",
		"password":     "secret123",
		"display_name": "Rider",
		"role":         "driver",
		"driver":       map[string]any{"assigned_restaurant_id": "m1"},
	}, "admin")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if decode(t, w)["uid"] != "uid-new" {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
	if len(users.created) != 1 || users.created[0].Claims["role"] != "driver" {
		t.Fatalf("role claim not set: %+v", users.created)
	}
	if len(drivers.onboarded) != 1 {
		t.Fatalf("expected one onboarded driver, got %d", len(drivers.onboarded))
	}
	cmd := drivers.onboarded[0]
	if cmd.ID != "uid-new" || cmd.MaxCashLimit != 1000 || cmd.AssignedRestaurantID == nil || *cmd.AssignedRestaurantID != "m1" {
		t.Fatalf("unexpected onboard command %+v", cmd)
	}
}

func TestCreateUser_Validation(t *testing.T) {
	users := &fakeUsers{}
	r := buildAdminRouter(&fakeLedger{}, &fakeDriverAdmin{}, users)

	for name, body := range map[string]map[string]any{
		"merchant without id": {"email": "m@example.com", "password": "secret123", "role": "merchant"},
		"unknown role":        {"email": "x@example.com", "password": "secret123", "role": "system"},
		"short password":      {"email": "x@example.com", "password": "123", "role": "client"},
	} {
		if w := doRequest(r, http.MethodPost, "/api/admin/users", body, "admin"); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, w.Code)
		}
	}
	if len(users.created) != 0 {
		t.Fatalf("invalid requests must not create users")
	}
}

func TestVerify_UnknownDriver(t *testing.T) {
	r := buildAdminRouter(&fakeLedger{}, &fakeDriverAdmin{}, &fakeUsers{})
	if w := doRequest(r, http.MethodPost, "/api/admin/drivers/ghost/verify", nil, "admin"); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestEntries(t *testing.T) {
	r := buildAdminRouter(&fakeLedger{debt: map[types.ID]types.Money{"d1": 870}}, &fakeDriverAdmin{}, &fakeUsers{})

	w := doRequest(r, http.MethodGet, "/api/admin/drivers/d1/ledger?limit=10", nil, "admin")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	entries, _ := decode(t, w)["entries"].([]any)
	if len(entries) != 1 || entries[0].(map[string]any)["type"] != "liquidation" {
		t.Fatalf("unexpected entries %s", w.Body.String())
	}
	if w := doRequest(r, http.MethodGet, "/api/admin/drivers/d1/ledger?limit=0", nil, "admin"); w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: expected 400, got %d", w.Code)
	}
}
