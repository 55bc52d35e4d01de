package handler

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/saharasol/relief-admin/internal/domain"
	"github.com/saharasol/relief-admin/internal/repository"
	"github.com/saharasol/relief-admin/internal/service"
	"github.com/saharasol/relief-admin/internal/transport"
)

const (
	testAdminKey  = "11111111111111111111111111111111"
	testAuthority = "SysvarC1ock11111111111111111111111111111111"
)

func TestOperationIntegration_CreateOperation(t *testing.T) {
	t.Parallel()

	svc := &stubOperationService{
		createFn: func(ctx context.Context, input service.CreateOperationInput) (*domain.Operation, error) {
			if len(input.Targets) == 0 {
				return nil, fmt.Errorf("%w: operation must include at least one target", domain.ErrValidation)
			}
			return &domain.Operation{
				ID:         "op-created",
				Action:     domain.ActionVerify,
				Strategy:   domain.StrategyBundled,
				AdminKey:   input.AdminKey,
				Status:     domain.OperationQueued,
				TotalCount: len(input.Targets),
				Items: []domain.ActionItem{
					{Position: 0, Authority: input.Targets[0].Authority, Status: domain.ItemPending},
				},
			}, nil
		},
	}

	app := newOperationTestApp(t, svc)

	validBody := fmt.Sprintf(
		`{"action":"verify","adminKey":"%s","targets":[{"authority":"%s","name":"Hope Relief"}]}`,
		testAdminKey, testAuthority,
	)
	resp, body := performRequest(t, app, http.MethodPost, "/v1/operations", validBody)
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", resp.StatusCode, string(body))
	}

	var accepted map[string]any
	if err := json.Unmarshal(body, &accepted); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if accepted["id"] != "op-created" {
		t.Fatalf("id = %v, want op-created", accepted["id"])
	}
	if accepted["status"] != domain.OperationQueued.String() {
		t.Fatalf("status = %v, want %s", accepted["status"], domain.OperationQueued.String())
	}
	items, ok := accepted["items"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("items = %v, want 1 item", accepted["items"])
	}

	emptyTargetsBody := fmt.Sprintf(`{"action":"verify","adminKey":"%s","targets":[]}`, testAdminKey)
	resp, _ = performRequest(t, app, http.MethodPost, "/v1/operations", emptyTargetsBody)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for empty targets", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/operations", "{not json")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for malformed body", resp.StatusCode)
	}
}

func TestOperationIntegration_GetOperation(t *testing.T) {
	t.Parallel()

	sig := "5VERYfakeSignature"
	svc := &stubOperationService{
		getByIDFn: func(ctx context.Context, id string) (*domain.Operation, error) {
			if id != "op-found" {
				return nil, domain.ErrNotFound
			}
			return &domain.Operation{
				ID:         "op-found",
				Action:     domain.ActionBlacklist,
				Strategy:   domain.StrategySequential,
				Reason:     "fraudulent activity",
				AdminKey:   testAdminKey,
				Status:     domain.OperationCompleted,
				TotalCount: 1,
				Items: []domain.ActionItem{
					{
						Position:  0,
						Authority: testAuthority,
						Status:    domain.ItemSuccess,
						Signature: &sig,
					},
				},
			}, nil
		},
	}

	app := newOperationTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodGet, "/v1/operations/op-found", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	var parsed operationResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed.Action != domain.ActionBlacklist.String() {
		t.Fatalf("action = %s, want BLACKLIST", parsed.Action)
	}
	if len(parsed.Items) != 1 || parsed.Items[0].Signature == nil || *parsed.Items[0].Signature != sig {
		t.Fatalf("items = %+v, want signature %q", parsed.Items, sig)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/operations/not-exists", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestOperationIntegration_CancelOperation(t *testing.T) {
	t.Parallel()

	svc := &stubOperationService{
		cancelFn: func(ctx context.Context, id string) error {
			switch id {
			case "op-cancelable":
				return nil
			case "op-finished":
				return fmt.Errorf("%w: operation already finished", domain.ErrConflict)
			default:
				return domain.ErrNotFound
			}
		},
	}

	app := newOperationTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodPost, "/v1/operations/op-cancelable/cancel", "")
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", resp.StatusCode, string(body))
	}
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed["cancelRequested"] != true {
		t.Fatalf("cancelRequested = %v, want true", parsed["cancelRequested"])
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/operations/op-finished/cancel", "")
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("status = %d, want 409 for finished operation", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/operations/op-missing/cancel", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestOperationIntegration_ListOperationsPaginationAndFilters(t *testing.T) {
	t.Parallel()

	fromExpected, _ := time.Parse(time.RFC3339, "2026-08-01T00:00:00Z")
	toExpected, _ := time.Parse(time.RFC3339, "2026-08-31T23:59:59Z")

	svc := &stubOperationService{
		listFn: func(ctx context.Context, params repository.ListParams) ([]domain.Operation, int64, error) {
			if params.Page != 2 {
				t.Fatalf("page = %d, want 2", params.Page)
			}
			if params.PageSize != 10 {
				t.Fatalf("pageSize = %d, want 10", params.PageSize)
			}
			if params.Status == nil || *params.Status != domain.OperationRunning {
				t.Fatalf("status filter = %v, want RUNNING", params.Status)
			}
			if params.Action == nil || *params.Action != domain.ActionVerify {
				t.Fatalf("action filter = %v, want VERIFY", params.Action)
			}
			if params.AdminKey == nil || *params.AdminKey != testAdminKey {
				t.Fatalf("adminKey filter = %v, want %s", params.AdminKey, testAdminKey)
			}
			if params.From == nil || !params.From.Equal(fromExpected) {
				t.Fatalf("from = %v, want %v", params.From, fromExpected)
			}
			if params.To == nil || !params.To.Equal(toExpected) {
				t.Fatalf("to = %v, want %v", params.To, toExpected)
			}

			return []domain.Operation{
				{
					ID:         "op-list-1",
					Action:     domain.ActionVerify,
					Strategy:   domain.StrategyBundled,
					AdminKey:   testAdminKey,
					Status:     domain.OperationRunning,
					TotalCount: 4,
				},
			}, 1, nil
		},
	}

	app := newOperationTestApp(t, svc)

	path := "/v1/operations?page=2&pageSize=10&status=running&action=verify" +
		"&adminKey=" + testAdminKey +
		"&from=2026-08-01T00:00:00Z&to=2026-08-31T23:59:59Z"
	resp, body := performRequest(t, app, http.MethodGet, path, "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	var parsed listOperationsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed.Meta.Page != 2 || parsed.Meta.PageSize != 10 || parsed.Meta.Total != 1 {
		t.Fatalf("meta = %+v, want page=2,pageSize=10,total=1", parsed.Meta)
	}
	if len(parsed.Data) != 1 || parsed.Data[0].ID != "op-list-1" {
		t.Fatalf("data = %+v, want op-list-1", parsed.Data)
	}
}

func TestOperationIntegration_ListOperationsRejectsBadParams(t *testing.T) {
	t.Parallel()

	svc := &stubOperationService{
		listFn: func(ctx context.Context, params repository.ListParams) ([]domain.Operation, int64, error) {
			t.Fatal("List should not be called for invalid params")
			return nil, 0, nil
		},
	}

	app := newOperationTestApp(t, svc)

	cases := []struct {
		name string
		path string
	}{
		{name: "unknown status", path: "/v1/operations?status=bogus"},
		{name: "unknown action", path: "/v1/operations?action=obliterate"},
		{name: "zero page", path: "/v1/operations?page=0"},
		{name: "oversized pageSize", path: "/v1/operations?pageSize=1000"},
		{name: "bad from timestamp", path: "/v1/operations?from=yesterday"},
	}

	for _, tc := range cases {
		resp, body := performRequest(t, app, http.MethodGet, tc.path, "")
		if resp.StatusCode != fiber.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400, body=%s", tc.name, resp.StatusCode, string(body))
		}
	}
}

func TestHealthIntegration_LivezAndReadyz(t *testing.T) {
	t.Parallel()

	healthyBroker := func() error { return nil }

	t.Run("livez returns 200", func(t *testing.T) {
		t.Parallel()

		app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
		RegisterHealthRoutes(app, sql.OpenDB(stubConnector{}), newStubRedisClient(nil), healthyBroker)

		resp, body := performRequest(t, app, http.MethodGet, "/livez", "")
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
		}
	})

	t.Run("readyz returns 200 when dependencies healthy", func(t *testing.T) {
		t.Parallel()

		sqlDB := sql.OpenDB(stubConnector{})
		t.Cleanup(func() { _ = sqlDB.Close() })

		rdb := newStubRedisClient(nil)
		t.Cleanup(func() { _ = rdb.Close() })

		app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
		RegisterHealthRoutes(app, sqlDB, rdb, healthyBroker)

		resp, body := performRequest(t, app, http.MethodGet, "/readyz", "")
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
		}
	})

	t.Run("readyz returns 503 when a dependency is down", func(t *testing.T) {
		t.Parallel()

		sqlDB := sql.OpenDB(stubConnector{})
		t.Cleanup(func() { _ = sqlDB.Close() })

		rdb := newStubRedisClient(nil)
		t.Cleanup(func() { _ = rdb.Close() })

		brokenBroker := func() error { return errors.New("rabbitmq connection is closed") }

		app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
		RegisterHealthRoutes(app, sqlDB, rdb, brokenBroker)

		resp, body := performRequest(t, app, http.MethodGet, "/readyz", "")
		if resp.StatusCode != fiber.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503, body=%s", resp.StatusCode, string(body))
		}

		var parsed struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks"`
		}
		if err := json.Unmarshal(body, &parsed); err != nil {
			t.Fatalf("json unmarshal error = %v", err)
		}
		if parsed.Checks["rabbitmq"] != "down" {
			t.Fatalf("rabbitmq check = %q, want down", parsed.Checks["rabbitmq"])
		}
		if parsed.Checks["postgres"] != "ok" || parsed.Checks["redis"] != "ok" {
			t.Fatalf("checks = %v, want postgres and redis ok", parsed.Checks)
		}
	})
}

type stubOperationService struct {
	createFn  func(ctx context.Context, input service.CreateOperationInput) (*domain.Operation, error)
	getByIDFn func(ctx context.Context, id string) (*domain.Operation, error)
	listFn    func(ctx context.Context, params repository.ListParams) ([]domain.Operation, int64, error)
	cancelFn  func(ctx context.Context, id string) error
}

func (s *stubOperationService) Create(ctx context.Context, input service.CreateOperationInput) (*domain.Operation, error) {
	if s.createFn != nil {
		return s.createFn(ctx, input)
	}
	return nil, errors.New("not implemented")
}

func (s *stubOperationService) GetByID(ctx context.Context, id string) (*domain.Operation, error) {
	if s.getByIDFn != nil {
		return s.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (s *stubOperationService) List(
	ctx context.Context,
	params repository.ListParams,
) ([]domain.Operation, int64, error) {
	if s.listFn != nil {
		return s.listFn(ctx, params)
	}
	return nil, 0, nil
}

func (s *stubOperationService) Cancel(ctx context.Context, id string) error {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, id)
	}
	return nil
}

func newOperationTestApp(t *testing.T, svc OperationService) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})

	if err := RegisterOperationRoutes(app, svc); err != nil {
		t.Fatalf("RegisterOperationRoutes() error = %v", err)
	}

	return app
}

func performRequest(t *testing.T, app *fiber.App, method string, path string, body string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}

type stubConnector struct {
	pingErr error
}

func (c stubConnector) Connect(context.Context) (driver.Conn, error) {
	return stubConn(c), nil
}

func (c stubConnector) Driver() driver.Driver {
	return stubDriver(c)
}

type stubDriver struct {
	pingErr error
}

func (d stubDriver) Open(string) (driver.Conn, error) {
	return stubConn(d), nil
}

type stubConn struct {
	pingErr error
}

func (c stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not implemented") }
func (c stubConn) Close() error                        { return nil }
func (c stubConn) Begin() (driver.Tx, error)           { return nil, errors.New("not implemented") }
func (c stubConn) Ping(context.Context) error          { return c.pingErr }

type stubRedisHook struct {
	pingErr error
}

func (h stubRedisHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h stubRedisHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if strings.EqualFold(cmd.Name(), "ping") {
			if h.pingErr != nil {
				cmd.SetErr(h.pingErr)
				return h.pingErr
			}
			cmd.SetErr(nil)
			return nil
		}
		cmd.SetErr(nil)
		return nil
	}
}

func (h stubRedisHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			cmd.SetErr(nil)
		}
		return nil
	}
}

func newStubRedisClient(pingErr error) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:         "127.0.0.1:6379",
		DialTimeout:  time.Millisecond,
		ReadTimeout:  time.Millisecond,
		WriteTimeout: time.Millisecond,
	})
	rdb.AddHook(stubRedisHook{pingErr: pingErr})
	return rdb
}
