package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	auditrepository "github.com/smallbiznis/floodwatch/internal/audit/repository"
	auditservice "github.com/smallbiznis/floodwatch/internal/audit/service"
	authdomain "github.com/smallbiznis/floodwatch/internal/auth/domain"
	"github.com/smallbiznis/floodwatch/internal/auth/password"
	authrepository "github.com/smallbiznis/floodwatch/internal/auth/repository"
	authservice "github.com/smallbiznis/floodwatch/internal/auth/service"
	"github.com/smallbiznis/floodwatch/internal/auth/token"
	"github.com/smallbiznis/floodwatch/internal/authorization"
	"github.com/smallbiznis/floodwatch/internal/clock"
	"github.com/smallbiznis/floodwatch/internal/config"
	"github.com/smallbiznis/floodwatch/internal/migration"
	"github.com/smallbiznis/floodwatch/internal/observability"
	obsmetrics "github.com/smallbiznis/floodwatch/internal/observability/metrics"
	"github.com/smallbiznis/floodwatch/internal/providers/email"
	reportdomain "github.com/smallbiznis/floodwatch/internal/report/domain"
	reportrepository "github.com/smallbiznis/floodwatch/internal/report/repository"
	reportservice "github.com/smallbiznis/floodwatch/internal/report/service"
	twofactorservice "github.com/smallbiznis/floodwatch/internal/twofactor/service"
	"github.com/smallbiznis/floodwatch/pkg/db"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type testApp struct {
	engine   *gin.Engine
	accounts authdomain.Repository
	issuer   *token.Issuer
}

func newObsConfig(environment string) observability.Config {
	return observability.Config{ServiceName: "floodwatch", Environment: environment, LogLevel: "info"}
}

func newTestApp(t *testing.T, environment string) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := migration.Migrate(conn); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}

	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC))
	issuer, err := token.NewIssuer("test-secret", token.DefaultTTL, clk)
	if err != nil {
		t.Fatalf("failed to create issuer: %v", err)
	}

	log := zap.NewNop()
	policy := authorization.OwnershipPolicy{}
	accounts := authrepository.New(conn)
	mail := &email.NoOpProvider{}
	auditsvc := auditservice.New(auditservice.Params{
		Log:    log,
		Repo:   auditrepository.New(conn),
		GenID:  node,
		Clock:  clk,
		Policy: policy,
	})

	authsvc := authservice.New(authservice.Params{
		Log:       log,
		Repo:      accounts,
		Hasher:    password.Bcrypt{Cost: bcrypt.MinCost},
		Issuer:    issuer,
		GenID:     node,
		Clock:     clk,
		TwoFactor: twofactorservice.New(twofactorservice.Params{Log: log, DB: conn, Clock: clk, Email: mail}),
		Policy:    policy,
		Audit:     auditsvc,
	})
	reportsvc := reportservice.New(reportservice.Params{
		Log:    log,
		Repo:   reportrepository.New(conn),
		GenID:  node,
		Clock:  clk,
		Policy: policy,
		Config: config.NewStaticReportPolicyHolder(config.DefaultReportPolicy()),
		Audit:  auditsvc,
	})

	engine := NewEngine(newObsConfig(environment), obsmetrics.NewHTTPMetrics(prometheus.NewRegistry()))
	NewServer(ServerParams{
		Gin:       engine,
		Cfg:       config.Config{Environment: environment},
		Authsvc:   authsvc,
		Reportsvc: reportsvc,
		Auditsvc:  auditsvc,
	})

	return &testApp{engine: engine, accounts: accounts, issuer: issuer}
}

func (a *testApp) do(t *testing.T, method, path, bearer string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	a.engine.ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("response is not json: %v (%s)", err, rec.Body.String())
		}
	}
	return rec, out
}

func (a *testApp) signup(t *testing.T, name, mail, pass string) (string, string) {
	t.Helper()
	rec, body := a.do(t, http.MethodPost, "/signup", "", map[string]string{"name": name, "email": mail, "password": pass})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup %s: expected 201, got %d %s", mail, rec.Code, rec.Body.String())
	}
	user := body["user"].(map[string]any)
	return body["token"].(string), user["id"].(string)
}

func (a *testApp) submitReport(t *testing.T, bearer string) string {
	t.Helper()
	rec, body := a.do(t, http.MethodPost, "/reports/submit", bearer, map[string]any{
		"severity": "severe",
		"location": "Kampung Melayu",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit: expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	return body["data"].(map[string]any)["id"].(string)
}

func TestAnaSignupAndLogin(t *testing.T) {
	app := newTestApp(t, config.EnvDevelopment)

	rec, body := app.do(t, http.MethodPost, "/signup", "", map[string]string{
		"name": "Ana", "email": "ana@x.com", "password": "Secr3t!",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	if body["success"] != true {
		t.Fatalf("expected success true, got %v", body["success"])
	}
	user := body["user"].(map[string]any)
	if user["email"] != "ana@x.com" || user["name"] != "Ana" || user["createdAt"] == nil {
		t.Fatalf("unexpected user %v", user)
	}
	if _, ok := user["passwordHash"]; ok {
		t.Fatal("response must not carry the password hash")
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("$2a$")) {
		t.Fatal("response must not carry a bcrypt hash")
	}
	signupToken, _ := body["token"].(string)
	if signupToken == "" {
		t.Fatal("expected token")
	}

	rec, body = app.do(t, http.MethodPost, "/login", "", map[string]string{"email": "ana@x.com", "password": "Secr3t!"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	loginToken, _ := body["token"].(string)
	claims, err := app.issuer.Verify(loginToken)
	if err != nil {
		t.Fatalf("login token does not verify: %v", err)
	}
	if claims.AccountID != user["id"] {
		t.Fatalf("expected account %v, got %s", user["id"], claims.AccountID)
	}

	rec, body = app.do(t, http.MethodPost, "/login", "", map[string]string{"email": "ana@x.com", "password": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if body["success"] != false || body["message"] != "Invalid email or password" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestLoginResponsesMatchForUnknownEmailAndWrongPassword(t *testing.T) {
	app := newTestApp(t, config.EnvProduction)
	app.signup(t, "Ana", "ana@x.com", "Secr3t!")

	wrongRec, _ := app.do(t, http.MethodPost, "/login", "", map[string]string{"email": "ana@x.com", "password": "nope"})
	unknownRec, _ := app.do(t, http.MethodPost, "/login", "", map[string]string{"email": "ghost@x.com", "password": "nope"})

	if wrongRec.Code != http.StatusUnauthorized || unknownRec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for both, got %d and %d", wrongRec.Code, unknownRec.Code)
	}
	if wrongRec.Body.String() != unknownRec.Body.String() {
		t.Fatalf("bodies differ:\n%s\n%s", wrongRec.Body.String(), unknownRec.Body.String())
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	app := newTestApp(t, config.EnvDevelopment)
	app.signup(t, "Ana", "ana@x.com", "Secr3t!")

	rec, body := app.do(t, http.MethodPost, "/signup", "", map[string]string{
		"name": "Other Ana", "email": "ana@x.com", "password": "Secr3t!!",
	})
	if rec.Code != http.StatusBadRequest || body["success"] != false {
		t.Fatalf("expected 400, got %d %s", rec.Code, rec.Body.String())
	}

	count, err := app.accounts.Count(context.Background())
	if err != nil || count != 1 {
		t.Fatalf("expected one account, got %d %v", count, err)
	}
}

func TestSignupValidationErrors(t *testing.T) {
	app := newTestApp(t, config.EnvDevelopment)

	rec, body := app.do(t, http.MethodPost, "/signup", "", map[string]string{"email": "nope"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	errs, _ := body["errors"].([]any)
	if len(errs) != 3 {
		t.Fatalf("expected name, email and password errors, got %v", body["errors"])
	}
}

func TestSignupRejectsPasswordOverByteLimit(t *testing.T) {
	app := newTestApp(t, config.EnvDevelopment)

	rec, body := app.do(t, http.MethodPost, "/signup", "", map[string]string{
		"name":     "Ana",
		"email":    "ana@x.com",
		"password": strings.Repeat("é", 40),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", rec.Code, rec.Body.String())
	}
	errs, _ := body["errors"].([]any)
	if len(errs) != 1 || errs[0].(map[string]any)["field"] != "password" {
		t.Fatalf("expected password error, got %v", body["errors"])
	}
}

func TestReportStatusOwnership(t *testing.T) {
	app := newTestApp(t, config.EnvDevelopment)
	ownerToken, _ := app.signup(t, "Owner", "owner@x.com", "owner-pass")
	otherToken, _ := app.signup(t, "Other", "other@x.com", "other-pass")
	adminToken, adminID := app.signup(t, "Admin", "admin@x.com", "admin-pass")

	id, _ := snowflake.ParseString(adminID)
	if err := app.accounts.UpdateFields(context.Background(), id, map[string]any{"role": "admin"}); err != nil {
		t.Fatalf("promote admin: %v", err)
	}

	reportID := app.submitReport(t, ownerToken)
	path := "/reports/" + reportID + "/status"

	rec, body := app.do(t, http.MethodPatch, path, otherToken, map[string]string{"status": "resolved"})
	if rec.Code != http.StatusForbidden || body["success"] != false {
		t.Fatalf("expected 403 for non-owner, got %d %s", rec.Code, rec.Body.String())
	}

	rec, body = app.do(t, http.MethodGet, "/reports/"+reportID, "", nil)
	if rec.Code != http.StatusOK || body["data"].(map[string]any)["status"] != string(reportdomain.StatusActive) {
		t.Fatalf("denied update must leave report active, got %s", rec.Body.String())
	}

	rec, body = app.do(t, http.MethodPatch, path, ownerToken, map[string]string{"status": "resolved"})
	if rec.Code != http.StatusOK || body["data"].(map[string]any)["status"] != "resolved" {
		t.Fatalf("expected 200 for owner, got %d %s", rec.Code, rec.Body.String())
	}

	rec, body = app.do(t, http.MethodPatch, path, adminToken, map[string]string{"status": "false_report"})
	if rec.Code != http.StatusOK || body["data"].(map[string]any)["status"] != "false_report" {
		t.Fatalf("expected 200 for admin, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestReportStatusErrors(t *testing.T) {
	app := newTestApp(t, config.EnvDevelopment)
	ownerToken, _ := app.signup(t, "Owner", "owner@x.com", "owner-pass")
	reportID := app.submitReport(t, ownerToken)

	rec, _ := app.do(t, http.MethodPatch, "/reports/"+reportID+"/status", ownerToken, map[string]string{"status": "flooded"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid status, got %d", rec.Code)
	}

	rec, _ = app.do(t, http.MethodPatch, "/reports/12345/status", ownerToken, map[string]string{"status": "resolved"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec, _ = app.do(t, http.MethodPatch, "/reports/"+reportID+"/status", "", map[string]string{"status": "resolved"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestSubmitReportValidation(t *testing.T) {
	app := newTestApp(t, config.EnvDevelopment)
	ownerToken, _ := app.signup(t, "Owner", "owner@x.com", "owner-pass")

	rec, body := app.do(t, http.MethodPost, "/reports/submit", ownerToken, map[string]any{
		"severity":  "biblical",
		"latitude":  120,
		"longitude": 10,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	fields := map[string]bool{}
	for _, raw := range body["errors"].([]any) {
		fields[raw.(map[string]any)["field"].(string)] = true
	}
	for _, want := range []string{"severity", "location", "latitude"} {
		if !fields[want] {
			t.Fatalf("expected %s error, got %v", want, body["errors"])
		}
	}

	rec, _ = app.do(t, http.MethodPost, "/reports/submit", "", map[string]any{"severity": "light", "location": "x"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestErrorDetailHiddenInProduction(t *testing.T) {
	prod := newTestApp(t, config.EnvProduction)
	_, body := prod.do(t, http.MethodGet, "/account/me", "garbage", nil)
	if _, ok := body["error"]; ok {
		t.Fatalf("production response must not include error detail: %v", body)
	}

	dev := newTestApp(t, config.EnvDevelopment)
	_, body = dev.do(t, http.MethodGet, "/account/me", "garbage", nil)
	if body["error"] == nil || body["error"] == "" {
		t.Fatalf("development response should include error detail: %v", body)
	}
}

func TestListReportsIsPublic(t *testing.T) {
	app := newTestApp(t, config.EnvDevelopment)
	ownerToken, _ := app.signup(t, "Owner", "owner@x.com", "owner-pass")
	app.submitReport(t, ownerToken)
	app.submitReport(t, ownerToken)

	rec, body := app.do(t, http.MethodGet, "/reports?page_size=1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	data := body["data"].(map[string]any)
	if len(data["reports"].([]any)) != 1 || data["pageInfo"].(map[string]any)["hasMore"] != true {
		t.Fatalf("unexpected page %v", data)
	}

	rec, _ = app.do(t, http.MethodGet, "/reports?mine=true", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for mine without token, got %d", rec.Code)
	}
}

func TestAuditTrailForStatusChanges(t *testing.T) {
	app := newTestApp(t, config.EnvDevelopment)
	ownerToken, _ := app.signup(t, "Owner", "owner@x.com", "owner-pass")
	adminToken, adminID := app.signup(t, "Admin", "admin@x.com", "admin-pass")

	id, _ := snowflake.ParseString(adminID)
	if err := app.accounts.UpdateFields(context.Background(), id, map[string]any{"role": "admin"}); err != nil {
		t.Fatalf("promote admin: %v", err)
	}

	reportID := app.submitReport(t, ownerToken)
	rec, _ := app.do(t, http.MethodPatch, "/reports/"+reportID+"/status", ownerToken, map[string]string{"status": "resolved"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec, _ = app.do(t, http.MethodGet, "/audit-logs", ownerToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}

	rec, body := app.do(t, http.MethodGet, "/audit-logs?target_type=report&target_id="+reportID, adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	logs := body["data"].(map[string]any)["auditLogs"].([]any)
	if len(logs) != 2 {
		t.Fatalf("expected submit and status entries, got %d", len(logs))
	}
	actions := map[string]bool{}
	for _, raw := range logs {
		actions[raw.(map[string]any)["action"].(string)] = true
	}
	if !actions["report.submitted"] || !actions["report.status_changed"] {
		t.Fatalf("unexpected actions %v", actions)
	}
}
