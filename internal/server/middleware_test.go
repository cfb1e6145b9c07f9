package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus"
	auditdomain "github.com/smallbiznis/floodwatch/internal/audit/domain"
	auditmocks "github.com/smallbiznis/floodwatch/internal/audit/mocks"
	authdomain "github.com/smallbiznis/floodwatch/internal/auth/domain"
	authmocks "github.com/smallbiznis/floodwatch/internal/auth/mocks"
	"github.com/smallbiznis/floodwatch/internal/auth/token"
	"github.com/smallbiznis/floodwatch/internal/config"
	"github.com/smallbiznis/floodwatch/internal/identity"
	"github.com/smallbiznis/floodwatch/internal/observability"
	obsmetrics "github.com/smallbiznis/floodwatch/internal/observability/metrics"
	reportdomain "github.com/smallbiznis/floodwatch/internal/report/domain"
	reportmocks "github.com/smallbiznis/floodwatch/internal/report/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockedServer(t *testing.T) (*gin.Engine, *authmocks.MockService, *reportmocks.MockService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctrl := gomock.NewController(t)
	authsvc := authmocks.NewMockService(ctrl)
	reportsvc := reportmocks.NewMockService(ctrl)

	engine := NewEngine(newObsConfig(config.EnvTest), obsmetrics.NewHTTPMetrics(prometheus.NewRegistry()))
	NewServer(ServerParams{
		Gin:       engine,
		Cfg:       config.Config{Environment: config.EnvTest},
		Authsvc:   authsvc,
		Reportsvc: reportsvc,
	})
	return engine, authsvc, reportsvc
}

func TestAuthRequiredStopsBeforeHandler(t *testing.T) {
	engine, authsvc, _ := newMockedServer(t)
	// the report mock has no expectations, so reaching the handler fails the test
	authsvc.EXPECT().
		Authenticate(gomock.Any(), "expired-token").
		Return(identity.Identity{}, authdomain.ErrUnauthenticated)

	req := httptest.NewRequest(http.MethodPatch, "/reports/1/status", nil)
	req.Header.Set("Authorization", "Bearer expired-token")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

func TestAuthRequiredRejectsMissingOrMalformedHeader(t *testing.T) {
	engine, _, _ := newMockedServer(t)

	for _, header := range []string{"", "Basic abc", "Bearer", "Bearer    "} {
		req := httptest.NewRequest(http.MethodPost, "/reports/submit", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
}

func TestAuthRequiredAttachesIdentity(t *testing.T) {
	engine, authsvc, reportsvc := newMockedServer(t)
	caller := identity.Identity{AccountID: snowflake.ID(7), Email: "ana@x.com", Role: identity.RoleAdmin}

	authsvc.EXPECT().Authenticate(gomock.Any(), "good-token").Return(caller, nil)
	reportsvc.EXPECT().
		UpdateStatus(gomock.Any(), caller, snowflake.ID(42), reportdomain.StatusResolved).
		Return(&reportdomain.Report{ID: 42, Status: reportdomain.StatusResolved}, nil)

	req := httptest.NewRequest(http.MethodPatch, "/reports/42/status", jsonBody(`{"status":"resolved"}`))
	req.Header.Set("Authorization", "bearer good-token")
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"status":"resolved"`)
}

func TestMapErrorTaxonomy(t *testing.T) {
	cases := map[error]int{
		authdomain.ErrInvalidCredentials: http.StatusUnauthorized,
		token.ErrTokenExpired:            http.StatusUnauthorized,
		authdomain.ErrAccountExists:      http.StatusBadRequest,
		reportdomain.ErrInvalidStatus:    http.StatusBadRequest,
		reportdomain.ErrReportNotFound:   http.StatusNotFound,
		ErrRateLimited:                   http.StatusTooManyRequests,
		authdomain.ErrAccountCreation:    http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, mapError(err).status, err.Error())
	}
}

func TestSecurityHeadersPresent(t *testing.T) {
	engine, _, _ := newMockedServer(t)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestErrorDetailFollowsEnvironmentNotLogLevel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	storeErr := errors.New(`pq: relation "accounts" does not exist`)

	for env, exposed := range map[string]bool{
		config.EnvProduction:  false,
		config.EnvDevelopment: true,
	} {
		obsCfg := observability.Config{ServiceName: "floodwatch", Environment: env, LogLevel: "debug"}
		engine := NewEngine(obsCfg, obsmetrics.NewHTTPMetrics(prometheus.NewRegistry()))
		engine.GET("/boom", func(c *gin.Context) {
			AbortWithError(c, storeErr)
		})

		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code, env)
		assert.Contains(t, rec.Body.String(), "Internal server error", env)
		assert.Equal(t, exposed, strings.Contains(rec.Body.String(), "does not exist"), env)
	}
}

func TestListAuditLogsPassesCallerAndFilters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctrl := gomock.NewController(t)
	authsvc := authmocks.NewMockService(ctrl)
	auditsvc := auditmocks.NewMockService(ctrl)

	engine := NewEngine(newObsConfig(config.EnvTest), obsmetrics.NewHTTPMetrics(prometheus.NewRegistry()))
	NewServer(ServerParams{
		Gin:       engine,
		Cfg:       config.Config{Environment: config.EnvTest},
		Authsvc:   authsvc,
		Reportsvc: reportmocks.NewMockService(ctrl),
		Auditsvc:  auditsvc,
	})

	admin := identity.Identity{AccountID: snowflake.ID(9), Email: "root@x.com", Role: identity.RoleAdmin}
	authsvc.EXPECT().Authenticate(gomock.Any(), "admin-token").Return(admin, nil)
	auditsvc.EXPECT().
		List(gomock.Any(), admin, gomock.Any()).
		DoAndReturn(func(_ any, _ identity.Identity, req auditdomain.ListRequest) (*auditdomain.ListResponse, error) {
			assert.Equal(t, auditdomain.TargetReport, req.TargetType)
			assert.Equal(t, "42", req.TargetID)
			assert.Equal(t, 10, req.PageSize)
			return &auditdomain.ListResponse{
				AuditLogs: []*auditdomain.AuditLog{{ID: 1, Action: auditdomain.ActionReportStatusChanged}},
			}, nil
		})

	req := httptest.NewRequest(http.MethodGet, "/audit-logs?target_type=report&target_id=42&page_size=10", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), auditdomain.ActionReportStatusChanged)
}

func jsonBody(s string) *strings.Reader {
	return strings.NewReader(s)
}
