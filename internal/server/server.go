package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/floodwatch/internal/audit"
	auditdomain "github.com/smallbiznis/floodwatch/internal/audit/domain"
	"github.com/smallbiznis/floodwatch/internal/auth"
	authdomain "github.com/smallbiznis/floodwatch/internal/auth/domain"
	"github.com/smallbiznis/floodwatch/internal/authorization"
	"github.com/smallbiznis/floodwatch/internal/config"
	"github.com/smallbiznis/floodwatch/internal/observability"
	obslogger "github.com/smallbiznis/floodwatch/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/floodwatch/internal/observability/metrics"
	obstracing "github.com/smallbiznis/floodwatch/internal/observability/tracing"
	"github.com/smallbiznis/floodwatch/internal/providers"
	"github.com/smallbiznis/floodwatch/internal/ratelimit"
	"github.com/smallbiznis/floodwatch/internal/report"
	reportdomain "github.com/smallbiznis/floodwatch/internal/report/domain"
	"github.com/smallbiznis/floodwatch/internal/twofactor"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	providers.Module,
	ratelimit.Module,
	authorization.Module,
	audit.Module,
	twofactor.Module,
	auth.Module,
	report.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(SecureHeaders(secureOptions(!obsCfg.IsProduction())))
	r.Use(ErrorHandlingMiddleware(!obsCfg.IsProduction()))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true, "status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine    *gin.Engine
	cfg       config.Config
	authsvc   authdomain.Service
	reportsvc reportdomain.Service
	auditsvc  auditdomain.Service
	limiter   *ratelimit.Limiter
}

type ServerParams struct {
	fx.In

	Gin       *gin.Engine
	Cfg       config.Config
	Authsvc   authdomain.Service
	Reportsvc reportdomain.Service
	Auditsvc  auditdomain.Service `optional:"true"`
	Limiter   *ratelimit.Limiter  `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:    p.Gin,
		cfg:       p.Cfg,
		authsvc:   p.Authsvc,
		reportsvc: p.Reportsvc,
		auditsvc:  p.Auditsvc,
		limiter:   p.Limiter,
	}

	svc.registerAuthRoutes()
	svc.registerAccountRoutes()
	svc.registerReportRoutes()
	svc.registerAuditRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	limited := s.RateLimit(ratelimit.ScopeAuth)

	s.engine.POST("/signup", limited, s.Signup)
	s.engine.POST("/login", limited, s.Login)
	s.engine.POST("/login/verify", limited, s.VerifyLogin)
}

func (s *Server) registerAccountRoutes() {
	account := s.engine.Group("/account", s.AuthRequired())
	account.GET("/me", s.Me)
	account.PATCH("/me", s.UpdateMe)
	account.POST("/password", s.ChangePassword)
	account.POST("/two-factor", s.SetTwoFactor)

	s.engine.PATCH("/accounts/:id/role", s.AuthRequired(), s.SetRole)
}

func (s *Server) registerReportRoutes() {
	reports := s.engine.Group("/reports")
	reports.POST("/submit", s.AuthRequired(), s.RateLimit(ratelimit.ScopeSubmit), s.SubmitReport)
	reports.GET("", s.OptionalAuth(), s.ListReports)
	reports.GET("/:id", s.GetReport)
	reports.PATCH("/:id/status", s.AuthRequired(), s.UpdateReportStatus)
	reports.PATCH("/:id/verify", s.AuthRequired(), s.VerifyReport)
}

func (s *Server) registerAuditRoutes() {
	if s.auditsvc == nil {
		return
	}
	s.engine.GET("/audit-logs", s.AuthRequired(), s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
