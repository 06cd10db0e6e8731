package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	autopaydomain "github.com/kolektiva/kolektiva/internal/autopay/domain"
	"github.com/kolektiva/kolektiva/internal/collection"
	"github.com/kolektiva/kolektiva/internal/config"
	contributiondomain "github.com/kolektiva/kolektiva/internal/contribution/domain"
	"github.com/kolektiva/kolektiva/internal/defaulter"
	obsmetrics "github.com/kolektiva/kolektiva/internal/observability/metrics"
	"github.com/kolektiva/kolektiva/internal/ratelimit"
	verificationdomain "github.com/kolektiva/kolektiva/internal/verification/domain"
	walletdomain "github.com/kolektiva/kolektiva/internal/wallet/domain"
	withdrawaldomain "github.com/kolektiva/kolektiva/internal/withdrawal/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(obsmetrics.NewHTTPMetrics),
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	gateSvc         verificationdomain.Service
	gateLimiter     *ratelimit.GateLimiter
	autopaySvc      autopaydomain.Service
	contributionSvc contributiondomain.Service
	walletSvc       walletdomain.Service
	withdrawalSvc   withdrawaldomain.Service
	classifier      defaulter.Classifier
	scheduler       *collection.Scheduler
	executor        *collection.Executor
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	GateSvc         verificationdomain.Service
	GateLimiter     *ratelimit.GateLimiter `optional:"true"`
	AutopaySvc      autopaydomain.Service
	ContributionSvc contributiondomain.Service
	WalletSvc       walletdomain.Service
	WithdrawalSvc   withdrawaldomain.Service
	Classifier      defaulter.Classifier
	Scheduler       *collection.Scheduler
	Executor        *collection.Executor
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		log:             p.Log.Named("server"),
		genID:           p.GenID,
		gateSvc:         p.GateSvc,
		gateLimiter:     p.GateLimiter,
		autopaySvc:      p.AutopaySvc,
		contributionSvc: p.ContributionSvc,
		walletSvc:       p.WalletSvc,
		withdrawalSvc:   p.WithdrawalSvc,
		classifier:      p.Classifier,
		scheduler:       p.Scheduler,
		executor:        p.Executor,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")

	authed := v1.Group("")
	authed.Use(s.UserRequired())

	gate := authed.Group("/gate")
	gate.POST("/password", s.GateVerifyPassword)
	gate.POST("/code", s.GateRequestCode)

	autopay := authed.Group("/groups/:group_id/autopay")
	autopay.GET("", s.GetAutoPay)
	autopay.POST("/enable", s.EnableAutoPay)
	autopay.POST("/disable", s.DisableAutoPay)
	autopay.POST("/timing", s.UpdateAutoPayTiming)
	autopay.PUT("/instrument", s.SetAutoPayInstrument)
	autopay.DELETE("/instrument", s.RemoveAutoPayInstrument)

	obligations := authed.Group("/obligations")
	obligations.GET("/:id", s.GetObligation)
	obligations.POST("/:id/paid", s.MarkObligationPaid)
	obligations.POST("/:id/confirm", s.ConfirmObligation)

	authed.GET("/wallet/balance", s.GetWalletBalance)
	authed.GET("/standing", s.GetStanding)

	withdrawals := authed.Group("/withdrawals")
	withdrawals.POST("", s.RequestWithdrawal)
	withdrawals.GET("", s.ListWithdrawals)
	withdrawals.GET("/:id", s.GetWithdrawal)

	admin := v1.Group("/admin")
	admin.POST("/collections/run/:group_type", s.TriggerCollection)

	v1.POST("/webhooks/processor", s.ProcessorWebhook)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
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
