package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stafflane/stafflane/internal/audit"
	auditdomain "github.com/stafflane/stafflane/internal/audit/domain"
	"github.com/stafflane/stafflane/internal/billing"
	billingdomain "github.com/stafflane/stafflane/internal/billing/domain"
	"github.com/stafflane/stafflane/internal/client"
	clientdomain "github.com/stafflane/stafflane/internal/client/domain"
	"github.com/stafflane/stafflane/internal/clock"
	"github.com/stafflane/stafflane/internal/config"
	"github.com/stafflane/stafflane/internal/credit"
	creditdomain "github.com/stafflane/stafflane/internal/credit/domain"
	"github.com/stafflane/stafflane/internal/gateway"
	obsmetrics "github.com/stafflane/stafflane/internal/observability/metrics"
	"github.com/stafflane/stafflane/internal/payout"
	payoutdomain "github.com/stafflane/stafflane/internal/payout/domain"
	"github.com/stafflane/stafflane/internal/reconcile"
	"github.com/stafflane/stafflane/internal/scheduler"
	"github.com/stafflane/stafflane/internal/webhook"
	webhookdomain "github.com/stafflane/stafflane/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	audit.Module,
	client.Module,
	credit.Module,
	gateway.Module,
	billing.Module,
	webhook.Module,
	payout.Module,
	reconcile.Module,
	scheduler.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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
	engine     *gin.Engine
	cfg        config.Config
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	billingSvc billingdomain.Service
	creditSvc  creditdomain.Service
	clientSvc  clientdomain.Service
	payoutSvc  payoutdomain.Service
	webhookSvc webhookdomain.Service
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	BillingSvc billingdomain.Service
	CreditSvc  creditdomain.Service
	ClientSvc  clientdomain.Service
	PayoutSvc  payoutdomain.Service
	WebhookSvc webhookdomain.Service
	AuditSvc   auditdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		db:         p.DB,
		log:        p.Log.Named("http.server"),
		genID:      p.GenID,
		clock:      p.Clock,
		billingSvc: p.BillingSvc,
		creditSvc:  p.CreditSvc,
		clientSvc:  p.ClientSvc,
		payoutSvc:  p.PayoutSvc,
		webhookSvc: p.WebhookSvc,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1", s.IdentityRequired())

	payments := v1.Group("/payments")
	payments.POST("/intents", s.CreatePaymentIntent)
	payments.POST("/confirm", s.ConfirmPayment)
	payments.GET("/transactions/:transaction_id", s.GetTransaction)
	payments.GET("/history", s.ListPaymentHistory)
	payments.POST("/refunds", s.AdminRequired(), s.RefundPayment)

	clients := v1.Group("/clients")
	clients.POST("", s.AdminRequired(), s.CreateClient)
	clients.GET("/:client_id", s.GetClient)

	credits := v1.Group("/credits")
	credits.GET("/balance", s.GetCreditBalance)
	credits.GET("/eligibility", s.CheckEligibility)
	credits.POST("/deduct", s.DeductCredit)
	credits.POST("/trial", s.UseTrial)

	payouts := v1.Group("/payouts", s.AdminRequired())
	payouts.POST("/schedule", s.SchedulePayout)
	payouts.GET("/batches/:batch_id", s.GetPayoutBatch)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/payments", s.HandlePaymentWebhook)
}
