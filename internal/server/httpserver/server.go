// Package httpserver exposes the paywall HTTP API (gin) under /api.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/and161185/paywall/internal/chain"
	"github.com/and161185/paywall/internal/service"
)

// ChainSummarizer reports what the chain source sees for a recipient.
type ChainSummarizer interface {
	Summarize(ctx context.Context, recipient string, price decimal.Decimal, excluded ...string) chain.Summary
}

// Services are the application services behind the routes.
type Services struct {
	Access   service.AccessService
	Payments service.PaymentService
	Articles service.ArticleService
	Auth     service.AuthService
	Stats    service.StatsService
	Activity service.ActivityService
	Users    service.UserService
	Chain    ChainSummarizer
	Ready    func(ctx context.Context) error // optional readiness check, e.g. a pool ping
}

// Config holds the payment metadata announced to clients and the session policy.
type Config struct {
	Creator             string
	Recipient           string
	Currency            string
	Network             string
	SessionTTL          time.Duration
	SecureCookie        bool
	ReadRequiresSession bool
}

// Server wires services into gin handlers.
type Server struct {
	svc Services
	cfg Config
	log *zap.Logger
}

// New constructs the HTTP server with injected services.
func New(svc Services, cfg Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Recipient == "" {
		cfg.Recipient = cfg.Creator
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	return &Server{svc: svc, cfg: cfg, log: log}
}

// Router builds the gin engine with middleware and every route.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(Recover(s.log), Logging(s.log), Session(s.svc.Auth))

	r.GET("/healthz", s.healthz)

	api := r.Group("/api")

	api.GET("/auth/nonce", s.authNonce)
	api.POST("/auth/verify", s.authVerify)
	api.POST("/auth/logout", s.authLogout)
	api.GET("/auth/status", s.authStatus)

	api.GET("/articles", s.listArticles)
	api.POST("/articles", s.createArticle)
	api.GET("/articles/:id", s.getArticle)
	api.POST("/articles/:id/unlock", s.unlockArticle)
	api.GET("/articles/:id/content", s.articleContent)

	api.POST("/wallet/connect", s.connectWallet)

	api.POST("/payments", s.submitPayment)
	api.GET("/payments/check", s.checkPayment)
	api.GET("/payments/wallet/:address", s.walletPayments)
	api.GET("/payments/:id", s.getPayment)

	api.GET("/ai/discover", s.discover)
	api.POST("/ai/purchase", s.purchase)

	api.GET("/agent-activity", s.recentActivity)
	api.POST("/agent-activity/simulate", s.simulateActivity)
	api.GET("/stats", s.stats)

	api.GET("/admin/chain-summary", s.chainSummary)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "route not found"})
	})
	return r
}

func (s *Server) healthz(c *gin.Context) {
	if s.svc.Ready != nil {
		if err := s.svc.Ready(c.Request.Context()); err != nil {
			s.log.Warn("readiness check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
