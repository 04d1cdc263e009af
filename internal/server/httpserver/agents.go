package httpserver

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/and161185/paywall/internal/convert"
	"github.com/and161185/paywall/internal/service"
	"github.com/and161185/paywall/internal/wallet"
)

func (s *Server) discover(c *gin.Context) {
	list, err := s.svc.Articles.List(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Header("X-AI-Content-Count", strconv.Itoa(len(list)))
	c.Header("X-Payment-Currency", s.cfg.Currency)
	c.Header("X-Payment-Network", s.cfg.Network)
	c.JSON(http.StatusOK, convert.ToCatalog(list, s.cfg.Currency, s.cfg.Network))
}

type purchaseRequest struct {
	ArticleID   int64          `json:"articleId"`
	AgentID     string         `json:"agentId"`
	AgentWallet string         `json:"agentWallet"`
	Metadata    map[string]any `json:"metadata"`
}

func (s *Server) purchase(c *gin.Context) {
	var req purchaseRequest
	if err := bindJSON(c, &req); err != nil {
		s.writeError(c, err)
		return
	}
	res, err := s.svc.Payments.Purchase(c.Request.Context(), service.AgentPurchase{
		ArticleID:   req.ArticleID,
		AgentID:     req.AgentID,
		AgentWallet: req.AgentWallet,
		Metadata:    req.Metadata,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	if !res.Decision.Allowed() {
		s.writeDecision(c, res.Decision)
		return
	}
	c.JSON(http.StatusOK, convert.ToPurchase(res, wallet.Lower(req.AgentWallet), req.Metadata))
}

func (s *Server) recentActivity(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	list, err := s.svc.Activity.Recent(c.Request.Context(), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToActivities(list))
}

func (s *Server) simulateActivity(c *gin.Context) {
	a, err := s.svc.Activity.Simulate(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToActivity(*a))
}

func (s *Server) stats(c *gin.Context) {
	st, err := s.svc.Stats.Snapshot(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToStats(st))
}
