package httpserver

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/and161185/paywall/internal/convert"
	"github.com/and161185/paywall/internal/errs"
)

// chainSummary is restricted to the creator session. It also refreshes the protocol stats.
func (s *Server) chainSummary(c *gin.Context) {
	addr, ok := SessionFromCtx(c.Request.Context())
	if !ok {
		s.writeError(c, errs.ErrUnauthorized)
		return
	}
	if !s.svc.Access.IsCreator(addr) {
		c.JSON(http.StatusForbidden, gin.H{"message": "creator only"})
		return
	}
	price, err := s.summaryPrice(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	sum := s.svc.Chain.Summarize(c.Request.Context(), s.cfg.Recipient, price, s.cfg.Creator)
	view := convert.ToChainSummary(s.cfg.Recipient, sum)
	if st, err := s.svc.Stats.Recompute(c.Request.Context()); err != nil {
		s.log.Warn("stats recompute", zap.Error(err))
	} else {
		sv := convert.ToStats(st)
		view.Stats = &sv
	}
	c.JSON(http.StatusOK, view)
}

// summaryPrice is ?price= or the cheapest article price.
func (s *Server) summaryPrice(c *gin.Context) (decimal.Decimal, error) {
	if raw := strings.TrimSpace(c.Query("price")); raw != "" {
		d, err := decimal.NewFromString(raw)
		if err != nil || d.Sign() < 0 {
			return decimal.Zero, errs.Invalid("price", "must be a non-negative decimal")
		}
		return d, nil
	}
	list, err := s.svc.Articles.List(c.Request.Context())
	if err != nil {
		return decimal.Zero, err
	}
	price := decimal.Zero
	for i, a := range list {
		if i == 0 || a.Price.LessThan(price) {
			price = a.Price
		}
	}
	return price, nil
}
