package httpserver

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/and161185/paywall/internal/convert"
	"github.com/and161185/paywall/internal/errs"
	"github.com/and161185/paywall/internal/model"
	"github.com/and161185/paywall/internal/service"
)

type paymentRequest struct {
	ArticleID     int64      `json:"articleId"`
	WalletAddress string     `json:"walletAddress"`
	Amount        flexAmount `json:"amount"`
	PaymentType   string     `json:"paymentType"`
	AgentID       string     `json:"agentId"`
	TxHash        string     `json:"txHash"`
}

func (s *Server) submitPayment(c *gin.Context) {
	var req paymentRequest
	if err := bindJSON(c, &req); err != nil {
		s.writeError(c, err)
		return
	}
	if req.ArticleID <= 0 {
		s.writeError(c, errs.Invalid("articleId", "required"))
		return
	}
	res, err := s.svc.Payments.Submit(c.Request.Context(), service.PaymentClaim{
		ArticleID: req.ArticleID,
		Wallet:    req.WalletAddress,
		Amount:    string(req.Amount),
		Type:      req.PaymentType,
		AgentID:   req.AgentID,
		TxHash:    req.TxHash,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	status := "processing"
	if res.Payment.Status == model.StatusCompleted {
		status = "completed"
	}
	c.JSON(http.StatusOK, gin.H{
		"payment":          convert.ToPayment(res.Payment),
		"status":           status,
		"alreadyPurchased": res.Existing && res.Payment.Status == model.StatusCompleted,
	})
}

func (s *Server) getPayment(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}
	p, err := s.svc.Payments.Get(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToPayment(*p))
}

func (s *Server) walletPayments(c *gin.Context) {
	list, err := s.svc.Payments.ListByWallet(c.Request.Context(), c.Param("address"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToPayments(list))
}

func (s *Server) checkPayment(c *gin.Context) {
	articleID, _ := strconv.ParseInt(c.Query("articleId"), 10, 64)
	addr := strings.TrimSpace(c.Query("walletAddress"))
	if articleID <= 0 || addr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Missing required parameters"})
		return
	}
	minimum := decimal.Zero
	if raw := strings.TrimSpace(c.Query("amount")); raw != "" {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			s.writeError(c, errs.Invalid("amount", "must be a decimal string"))
			return
		}
		minimum = d
	}
	res, err := s.svc.Access.CheckAccess(c.Request.Context(), articleID, addr, minimum)
	if err != nil {
		s.writeError(c, err)
		return
	}
	body := gin.H{"hasAccess": res.HasAccess}
	if res.HasAccess {
		body["source"] = string(res.Source)
	}
	c.JSON(http.StatusOK, body)
}
