package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/paywall/internal/convert"
	"github.com/and161185/paywall/internal/errs"
	"github.com/and161185/paywall/internal/service"
	"github.com/and161185/paywall/internal/wallet"
)

// readerIdentity picks the wallet used for a read: the claimed one, else the session.
// With ReadRequiresSession a claimed wallet must match the session.
func (s *Server) readerIdentity(c *gin.Context, claimed string) (string, error) {
	sess, _ := SessionFromCtx(c.Request.Context())
	claimed = strings.TrimSpace(claimed)
	if claimed == "" {
		return sess, nil
	}
	if s.cfg.ReadRequiresSession && !wallet.Equal(claimed, sess) {
		return "", errs.ErrUnauthorized
	}
	return claimed, nil
}

func (s *Server) listArticles(c *gin.Context) {
	list, err := s.svc.Articles.List(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.Previews(list))
}

type articleRequest struct {
	Title        string     `json:"title"`
	Excerpt      string     `json:"excerpt"`
	Content      string     `json:"content"`
	Price        flexAmount `json:"price"`
	Category     string     `json:"category"`
	Author       string     `json:"author"`
	AuthorAvatar string     `json:"authorAvatar"`
	ImageURL     string     `json:"imageUrl"`
	IsLocked     *bool      `json:"isLocked"`
}

func (s *Server) createArticle(c *gin.Context) {
	addr, ok := SessionFromCtx(c.Request.Context())
	if !ok {
		s.writeError(c, errs.ErrUnauthorized)
		return
	}
	var req articleRequest
	if err := bindJSON(c, &req); err != nil {
		s.writeError(c, err)
		return
	}
	art, err := s.svc.Articles.Create(c.Request.Context(), addr, service.ArticleInput{
		Title:        req.Title,
		Excerpt:      req.Excerpt,
		Content:      req.Content,
		Price:        string(req.Price),
		Category:     req.Category,
		Author:       req.Author,
		AuthorAvatar: req.AuthorAvatar,
		ImageURL:     req.ImageURL,
		IsLocked:     req.IsLocked,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.Full(*art))
}

func (s *Server) getArticle(c *gin.Context) {
	s.serveDecision(c, c.Query("wallet"))
}

type unlockRequest struct {
	WalletAddress string `json:"walletAddress"`
	// VerificationResult is accepted for compatibility and never trusted.
	VerificationResult any `json:"verificationResult"`
}

func (s *Server) unlockArticle(c *gin.Context) {
	var req unlockRequest
	if c.Request.ContentLength != 0 {
		if err := bindJSON(c, &req); err != nil {
			s.writeError(c, err)
			return
		}
	}
	s.serveDecision(c, req.WalletAddress)
}

// serveDecision runs the access engine and writes 200, 402 or 404.
func (s *Server) serveDecision(c *gin.Context, claimed string) {
	id, err := paramID(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}
	addr, err := s.readerIdentity(c, claimed)
	if err != nil {
		s.writeError(c, err)
		return
	}
	d, err := s.svc.Access.Decide(c.Request.Context(), service.AccessRequest{ArticleID: id, Wallet: addr, Agent: isAgent(c)})
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.log.Debug("access decision",
		zap.Int64("article", id),
		zap.String("outcome", string(d.Outcome)),
		zap.String("source", string(d.Source)),
		zap.Any("path", d.Path),
	)
	s.writeDecision(c, d)
}

var errIncompleteChallenge = errors.New("payment required decision without challenge")

func (s *Server) writeDecision(c *gin.Context, d service.Decision) {
	switch d.Outcome {
	case service.OutcomeAllow:
		c.JSON(http.StatusOK, convert.Full(*d.Article))
	case service.OutcomePaymentRequired:
		body, ok := convert.ToPaymentRequired(d)
		if !ok {
			s.writeError(c, errIncompleteChallenge)
			return
		}
		setChallengeHeaders(c, body.Payment, d.Agent)
		c.JSON(http.StatusPaymentRequired, body)
	default:
		c.JSON(http.StatusNotFound, gin.H{"message": "Article not found"})
	}
}

func setChallengeHeaders(c *gin.Context, ch convert.ChallengeView, agent bool) {
	ai := "false"
	if agent {
		ai = "true"
	}
	c.Header("X-Payment-Required", "true")
	c.Header("X-Payment-Amount", ch.Amount)
	c.Header("X-Payment-Currency", ch.Currency)
	c.Header("X-Payment-Recipient", ch.Recipient)
	c.Header("X-Payment-Network", ch.Network)
	c.Header("X-Payment-Endpoint", ch.PaymentEndpoint)
	c.Header("X-Content-Type", "premium-article")
	c.Header("X-AI-Accessible", ai)
}

// articleContent serves only the body, answering 402 in the compact x402 form.
func (s *Server) articleContent(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}
	if strings.TrimSpace(c.Query("wallet")) == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Wallet address required"})
		return
	}
	addr, err := s.readerIdentity(c, c.Query("wallet"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	d, err := s.svc.Access.Decide(c.Request.Context(), service.AccessRequest{ArticleID: id, Wallet: addr, Agent: isAgent(c)})
	if err != nil {
		s.writeError(c, err)
		return
	}
	switch d.Outcome {
	case service.OutcomeAllow:
		c.JSON(http.StatusOK, gin.H{"content": d.Article.Content})
	case service.OutcomePaymentRequired:
		c.JSON(http.StatusPaymentRequired, gin.H{
			"message":  "Payment required to access this content",
			"price":    convert.Amount(d.Article.Price),
			"currency": s.cfg.Currency,
			"protocol": "x402",
		})
	default:
		c.JSON(http.StatusNotFound, gin.H{"message": "Article not found"})
	}
}
