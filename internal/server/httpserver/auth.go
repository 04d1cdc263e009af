package httpserver

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/and161185/paywall/internal/convert"
	"github.com/and161185/paywall/internal/errs"
	"github.com/and161185/paywall/internal/wallet"
)

func (s *Server) authNonce(c *gin.Context) {
	ch, err := s.svc.Auth.IssueChallenge(c.Request.Context(), strings.TrimSpace(c.Query("address")))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": ch.Message, "nonce": ch.Nonce, "expiresAt": ch.ExpiresAt.UTC()})
}

type verifyRequest struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

func (s *Server) authVerify(c *gin.Context) {
	var req verifyRequest
	if err := bindJSON(c, &req); err != nil {
		s.writeError(c, err)
		return
	}
	if req.Message == "" || req.Signature == "" {
		s.writeError(c, errs.Invalid("", "message and signature are required"))
		return
	}
	sess, err := s.svc.Auth.VerifyWithIP(c.Request.Context(), req.Message, req.Signature, c.ClientIP())
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.setSessionCookie(c, sess.Token, int(s.cfg.SessionTTL.Seconds()))
	c.JSON(http.StatusOK, gin.H{"success": true, "address": sess.Address})
}

func (s *Server) authLogout(c *gin.Context) {
	s.setSessionCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// authStatus reports the session. A session for another wallet than ?wallet= is dropped.
func (s *Server) authStatus(c *gin.Context) {
	addr, ok := SessionFromCtx(c.Request.Context())
	if q := strings.TrimSpace(c.Query("wallet")); ok && q != "" && !wallet.Equal(q, addr) {
		s.setSessionCookie(c, "", -1)
		addr, ok = "", false
	}
	body := gin.H{"authenticated": ok, "isCreator": ok && s.svc.Access.IsCreator(addr)}
	if ok {
		body["address"] = addr
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) setSessionCookie(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, token, maxAge, "/", "", s.cfg.SecureCookie, true)
}

type connectRequest struct {
	WalletAddress string     `json:"walletAddress"`
	Balance       flexAmount `json:"balance"`
}

func (s *Server) connectWallet(c *gin.Context) {
	var req connectRequest
	if err := bindJSON(c, &req); err != nil {
		s.writeError(c, err)
		return
	}
	u, err := s.svc.Users.Connect(c.Request.Context(), req.WalletAddress, string(req.Balance))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": convert.ToUser(*u), "connected": true})
}
