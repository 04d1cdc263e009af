package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/paywall/internal/errs"
)

// writeError maps service errors to HTTP responses. Unknown errors are logged and hidden.
func (s *Server) writeError(c *gin.Context, err error) {
	var ve *errs.ValidationError
	switch {
	case errors.As(err, &ve):
		body := gin.H{"message": ve.Msg}
		if ve.Field != "" {
			body["field"] = ve.Field
			body["message"] = ve.Field + ": " + ve.Msg
		}
		c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, errs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "not found"})
	case errors.Is(err, errs.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"message": "authentication required"})
	case errors.Is(err, errs.ErrInvalidSignature):
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid signature"})
	case errors.Is(err, errs.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"message": "too many attempts, try later"})
	case errors.Is(err, errs.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"message": "already exists"})
	default:
		s.log.Error("request failed", zap.String("route", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
	}
}
