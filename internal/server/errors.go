package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	transactiondomain "github.com/smallbiznis/matrixgw/internal/transaction/domain"
)

// errorResponse is the Matrix-style error body returned on failures.
type errorResponse struct {
	ErrCode string `json:"errcode"`
	Error   string `json:"error"`
}

// ErrorHandlingMiddleware renders the last recorded error once the handler
// chain finishes, unless a response has already been written.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, payload)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorResponse) {
	switch {
	case errors.Is(err, transactiondomain.ErrMissingToken):
		return http.StatusUnauthorized, errorResponse{
			ErrCode: "M_UNAUTHORIZED",
			Error:   "No homeserver token",
		}
	case errors.Is(err, transactiondomain.ErrInvalidToken):
		return http.StatusForbidden, errorResponse{
			ErrCode: "M_FORBIDDEN",
			Error:   "Invalid homeserver token",
		}
	case errors.Is(err, transactiondomain.ErrInvalidTransactionID):
		return http.StatusBadRequest, errorResponse{
			ErrCode: "M_INVALID_PARAM",
			Error:   "Transaction ID cannot be empty",
		}
	case errors.Is(err, transactiondomain.ErrMalformedTransaction):
		return http.StatusInternalServerError, errorResponse{
			ErrCode: "M_BAD_JSON",
			Error:   "Unable to process transaction",
		}
	default:
		return http.StatusInternalServerError, errorResponse{
			ErrCode: "M_UNKNOWN",
			Error:   "Internal server error",
		}
	}
}

func classifyErrorForLog(err error) (string, string) {
	switch {
	case errors.Is(err, transactiondomain.ErrMissingToken):
		return "auth_error", "missing_token"
	case errors.Is(err, transactiondomain.ErrInvalidToken):
		return "auth_error", "invalid_token"
	case errors.Is(err, transactiondomain.ErrInvalidTransactionID):
		return "validation_error", "invalid_transaction_id"
	case errors.Is(err, transactiondomain.ErrMalformedTransaction):
		return "processing_error", "malformed_transaction"
	default:
		return "internal_error", "unknown"
	}
}
