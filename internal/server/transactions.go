package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// PushTransaction handles a homeserver pushing one appservice transaction.
// The shared-secret check runs before anything touches transaction state.
func (s *Server) PushTransaction(c *gin.Context) {
	if txnID := strings.TrimSpace(c.Param("txnId")); txnID != "" {
		c.Set("txn_id", txnID)
	}

	if err := s.gate.Authorize(c.Query("access_token")); err != nil {
		AbortWithError(c, err)
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	handle, err := s.gate.Submit(c.Request.Context(), c.Param("txnId"), body)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := handle.Wait(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Data(http.StatusOK, "application/json", []byte(result))
}
