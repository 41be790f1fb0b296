package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	transactiondomain "github.com/smallbiznis/matrixgw/internal/transaction/domain"
	"github.com/stretchr/testify/assert"
)

type fakeGate struct {
	token string

	submittedID   string
	submittedBody string
	submitCalls   int

	submitErr  error
	processErr error
}

func (f *fakeGate) Authorize(token string) error {
	if token == "" {
		return transactiondomain.ErrMissingToken
	}
	if token != f.token {
		return transactiondomain.ErrInvalidToken
	}
	return nil
}

func (f *fakeGate) Submit(ctx context.Context, txnID string, body []byte) (*transactiondomain.Handle, error) {
	f.submitCalls++
	f.submittedID = txnID
	f.submittedBody = string(body)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	if f.processErr != nil {
		handle := transactiondomain.NewHandle()
		handle.Resolve("", f.processErr)
		return handle, nil
	}
	return transactiondomain.ResolvedHandle(transactiondomain.SuccessResult), nil
}

func newTestServer(gate transactiondomain.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())

	srv := &Server{engine: router, gate: gate}
	srv.RegisterAppServiceRoutes()

	return router
}

func pushTransaction(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPut, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var payload errorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return payload
}

func TestPushTransactionMissingToken(t *testing.T) {
	gate := &fakeGate{token: "hs-secret"}
	router := newTestServer(gate)

	resp := pushTransaction(router, "/_matrix/app/v1/transactions/txn-1", `{"events":[]}`)

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, "M_UNAUTHORIZED", decodeError(t, resp).ErrCode)
	assert.Equal(t, 0, gate.submitCalls)
}

func TestPushTransactionInvalidToken(t *testing.T) {
	gate := &fakeGate{token: "hs-secret"}
	router := newTestServer(gate)

	resp := pushTransaction(router, "/_matrix/app/v1/transactions/txn-1?access_token=wrong", `{"events":[]}`)

	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.Equal(t, "M_FORBIDDEN", decodeError(t, resp).ErrCode)
	assert.Equal(t, 0, gate.submitCalls)
}

func TestPushTransactionSuccess(t *testing.T) {
	gate := &fakeGate{token: "hs-secret"}
	router := newTestServer(gate)

	resp := pushTransaction(router, "/_matrix/app/v1/transactions/txn-1?access_token=hs-secret", `{"events":[]}`)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "{}", resp.Body.String())
	assert.Contains(t, resp.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, "txn-1", gate.submittedID)
	assert.Equal(t, `{"events":[]}`, gate.submittedBody)
}

func TestPushTransactionLegacyRoute(t *testing.T) {
	gate := &fakeGate{token: "hs-secret"}
	router := newTestServer(gate)

	resp := pushTransaction(router, "/transactions/txn-legacy?access_token=hs-secret", `{"events":[]}`)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "{}", resp.Body.String())
	assert.Equal(t, "txn-legacy", gate.submittedID)
}

func TestPushTransactionInvalidID(t *testing.T) {
	gate := &fakeGate{
		token:     "hs-secret",
		submitErr: transactiondomain.ErrInvalidTransactionID,
	}
	router := newTestServer(gate)

	resp := pushTransaction(router, "/_matrix/app/v1/transactions/%20?access_token=hs-secret", `{"events":[]}`)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "M_INVALID_PARAM", decodeError(t, resp).ErrCode)
}

func TestPushTransactionProcessingFailure(t *testing.T) {
	gate := &fakeGate{
		token:      "hs-secret",
		processErr: transactiondomain.ErrMalformedTransaction,
	}
	router := newTestServer(gate)

	resp := pushTransaction(router, "/_matrix/app/v1/transactions/txn-1?access_token=hs-secret", `{not json`)

	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Equal(t, "M_BAD_JSON", decodeError(t, resp).ErrCode)
}
