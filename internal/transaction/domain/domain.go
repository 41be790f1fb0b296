package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// SuccessResult is the fixed payload persisted and returned for every
// successfully processed transaction.
const SuccessResult = "{}"

// Record stores the durable outcome of one appservice transaction. Rows are
// write-once: once persisted, the result is returned verbatim for every
// later submission of the same transaction id.
type Record struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	Localpart   string       `gorm:"not null;uniqueIndex:ux_as_txn,priority:1"`
	TxnID       string       `gorm:"column:txn_id;not null;uniqueIndex:ux_as_txn,priority:2"`
	CompletedAt time.Time    `gorm:"not null"`
	Result      string       `gorm:"type:text;not null"`
}

// TableName sets the database table name.
func (Record) TableName() string { return "as_transactions" }

// Handle is the asynchronous outcome of a transaction submission. Every
// caller that submits the same in-flight transaction id observes the same
// handle and therefore the same result.
type Handle struct {
	done   chan struct{}
	result string
	err    error
}

// NewHandle returns an unresolved handle.
func NewHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// ResolvedHandle returns a handle already carrying a result.
func ResolvedHandle(result string) *Handle {
	h := NewHandle()
	h.Resolve(result, nil)
	return h
}

// Resolve publishes the outcome and wakes every waiter. It must be called
// exactly once.
func (h *Handle) Resolve(result string, err error) {
	h.result = result
	h.err = err
	close(h.done)
}

// Wait blocks until the transaction reaches an outcome or ctx is done.
func (h *Handle) Wait(ctx context.Context) (string, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Service is the idempotent transaction gate.
type Service interface {
	// Authorize validates the homeserver shared secret. It touches no
	// transaction state.
	Authorize(token string) error

	// Submit routes a pushed transaction to a cached, in-flight or new
	// outcome. The returned handle resolves with the result payload.
	Submit(ctx context.Context, txnID string, body []byte) (*Handle, error)
}

var (
	ErrMissingToken         = errors.New("missing_hs_token")
	ErrInvalidToken         = errors.New("invalid_hs_token")
	ErrInvalidTransactionID = errors.New("invalid_transaction_id")
	ErrMalformedTransaction = errors.New("malformed_transaction")
)
