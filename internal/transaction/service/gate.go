package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/matrixgw/internal/clock"
	"github.com/smallbiznis/matrixgw/internal/config"
	inviteservice "github.com/smallbiznis/matrixgw/internal/invite/service"
	"github.com/smallbiznis/matrixgw/internal/matrix"
	obsmetrics "github.com/smallbiznis/matrixgw/internal/observability/metrics"
	"github.com/smallbiznis/matrixgw/internal/transaction/domain"
	"github.com/smallbiznis/matrixgw/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type GateParam struct {
	fx.In

	Store    db.Store
	Log      *zap.Logger
	Cfg      config.Config
	GenID    *snowflake.Node
	Clock    clock.Clock
	Filter   *inviteservice.Filter
	Notifier *inviteservice.Notifier
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

// Gate coordinates transaction processing: it owns idempotency, same-id
// concurrency control and persistence of outcomes. The in-flight map is
// instance state, not a process singleton, so independent gates can coexist.
type Gate struct {
	db  *gorm.DB
	log *zap.Logger

	genID    *snowflake.Node
	clk      clock.Clock
	filter   *inviteservice.Filter
	notifier *inviteservice.Notifier
	metrics  *obsmetrics.Metrics

	localpart string
	hsToken   string

	mu       sync.Mutex
	inflight map[string]*domain.Handle
}

func NewGate(p GateParam) domain.Service {
	return &Gate{
		db:  p.Store.DB,
		log: p.Log.Named("transaction.gate"),

		genID:    p.GenID,
		clk:      p.Clock,
		filter:   p.Filter,
		notifier: p.Notifier,
		metrics:  p.Metrics,

		localpart: p.Cfg.Matrix.Localpart,
		hsToken:   p.Cfg.Matrix.HSToken,

		inflight: make(map[string]*domain.Handle),
	}
}

// Authorize validates the shared secret the homeserver presents. A blank
// token and a mismatched token are distinct failures so the transport layer
// can answer 401 and 403 respectively. No transaction state is touched.
func (g *Gate) Authorize(token string) error {
	if strings.TrimSpace(token) == "" {
		return domain.ErrMissingToken
	}
	if token != g.hsToken {
		return domain.ErrInvalidToken
	}
	return nil
}

// Submit resolves a pushed transaction to a cached, in-flight or new
// outcome. The existence check against the durable store and the in-flight
// registration form a single critical section: without that atomicity two
// concurrent first-time submissions of the same id would both process.
// Everything after registration runs unlocked, so unrelated transaction ids
// never serialize against each other.
func (g *Gate) Submit(ctx context.Context, txnID string, body []byte) (*domain.Handle, error) {
	if strings.TrimSpace(txnID) == "" {
		return nil, domain.ErrInvalidTransactionID
	}

	// Once admitted, a transaction always reaches an outcome; caller
	// disconnects must not cancel processing mid-flight.
	ctx = context.WithoutCancel(ctx)

	g.mu.Lock()
	stored, err := g.findRecord(ctx, txnID)
	if err != nil {
		g.mu.Unlock()
		return nil, err
	}
	if stored != nil {
		g.mu.Unlock()
		g.log.Info("transaction already processed, returning stored result",
			zap.String("txn_id", txnID))
		if g.metrics != nil {
			g.metrics.RecordTransaction(ctx, obsmetrics.TxnDeduplicated)
		}
		return domain.ResolvedHandle(stored.Result), nil
	}
	if handle, ok := g.inflight[txnID]; ok {
		g.mu.Unlock()
		g.log.Info("joining in-flight transaction", zap.String("txn_id", txnID))
		if g.metrics != nil {
			g.metrics.RecordTransaction(ctx, obsmetrics.TxnJoined)
		}
		return handle, nil
	}
	handle := domain.NewHandle()
	g.inflight[txnID] = handle
	g.mu.Unlock()

	g.process(ctx, txnID, body, handle)
	return handle, nil
}

func (g *Gate) process(ctx context.Context, txnID string, body []byte, handle *domain.Handle) {
	log := g.log.With(zap.String("txn_id", txnID))
	log.Info("processing transaction: start")
	start := time.Now()

	result, err := g.run(ctx, txnID, body, log)

	// The slot is removed after the outcome is durable (or abandoned) and
	// before the handle resolves: a submission racing the removal either
	// joins the handle or finds the persisted record.
	g.mu.Lock()
	delete(g.inflight, txnID)
	g.mu.Unlock()

	if err != nil {
		log.Error("unable to process transaction", zap.Error(err))
		if g.metrics != nil {
			g.metrics.RecordTransaction(ctx, obsmetrics.TxnFailed)
		}
		handle.Resolve("", err)
		return
	}

	log.Info("processed transaction",
		zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	if g.metrics != nil {
		g.metrics.RecordTransaction(ctx, obsmetrics.TxnProcessed)
	}
	handle.Resolve(result, nil)
}

// run decodes the batch, classifies every event, fans matching invites out to
// the notifier and persists the outcome. Per-event data problems are skips
// inside the filter; only decode and persistence failures surface, leaving no
// durable record so a later submission reprocesses from scratch.
func (g *Gate) run(ctx context.Context, txnID string, body []byte, log *zap.Logger) (string, error) {
	var txn matrix.Transaction
	if err := json.Unmarshal(body, &txn); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrMalformedTransaction, err)
	}
	if txn.Events == nil {
		return "", fmt.Errorf("%w: missing events field", domain.ErrMalformedTransaction)
	}
	log.Debug("events parsed", zap.Int("count", len(txn.Events)))

	for _, ev := range txn.Events {
		descriptor, ok := g.filter.Classify(ev)
		if !ok {
			continue
		}
		if g.metrics != nil {
			g.metrics.RecordInviteEvent(ctx)
		}
		g.notifier.Notify(ctx, *descriptor)
	}

	return g.persist(ctx, txnID, log)
}

func (g *Gate) persist(ctx context.Context, txnID string, log *zap.Logger) (string, error) {
	record := &domain.Record{
		ID:          g.genID.Generate(),
		Localpart:   g.localpart,
		TxnID:       txnID,
		CompletedAt: g.clk.Now(),
		Result:      domain.SuccessResult,
	}

	log.Info("saving transaction result to store")
	if err := g.db.WithContext(ctx).Create(record).Error; err != nil {
		if !db.IsDuplicateKeyErr(err) {
			return "", err
		}
		// Another process persisted this transaction id first; the store
		// is write-once, so its result wins.
		stored, findErr := g.findRecord(ctx, txnID)
		if findErr != nil {
			return "", findErr
		}
		if stored == nil {
			return "", fmt.Errorf("transaction %s: duplicate insert but no stored record", txnID)
		}
		return stored.Result, nil
	}
	return record.Result, nil
}

func (g *Gate) findRecord(ctx context.Context, txnID string) (*domain.Record, error) {
	var record domain.Record
	err := g.db.WithContext(ctx).
		Where("localpart = ? AND txn_id = ?", g.localpart, txnID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}
