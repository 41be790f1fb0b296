package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/matrixgw/internal/clock"
	"github.com/smallbiznis/matrixgw/internal/config"
	inviteservice "github.com/smallbiznis/matrixgw/internal/invite/service"
	"github.com/smallbiznis/matrixgw/internal/matrix"
	notificationdomain "github.com/smallbiznis/matrixgw/internal/notification/domain"
	profiledomain "github.com/smallbiznis/matrixgw/internal/profile/domain"
	"github.com/smallbiznis/matrixgw/internal/transaction/domain"
	"github.com/smallbiznis/matrixgw/pkg/db"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type directoryStub struct{}

func (directoryStub) ThreePids(ctx context.Context, user matrix.UserID) ([]profiledomain.ThreePid, error) {
	return []profiledomain.ThreePid{{Medium: "email", Address: user.Localpart + "@mail.example"}}, nil
}

func (directoryStub) DisplayName(ctx context.Context, user matrix.UserID) (string, bool, error) {
	return "", false, nil
}

func (directoryStub) RoomName(ctx context.Context, roomID string) (string, bool, error) {
	return "", false, nil
}

type countingSender struct {
	mu    sync.Mutex
	calls int
}

func (s *countingSender) SendForInvite(ctx context.Context, payload notificationdomain.Payload) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return nil
}

func (s *countingSender) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

func gateConfig() config.Config {
	cfg := config.Config{}
	cfg.Matrix = config.MatrixConfig{
		Domain:    "example.org",
		Localpart: "appservice",
		HSToken:   "hs-secret",
	}
	return cfg
}

func setupStore(t *testing.T) db.Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	if err := conn.AutoMigrate(&domain.Record{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return db.Store{DB: conn}
}

func newGate(t *testing.T, store db.Store, clk clock.Clock, sender notificationdomain.Sender) domain.Service {
	t.Helper()

	cfg := gateConfig()
	log := zap.NewNop()
	filter := inviteservice.NewFilter(cfg, log)
	notifier := inviteservice.NewNotifier(inviteservice.NotifierParam{
		Log:      log,
		Profiles: directoryStub{},
		Rooms:    directoryStub{},
		Sender:   sender,
	})

	return NewGate(GateParam{
		Store:    store,
		Log:      log,
		Cfg:      cfg,
		GenID:    mustNode(t),
		Clock:    clk,
		Filter:   filter,
		Notifier: notifier,
	})
}

func setupGate(t *testing.T, sender notificationdomain.Sender) (domain.Service, db.Store) {
	t.Helper()
	store := setupStore(t)
	clk := clock.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	return newGate(t, store, clk, sender), store
}

func countRecords(t *testing.T, store db.Store) int64 {
	t.Helper()
	var count int64
	if err := store.Model(&domain.Record{}).Count(&count).Error; err != nil {
		t.Fatalf("count records: %v", err)
	}
	return count
}

const inviteBatch = `{"events":[{
	"event_id": "$evt1",
	"room_id": "!room:example.org",
	"sender": "@bob:remote.example",
	"type": "m.room.member",
	"state_key": "@alice:example.org",
	"content": {"membership": "invite"}
}]}`

func TestAuthorize(t *testing.T) {
	gate, _ := setupGate(t, &countingSender{})

	assert.ErrorIs(t, gate.Authorize(""), domain.ErrMissingToken)
	assert.ErrorIs(t, gate.Authorize("  "), domain.ErrMissingToken)
	assert.ErrorIs(t, gate.Authorize("wrong"), domain.ErrInvalidToken)
	assert.NoError(t, gate.Authorize("hs-secret"))
}

func TestSubmitBlankTransactionID(t *testing.T) {
	gate, store := setupGate(t, &countingSender{})

	_, err := gate.Submit(context.Background(), "  ", []byte(inviteBatch))
	assert.ErrorIs(t, err, domain.ErrInvalidTransactionID)
	assert.EqualValues(t, 0, countRecords(t, store))
}

func TestSubmitProcessesOnce(t *testing.T) {
	sender := &countingSender{}
	gate, store := setupGate(t, sender)
	ctx := context.Background()

	handle, err := gate.Submit(ctx, "txn-1", []byte(inviteBatch))
	if err != nil {
		t.Fatalf("submit first: %v", err)
	}
	result, err := handle.Wait(ctx)
	assert.NoError(t, err)
	assert.Equal(t, domain.SuccessResult, result)
	assert.Equal(t, 1, sender.Calls())
	assert.EqualValues(t, 1, countRecords(t, store))

	// A retry of the same id replays the stored outcome even when the
	// homeserver pushes a different body.
	handle, err = gate.Submit(ctx, "txn-1", []byte(`{"events":[]}`))
	if err != nil {
		t.Fatalf("submit retry: %v", err)
	}
	result, err = handle.Wait(ctx)
	assert.NoError(t, err)
	assert.Equal(t, domain.SuccessResult, result)
	assert.Equal(t, 1, sender.Calls())
	assert.EqualValues(t, 1, countRecords(t, store))
}

func TestSubmitDistinctIDsProcessIndependently(t *testing.T) {
	sender := &countingSender{}
	gate, store := setupGate(t, sender)
	ctx := context.Background()

	for _, txnID := range []string{"txn-a", "txn-b"} {
		handle, err := gate.Submit(ctx, txnID, []byte(inviteBatch))
		if err != nil {
			t.Fatalf("submit %s: %v", txnID, err)
		}
		if _, err := handle.Wait(ctx); err != nil {
			t.Fatalf("wait %s: %v", txnID, err)
		}
	}

	assert.Equal(t, 2, sender.Calls())
	assert.EqualValues(t, 2, countRecords(t, store))
}

func TestSubmitConcurrentSameID(t *testing.T) {
	sender := &countingSender{}
	gate, store := setupGate(t, sender)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan string, 20)
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handle, err := gate.Submit(ctx, "txn-race", []byte(inviteBatch))
			if err != nil {
				errs <- err
				return
			}
			result, err := handle.Wait(ctx)
			if err != nil {
				errs <- err
				return
			}
			results <- result
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent submit: %v", err)
	}
	for result := range results {
		assert.Equal(t, domain.SuccessResult, result)
	}
	assert.Equal(t, 1, sender.Calls())
	assert.EqualValues(t, 1, countRecords(t, store))
}

func TestSubmitConcurrentAcrossGates(t *testing.T) {
	store := setupStore(t)
	clk := clock.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	// Two gate instances over one store model two gateway processes: their
	// in-flight maps are independent, so only the unique index arbitrates.
	// One insert wins; the loser re-reads the stored record and returns its
	// result verbatim.
	gates := []domain.Service{
		newGate(t, store, clk, &countingSender{}),
		newGate(t, store, clk, &countingSender{}),
	}
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan string, len(gates))
	errs := make(chan error, len(gates))
	for _, gate := range gates {
		wg.Add(1)
		go func(gate domain.Service) {
			defer wg.Done()
			handle, err := gate.Submit(ctx, "txn-x", []byte(`{"events":[]}`))
			if err != nil {
				errs <- err
				return
			}
			result, err := handle.Wait(ctx)
			if err != nil {
				errs <- err
				return
			}
			results <- result
		}(gate)
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Fatalf("cross-gate submit: %v", err)
	}
	count := 0
	for result := range results {
		assert.Equal(t, domain.SuccessResult, result)
		count++
	}
	assert.Equal(t, len(gates), count)
	assert.EqualValues(t, 1, countRecords(t, store))
}

func TestSubmitMalformedBody(t *testing.T) {
	sender := &countingSender{}
	gate, store := setupGate(t, sender)
	ctx := context.Background()

	handle, err := gate.Submit(ctx, "txn-bad", []byte(`{not json`))
	if err != nil {
		t.Fatalf("submit malformed: %v", err)
	}
	_, err = handle.Wait(ctx)
	assert.ErrorIs(t, err, domain.ErrMalformedTransaction)
	assert.EqualValues(t, 0, countRecords(t, store), "failed transactions leave no durable record")

	// With no stored outcome a retry reprocesses from scratch.
	handle, err = gate.Submit(ctx, "txn-bad", []byte(inviteBatch))
	if err != nil {
		t.Fatalf("submit retry: %v", err)
	}
	result, err := handle.Wait(ctx)
	assert.NoError(t, err)
	assert.Equal(t, domain.SuccessResult, result)
	assert.Equal(t, 1, sender.Calls())
	assert.EqualValues(t, 1, countRecords(t, store))
}

func TestSubmitMissingEventsField(t *testing.T) {
	gate, store := setupGate(t, &countingSender{})
	ctx := context.Background()

	handle, err := gate.Submit(ctx, "txn-empty", []byte(`{}`))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	_, err = handle.Wait(ctx)
	assert.ErrorIs(t, err, domain.ErrMalformedTransaction)
	assert.EqualValues(t, 0, countRecords(t, store))
}

func TestSubmitSkipsNonInviteEvents(t *testing.T) {
	sender := &countingSender{}
	gate, store := setupGate(t, sender)
	ctx := context.Background()

	body := `{"events":[
		{"event_id": "$m1", "room_id": "!room:example.org", "sender": "@bob:remote.example", "type": "m.room.message"},
		{"room_id": "!room:example.org", "sender": "@bob:remote.example", "type": "m.room.member", "state_key": "@alice:example.org", "content": {"membership": "invite"}},
		{"event_id": "$m3", "room_id": "!room:example.org", "sender": "@bob:remote.example", "type": "m.room.member", "state_key": "@carol:remote.example", "content": {"membership": "invite"}}
	]}`

	handle, err := gate.Submit(ctx, "txn-mixed", []byte(body))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	result, err := handle.Wait(ctx)
	assert.NoError(t, err)
	assert.Equal(t, domain.SuccessResult, result)
	assert.Equal(t, 0, sender.Calls(), "skipped events never reach the notifier")
	assert.EqualValues(t, 1, countRecords(t, store), "a batch of skips still completes successfully")
}

func TestSubmitResultsNamespacedByLocalpart(t *testing.T) {
	gate, store := setupGate(t, &countingSender{})
	ctx := context.Background()

	handle, err := gate.Submit(ctx, "txn-ns", []byte(`{"events":[]}`))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := handle.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	var record domain.Record
	if err := store.First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			t.Fatal("expected a stored record")
		}
		t.Fatalf("read record: %v", err)
	}
	assert.Equal(t, "appservice", record.Localpart)
	assert.Equal(t, "txn-ns", record.TxnID)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), record.CompletedAt.UTC())
}

func TestCompletionTimestampsFollowClock(t *testing.T) {
	store := setupStore(t)
	clk := clock.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	gate := newGate(t, store, clk, &countingSender{})
	ctx := context.Background()

	submit := func(txnID string) {
		handle, err := gate.Submit(ctx, txnID, []byte(`{"events":[]}`))
		if err != nil {
			t.Fatalf("submit %s: %v", txnID, err)
		}
		if _, err := handle.Wait(ctx); err != nil {
			t.Fatalf("wait %s: %v", txnID, err)
		}
	}

	submit("txn-first")
	clk.Advance(5 * time.Minute)
	submit("txn-second")

	var first, second domain.Record
	if err := store.Where("txn_id = ?", "txn-first").First(&first).Error; err != nil {
		t.Fatalf("read first: %v", err)
	}
	if err := store.Where("txn_id = ?", "txn-second").First(&second).Error; err != nil {
		t.Fatalf("read second: %v", err)
	}
	assert.Equal(t, 5*time.Minute, second.CompletedAt.Sub(first.CompletedAt))
}
