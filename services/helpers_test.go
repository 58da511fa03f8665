package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kendall-kelly/repairshop-api/models"
	"github.com/kendall-kelly/repairshop-api/tests/testutil"
	"github.com/kendall-kelly/repairshop-api/workflow"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// tickingClock returns a strictly increasing time on every call.
type tickingClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *tickingClock {
	return &tickingClock{t: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type recordingWriter struct {
	mu       sync.Mutex
	err      error
	messages []kafka.Message
	closed   bool
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *recordingWriter) Messages() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.messages...)
}

// testEnv wires an OrderService against a private sqlite database. Debounce
// delays are long enough that nothing flushes on its own during a test.
type testEnv struct {
	db       *gorm.DB
	fx       *testutil.Fixture
	feed     *MemoryChangeFeed
	cache    *MemorySnapshotCache
	repo     *OrderRepository
	comments *CommentLog
	writer   *recordingWriter
	svc      *OrderService
	clock    *tickingClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewTestDB(t)
	e := &testEnv{
		db:     db,
		fx:     testutil.Seed(t, db),
		feed:   NewMemoryChangeFeed(nil),
		cache:  NewMemorySnapshotCache(),
		writer: &recordingWriter{},
		clock:  newClock(),
	}
	e.repo = NewOrderRepository(db, e.feed, nil)
	e.comments = NewCommentLog(db)
	notifier := NewKafkaNotifier(e.writer, e.repo, "Taller Sur", "https://shop.example.com/orders", nil)
	machine := workflow.NewMachine(e.repo, e.comments, notifier, nil).WithClock(e.clock.Now)
	e.svc = NewOrderService(e.repo, e.comments, machine, e.cache, time.Hour, time.Hour, nil).WithClock(e.clock.Now)
	t.Cleanup(func() { _ = e.svc.Shutdown(context.Background()) })
	return e
}

func (e *testEnv) tech() string { return e.fx.Tech.ID }

func (e *testEnv) newOrder(t *testing.T) *models.Order {
	t.Helper()
	order, err := e.svc.CreateOrder(context.Background(), CreateOrderInput{
		CustomerID:  e.fx.Customer.ID,
		EquipmentID: e.fx.Equipment.ID,
	}, e.tech())
	require.NoError(t, err)
	return order
}

// orderInQuotation creates an order and advances it twice.
func (e *testEnv) orderInQuotation(t *testing.T) *models.Order {
	t.Helper()
	order := e.newOrder(t)
	e.advance(t, order.ID, 2)
	return e.reload(t, order.ID)
}

func (e *testEnv) advance(t *testing.T, id string, times int) {
	t.Helper()
	for i := 0; i < times; i++ {
		_, err := e.svc.Advance(context.Background(), id, e.tech())
		require.NoError(t, err)
	}
}

func (e *testEnv) reload(t *testing.T, id string) *models.Order {
	t.Helper()
	order, err := e.repo.GetOrder(context.Background(), id)
	require.NoError(t, err)
	return order
}

var errBackendDown = errors.New("backend down")

// failOrderUpdates makes every orders update that sets column fail until the
// test ends.
func (e *testEnv) failOrderUpdates(t *testing.T, column string) {
	t.Helper()
	name := "test:fail_" + column
	err := e.db.Callback().Update().Before("gorm:update").Register(name, func(tx *gorm.DB) {
		fields, ok := tx.Statement.Dest.(map[string]interface{})
		if !ok || tx.Statement.Table != "orders" {
			return
		}
		if _, ok := fields[column]; ok {
			_ = tx.AddError(errBackendDown)
		}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.db.Callback().Update().Remove(name) })
}
