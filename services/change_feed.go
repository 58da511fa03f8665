package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OrderChangesChannel is the Postgres NOTIFY channel for order writes
const OrderChangesChannel = "order_changes"

// OrderChange announces that an order was written.
type OrderChange struct {
	OrderID   string    `json:"order_id"`
	UpdatedAt time.Time `json:"updated_at"`
	Status    string    `json:"status,omitempty"`
}

// ChangeFeed delivers order changes to subscribers. Subscribing with an
// empty order id receives every change.
type ChangeFeed interface {
	Publish(ctx context.Context, change OrderChange) error
	Subscribe(orderID string) (<-chan OrderChange, func())
}

type subscriber struct {
	orderID string
	ch      chan OrderChange
}

// MemoryChangeFeed fans changes out inside the process. Slow subscribers
// miss changes rather than block writers.
type MemoryChangeFeed struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int
	logger *zap.Logger
}

func NewMemoryChangeFeed(logger *zap.Logger) *MemoryChangeFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryChangeFeed{subs: make(map[int]*subscriber), logger: logger}
}

func (f *MemoryChangeFeed) Publish(ctx context.Context, change OrderChange) error {
	f.dispatch(change)
	return nil
}

func (f *MemoryChangeFeed) dispatch(change OrderChange) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, s := range f.subs {
		if s.orderID != "" && s.orderID != change.OrderID {
			continue
		}
		select {
		case s.ch <- change:
		default:
			f.logger.Warn("Dropping order change for slow subscriber", zap.String("order_id", change.OrderID))
		}
	}
}

// Subscribe returns a buffered channel and a function that unsubscribes and
// closes it.
func (f *MemoryChangeFeed) Subscribe(orderID string) (<-chan OrderChange, func()) {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	s := &subscriber{orderID: orderID, ch: make(chan OrderChange, 16)}
	f.subs[id] = s
	f.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(s.ch)
		})
	}
}

// Subscribers reports how many subscriptions are open.
func (f *MemoryChangeFeed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// PostgresChangeFeed publishes with pg_notify and listens with a pq
// listener, so every API instance sees every write.
type PostgresChangeFeed struct {
	db       *gorm.DB
	listener *pq.Listener
	local    *MemoryChangeFeed
	logger   *zap.Logger
	done     chan struct{}
}

// NewPostgresChangeFeed starts listening on OrderChangesChannel.
func NewPostgresChangeFeed(db *gorm.DB, databaseURL string, logger *zap.Logger) (*PostgresChangeFeed, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	listener := pq.NewListener(databaseURL, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("Order change listener event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})
	if err := listener.Listen(OrderChangesChannel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", OrderChangesChannel, err)
	}

	f := &PostgresChangeFeed{
		db:       db,
		listener: listener,
		local:    NewMemoryChangeFeed(logger),
		logger:   logger,
		done:     make(chan struct{}),
	}
	go f.run()
	return f, nil
}

func (f *PostgresChangeFeed) run() {
	for {
		select {
		case <-f.done:
			return
		case n, ok := <-f.listener.Notify:
			if !ok {
				return
			}
			// nil after a reconnect
			if n == nil {
				continue
			}
			var change OrderChange
			if err := json.Unmarshal([]byte(n.Extra), &change); err != nil {
				f.logger.Warn("Ignoring malformed order change", zap.String("payload", n.Extra), zap.Error(err))
				continue
			}
			f.local.dispatch(change)
		case <-time.After(90 * time.Second):
			go func() {
				if err := f.listener.Ping(); err != nil {
					f.logger.Warn("Order change listener ping failed", zap.Error(err))
				}
			}()
		}
	}
}

func (f *PostgresChangeFeed) Publish(ctx context.Context, change OrderChange) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return err
	}
	return f.db.WithContext(ctx).Exec("SELECT pg_notify(?, ?)", OrderChangesChannel, string(payload)).Error
}

func (f *PostgresChangeFeed) Subscribe(orderID string) (<-chan OrderChange, func()) {
	return f.local.Subscribe(orderID)
}

// Close stops listening.
func (f *PostgresChangeFeed) Close() error {
	close(f.done)
	return f.listener.Close()
}
