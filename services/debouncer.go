package services

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FlushFunc persists the coalesced fields of one debounced key.
type FlushFunc func(ctx context.Context, fields map[string]interface{}) error

type pendingWrite struct {
	fields map[string]interface{}
	flush  FlushFunc
	timer  *time.Timer
	gen    uint64
}

// Debouncer coalesces writes per key. Each Schedule merges its fields into
// the pending set and restarts the delay; the last value of a field wins.
// Nothing is retried: a failed flush is logged and dropped.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	pending map[string]*pendingWrite
	gen     uint64
	logger  *zap.Logger
}

func NewDebouncer(delay time.Duration, logger *zap.Logger) *Debouncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Debouncer{delay: delay, pending: make(map[string]*pendingWrite), logger: logger}
}

// Schedule queues fields for key. flush replaces any earlier flush for key.
func (d *Debouncer) Schedule(key string, fields map[string]interface{}, flush FlushFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	gen := d.gen
	p, ok := d.pending[key]
	if ok {
		p.timer.Stop()
	} else {
		p = &pendingWrite{fields: make(map[string]interface{})}
		d.pending[key] = p
	}
	for k, v := range fields {
		p.fields[k] = v
	}
	p.flush = flush
	p.gen = gen
	p.timer = time.AfterFunc(d.delay, func() { d.fire(key, gen) })
}

func (d *Debouncer) fire(key string, gen uint64) {
	d.mu.Lock()
	p, ok := d.pending[key]
	if !ok || p.gen != gen {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.mu.Unlock()

	if err := p.flush(context.Background(), p.fields); err != nil {
		d.logger.Error("Debounced write failed", zap.String("key", key), zap.Error(err))
	}
}

func (d *Debouncer) take(match func(string) bool) map[string]*pendingWrite {
	d.mu.Lock()
	defer d.mu.Unlock()
	taken := make(map[string]*pendingWrite)
	for key, p := range d.pending {
		if match(key) {
			p.timer.Stop()
			delete(d.pending, key)
			taken[key] = p
		}
	}
	return taken
}

func runAll(ctx context.Context, writes map[string]*pendingWrite) error {
	var first error
	for _, p := range writes {
		if err := p.flush(ctx, p.fields); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Flush writes key now if it has pending fields.
func (d *Debouncer) Flush(ctx context.Context, key string) error {
	return runAll(ctx, d.take(func(k string) bool { return k == key }))
}

// FlushPrefix writes every pending key starting with prefix. All writes are
// attempted; the first error is returned.
func (d *Debouncer) FlushPrefix(ctx context.Context, prefix string) error {
	return runAll(ctx, d.take(func(k string) bool { return strings.HasPrefix(k, prefix) }))
}

// FlushAll writes everything pending, used on shutdown.
func (d *Debouncer) FlushAll(ctx context.Context) error {
	return runAll(ctx, d.take(func(string) bool { return true }))
}

// Take removes key's pending fields without writing them.
func (d *Debouncer) Take(key string) (map[string]interface{}, bool) {
	taken := d.take(func(k string) bool { return k == key })
	p, ok := taken[key]
	if !ok {
		return nil, false
	}
	return p.fields, true
}

// Cancel drops pending fields for key.
func (d *Debouncer) Cancel(key string) {
	d.take(func(k string) bool { return k == key })
}

// CancelIfUnchanged drops key only while its pending fields still equal seen,
// so an edit queued after seen was read survives.
func (d *Debouncer) CancelIfUnchanged(key string, seen map[string]interface{}) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pending[key]
	if !ok || !reflect.DeepEqual(p.fields, seen) {
		return false
	}
	p.timer.Stop()
	delete(d.pending, key)
	return true
}

// Pending returns a copy of the fields queued for key.
func (d *Debouncer) Pending(key string) (map[string]interface{}, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pending[key]
	if !ok {
		return nil, false
	}
	fields := make(map[string]interface{}, len(p.fields))
	for k, v := range p.fields {
		fields[k] = v
	}
	return fields, true
}

// Len is the number of keys waiting to flush.
func (d *Debouncer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
