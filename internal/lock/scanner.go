package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrBusy means the wait budget ran out while the lease was held.
	ErrBusy = errors.New("scanner busy")
	// ErrBusyLocal is the degraded-mode equivalent when the lease store is
	// unreachable and the in-process lock is contended.
	ErrBusyLocal = errors.New("scanner busy (degraded local lock)")
)

type Options struct {
	TTL   time.Duration
	Wait  time.Duration
	Poll  time.Duration
	Grace time.Duration
}

func DefaultOptions() Options {
	return Options{
		TTL:   30 * time.Second,
		Wait:  5 * time.Second,
		Poll:  100 * time.Millisecond,
		Grace: 5 * time.Second,
	}
}

// ScannerMutex serializes the physical scanning workflow per operator.
// Two operators scanning at once never contend with each other.
type ScannerMutex struct {
	store  LeaseStore
	opts   Options
	logger *zap.Logger
	now    func() time.Time

	localMu sync.Mutex
	local   map[string]time.Time
}

func NewScannerMutex(store LeaseStore, opts Options, logger *zap.Logger) *ScannerMutex {
	if opts.TTL <= 0 {
		opts = DefaultOptions()
	}
	return &ScannerMutex{
		store:  store,
		opts:   opts,
		logger: logger,
		now:    time.Now,
		local:  make(map[string]time.Time),
	}
}

func leaseKey(operatorID int64) string {
	return fmt.Sprintf("scanner_lock:%d", operatorID)
}

// WithLock runs fn while holding the operator's lease. The release on the way
// out is holder-checked and only armed after a successful acquisition, so a
// caller that timed out can never delete a lease someone else still holds.
func (m *ScannerMutex) WithLock(ctx context.Context, operatorID int64, fn func(context.Context) error) error {
	key := leaseKey(operatorID)
	value, acquired, degraded, err := m.acquire(ctx, key, operatorID)
	if err != nil {
		return err
	}
	if !acquired {
		if degraded {
			return ErrBusyLocal
		}
		return ErrBusy
	}

	defer func() {
		if degraded {
			m.releaseLocal(key)
			return
		}
		if err := m.store.ReleaseLease(ctx, key, value); err != nil {
			m.logger.Warn("scanner lease release failed", zap.String("key", key), zap.Error(err))
		}
	}()

	return fn(ctx)
}

func (m *ScannerMutex) acquire(ctx context.Context, key string, operatorID int64) (value string, acquired, degraded bool, err error) {
	deadline := m.now().Add(m.opts.Wait)
	for {
		value := encodeLease(fmt.Sprintf("%d", operatorID), m.now())
		ok, err := m.store.AcquireLease(ctx, key, value, m.opts.TTL)
		if err != nil {
			// Lease store unreachable: keep same-process mutual
			// exclusion instead of failing the scan outright.
			m.logger.Warn("lease store unreachable, degrading to local lock", zap.Error(err))
			return "", m.acquireLocal(ctx, key, deadline), true, nil
		}
		if ok {
			return value, true, false, nil
		}

		m.clearStale(ctx, key)

		if m.now().After(deadline) {
			return "", false, false, nil
		}
		select {
		case <-ctx.Done():
			return "", false, false, ctx.Err()
		case <-time.After(m.opts.Poll):
		}
	}
}

// clearStale force-releases a lease older than TTL+grace, covering a holder
// that died without releasing and without store-side expiry taking effect.
// The delete is keyed on the observed value: if the stale lease expired and a
// fresh one took its place in the meantime, the fresh lease survives.
func (m *ScannerMutex) clearStale(ctx context.Context, key string) {
	value, found, err := m.store.GetLease(ctx, key)
	if err != nil || !found {
		return
	}
	lease, ok := decodeLease(value)
	if !ok {
		return
	}
	age := m.now().Sub(time.UnixMilli(lease.AcquiredAt))
	if age > m.opts.TTL+m.opts.Grace {
		m.logger.Warn("force-clearing stale scanner lease",
			zap.String("key", key),
			zap.String("holder", lease.Holder),
			zap.Duration("age", age))
		if err := m.store.ReleaseLease(ctx, key, value); err != nil {
			m.logger.Warn("stale lease clear failed", zap.String("key", key), zap.Error(err))
		}
	}
}

func (m *ScannerMutex) acquireLocal(ctx context.Context, key string, deadline time.Time) bool {
	for {
		if m.tryLocal(key) {
			return true
		}
		if m.now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(m.opts.Poll):
		}
	}
}

func (m *ScannerMutex) tryLocal(key string) bool {
	m.localMu.Lock()
	defer m.localMu.Unlock()
	held, ok := m.local[key]
	if ok && m.now().Sub(held) <= m.opts.TTL {
		return false
	}
	m.local[key] = m.now()
	return true
}

func (m *ScannerMutex) releaseLocal(key string) {
	m.localMu.Lock()
	defer m.localMu.Unlock()
	delete(m.local, key)
}
