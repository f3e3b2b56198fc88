package adapters

import (
	"context"
	"fmt"
	"sync"
	"time"

	ports "github.com/ZanzyTHEbar/folio/folio/agent/ports"
)

// MemoryLedger keeps pending calls in process memory. Records do not survive
// a restart; use it for single-instance deployments and tests.
type MemoryLedger struct {
	mu      sync.Mutex
	records map[string]*ports.CallRecord
	now     func() time.Time
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		records: make(map[string]*ports.CallRecord),
		now:     time.Now,
	}
}

func (l *MemoryLedger) Record(ctx context.Context, call ports.PendingCall) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.records[call.CallID]; exists {
		return fmt.Errorf("call %s already recorded", call.CallID)
	}
	if call.CreatedAt.IsZero() {
		call.CreatedAt = l.now()
	}
	l.records[call.CallID] = &ports.CallRecord{PendingCall: call, Status: ports.CallPending}
	return nil
}

func (l *MemoryLedger) Resolve(ctx context.Context, callID string, res ports.Resolution) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[callID]
	if !ok {
		return ports.ErrCallNotFound
	}
	if rec.Status.Terminal() {
		return nil
	}
	rec.Status = res.Status
	rec.Output = res.Output
	rec.Error = res.Error
	rec.ResolvedAt = l.now()
	return nil
}

func (l *MemoryLedger) Lookup(ctx context.Context, callID string) (ports.CallRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[callID]
	if !ok {
		return ports.CallRecord{}, ports.ErrCallNotFound
	}
	return *rec, nil
}

func (l *MemoryLedger) Claim(ctx context.Context, callID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[callID]
	if !ok {
		return false, ports.ErrCallNotFound
	}
	if rec.Delivered {
		return false, nil
	}
	rec.Delivered = true
	return true, nil
}

func (l *MemoryLedger) Forget(ctx context.Context, callID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, callID)
	return nil
}

// Prune drops resolved records resolved before cutoff.
func (l *MemoryLedger) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var n int64
	for id, rec := range l.records {
		if rec.Status.Terminal() && rec.ResolvedAt.Before(cutoff) {
			delete(l.records, id)
			n++
		}
	}
	return n, nil
}

var _ ports.Ledger = (*MemoryLedger)(nil)
