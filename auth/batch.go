package auth

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MaxBatchWindow caps how long a batch may reuse one approval.
const MaxBatchWindow = 15 * time.Minute

// Batch reuses one approval for a bounded window. It exists for scripted
// runs that would otherwise prompt once per secret, and must be enabled
// explicitly by the caller.
type Batch struct {
	next   Approver
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	cached  *Proof
	expires time.Time
}

// NewBatch wraps next with a reuse window of at most MaxBatchWindow.
func NewBatch(next Approver, window time.Duration) (*Batch, error) {
	if window <= 0 || window > MaxBatchWindow {
		return nil, fmt.Errorf("batch window must be between 0 and %s", MaxBatchWindow)
	}
	return &Batch{next: next, window: window, now: time.Now}, nil
}

// Approve returns a copy of the cached proof while the window is open and
// the proof matches req.Config. Otherwise it delegates and caches the result.
func (b *Batch) Approve(ctx context.Context, req Request) (*Proof, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if b.cached != nil && now.Before(b.expires) && b.cached.Check(req.Config, now) == nil {
		p, err := b.cached.clone()
		if err == nil {
			p.Operation = req.Operation
			return p, nil
		}
	}
	b.dropLocked()

	p, err := b.next.Approve(ctx, req)
	if err != nil {
		return nil, err
	}
	keep, err := p.clone()
	if err != nil {
		return p, nil
	}
	b.cached = keep
	b.expires = now.Add(b.window)
	if !keep.ExpiresAt.IsZero() {
		// Proofs handed out from the cache expire with the window.
		keep.ExpiresAt = b.expires
	}
	return p, nil
}

// Close forgets the cached approval.
func (b *Batch) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropLocked()
}

func (b *Batch) dropLocked() {
	b.cached.Destroy()
	b.cached = nil
	b.expires = time.Time{}
}
