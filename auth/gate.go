package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

const (
	DefaultTimeout  = 60 * time.Second
	DefaultProofTTL = 2 * time.Minute
)

// Gate runs authentication attempts one at a time.
type Gate struct {
	registry  *Registry
	timeout   time.Duration
	proofTTL  time.Duration
	logger    *slog.Logger
	observers []Observer
	now       func() time.Time

	busy atomic.Bool
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithTimeout bounds how long a single attempt may wait for the user.
func WithTimeout(d time.Duration) GateOption {
	return func(g *Gate) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithProofTTL sets how long an issued proof stays valid.
func WithProofTTL(d time.Duration) GateOption {
	return func(g *Gate) {
		if d > 0 {
			g.proofTTL = d
		}
	}
}

func WithLogger(l *slog.Logger) GateOption {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithObserver registers fn for every state transition.
func WithObserver(fn Observer) GateOption {
	return func(g *Gate) {
		g.observers = append(g.observers, fn)
	}
}

// WithClock overrides time.Now for proof timestamps.
func WithClock(now func() time.Time) GateOption {
	return func(g *Gate) {
		g.now = now
	}
}

// NewGate returns a gate dispatching to the backends in reg.
func NewGate(reg *Registry, opts ...GateOption) *Gate {
	g := &Gate{
		registry: reg,
		timeout:  DefaultTimeout,
		proofTTL: DefaultProofTTL,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Registry returns the backends this gate dispatches to.
func (g *Gate) Registry() *Registry {
	return g.registry
}

// Approve runs the backend configured in req.Config. VariantNone is
// approved immediately without entering the state machine.
func (g *Gate) Approve(ctx context.Context, req Request) (*Proof, error) {
	backend, err := g.registry.Get(req.Config.Variant)
	if err != nil {
		return nil, err
	}
	if !req.Config.Protected() {
		p, err := backend.Approve(ctx, req)
		if err != nil {
			return nil, err
		}
		g.stamp(p, req.Operation)
		return p, nil
	}
	if err := req.Config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	return g.run(ctx, req.Operation, req.Config.Variant, func(ctx context.Context) (*Proof, error) {
		return backend.Approve(ctx, req)
	})
}

// Enroll attaches a new authenticator of variant v and returns its Config
// together with a proof for it.
func (g *Gate) Enroll(ctx context.Context, v Variant, req EnrollRequest) (Config, *Proof, error) {
	enroller, err := g.registry.Enroller(v)
	if err != nil {
		return Config{}, nil, err
	}
	var cfg Config
	p, err := g.run(ctx, "enroll", v, func(ctx context.Context) (*Proof, error) {
		c, p, err := enroller.Enroll(ctx, req)
		cfg = c
		return p, err
	})
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, p, nil
}

type outcome struct {
	proof *Proof
	err   error
}

func (g *Gate) run(ctx context.Context, op string, v Variant, fn func(context.Context) (*Proof, error)) (*Proof, error) {
	if !g.busy.CompareAndSwap(false, true) {
		return nil, ErrAuthInProgress
	}
	defer g.busy.Store(false)

	a := &attempt{operation: op, variant: v, observers: g.observers}
	if err := a.transition(StatePrompted, nil); err != nil {
		return nil, err
	}
	g.logger.Debug("authentication prompted", "operation", op, "variant", v)

	actx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		p, err := fn(actx)
		done <- outcome{proof: p, err: err}
	}()

	var res outcome
	select {
	case res = <-done:
		if res.err != nil {
			res.err = g.contextError(ctx, actx, res.err)
		}
	case <-actx.Done():
		res.err = g.contextError(ctx, actx, actx.Err())
		// A backend that ignores ctx may still hand back a proof later.
		go func() {
			if late := <-done; late.proof != nil {
				late.proof.Destroy()
			}
		}()
	}

	state := stateFor(res.err)
	if err := a.transition(state, res.err); err != nil {
		res.proof.Destroy()
		return nil, err
	}
	if res.err != nil {
		g.logger.Info("authentication not approved", "operation", op, "variant", v, "state", state.String())
		return nil, res.err
	}
	if res.proof == nil {
		return nil, ErrAuthenticationFailed
	}
	g.stamp(res.proof, op)
	g.logger.Debug("authentication approved", "operation", op, "variant", v)
	return res.proof, nil
}

// contextError rewrites context errors into the auth taxonomy. A deadline
// is a timeout whether it came from the gate or the caller; anything else
// ending the context is a cancellation.
func (g *Gate) contextError(parent, actx context.Context, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimedOut
	case errors.Is(err, context.Canceled):
		return ErrCancelled
	case actx.Err() != nil && !errors.Is(err, ErrAuthenticationFailed) && !errors.Is(err, ErrNoAuthenticatorFound):
		if errors.Is(actx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
			return ErrTimedOut
		}
		return ErrCancelled
	default:
		return err
	}
}

func (g *Gate) stamp(p *Proof, op string) {
	now := g.now()
	p.Operation = op
	p.IssuedAt = now
	p.ExpiresAt = now.Add(g.proofTTL)
}
