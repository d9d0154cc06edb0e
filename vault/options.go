package vault

import (
	"log/slog"
	"time"

	"github.com/jmcleod/keysafe/auth"
	"github.com/jmcleod/keysafe/storage"
)

// DefaultLockTimeout is how long a writer waits for another to finish.
const DefaultLockTimeout = 2 * time.Second

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Errors are logged with their cause at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithBackends registers authenticator backends. The none backend is
// always available.
func WithBackends(backends ...auth.Authenticator) Option {
	return func(m *Manager) {
		m.backends = append(m.backends, backends...)
	}
}

// WithAuthTimeout bounds a single authentication attempt.
func WithAuthTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.authTimeout = d
	}
}

// WithProofTTL sets how long an approval stays valid.
func WithProofTTL(d time.Duration) Option {
	return func(m *Manager) {
		m.proofTTL = d
	}
}

// WithBatchWindow lets one approval serve every operation inside window.
// Zero, the default, prompts for each operation.
func WithBatchWindow(d time.Duration) Option {
	return func(m *Manager) {
		m.batchWindow = d
	}
}

// WithLockTimeout sets how long a writer waits for the journal lock.
func WithLockTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.lockTimeout = d
		}
	}
}

// WithRepository replaces the file-backed vault repository.
func WithRepository(repo storage.Repository) Option {
	return func(m *Manager) {
		m.repo = repo
	}
}

// WithObserver receives authentication state transitions.
func WithObserver(fn auth.Observer) Option {
	return func(m *Manager) {
		m.observers = append(m.observers, fn)
	}
}

// WithSilent suppresses interactive text prompts.
func WithSilent(silent bool) Option {
	return func(m *Manager) {
		m.silent = silent
	}
}

// WithEnrollOptions sets the parameters used when an authenticator is
// enrolled and the KDF used to seal exported private keys.
func WithEnrollOptions(o auth.EnrollOptions) Option {
	return func(m *Manager) {
		m.enroll = o
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}
