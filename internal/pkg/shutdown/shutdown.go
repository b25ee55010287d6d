// Package shutdown runs registered cleanup handlers when the process is
// asked to stop.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cutline/internal/pkg/logger"
)

// DefaultTimeout bounds the whole cleanup sequence.
const DefaultTimeout = 30 * time.Second

// Handler is one named cleanup step.
type Handler struct {
	Name    string
	Cleanup func(ctx context.Context) error
}

// Manager runs handlers in reverse registration order, so resources opened
// first are released last.
type Manager struct {
	log      *logger.Logger
	timeout  time.Duration
	mu       sync.Mutex
	handlers []Handler
	once     sync.Once
	done     chan struct{}
}

func NewManager(log *logger.Logger, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{
		log:     log.WithComponent("shutdown"),
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

func (m *Manager) Register(name string, cleanup func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, Handler{Name: name, Cleanup: cleanup})
	m.log.Debug("registered shutdown handler", "name", name)
}

// RegisterSimple registers a cleanup that cannot fail.
func (m *Manager) RegisterSimple(name string, cleanup func()) {
	m.Register(name, func(context.Context) error {
		cleanup()
		return nil
	})
}

// Wait blocks until SIGINT, SIGTERM or SIGHUP arrives or ctx is done, then
// runs Shutdown.
func (m *Manager) Wait(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		m.log.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		m.log.Info("context canceled, initiating shutdown")
	}
	m.Shutdown()
}

// Shutdown runs the handlers one at a time, most recently registered first,
// under a single shared timeout. Once the timeout expires the remaining
// handlers are skipped. Only the first call has any effect.
func (m *Manager) Shutdown() {
	m.once.Do(m.shutdown)
}

// Done is closed when Shutdown has finished.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

func (m *Manager) shutdown() {
	defer close(m.done)

	m.mu.Lock()
	handlers := append([]Handler(nil), m.handlers...)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.log.Info("starting graceful shutdown", "handlers", len(handlers), "timeout", m.timeout.String())
	for i := len(handlers) - 1; i >= 0; i-- {
		if !m.run(ctx, handlers[i]) {
			m.log.Warn("shutdown timeout exceeded, skipping remaining handlers", "remaining", i)
			return
		}
	}
	m.log.Info("graceful shutdown completed")
}

// run reports false when the shared deadline expired before h returned.
func (m *Manager) run(ctx context.Context, h Handler) bool {
	start := time.Now()
	errCh := make(chan error, 1)
	go func() { errCh <- h.Cleanup(ctx) }()

	select {
	case err := <-errCh:
		elapsed := time.Since(start).Milliseconds()
		if err != nil {
			m.log.Error("shutdown handler failed", "name", h.Name, "error", err.Error(), "duration_ms", elapsed)
		} else {
			m.log.Debug("shutdown handler completed", "name", h.Name, "duration_ms", elapsed)
		}
		return true
	case <-ctx.Done():
		m.log.Warn("shutdown handler timed out", "name", h.Name)
		return false
	}
}
