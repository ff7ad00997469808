// interactive/shutdown.go
package interactive

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// ShutdownManager turns interrupts into turn cancellation or shutdown. The
// first signal during a turn cancels that turn; a signal at the prompt, or a
// second one during the same turn, shuts the session down.
type ShutdownManager struct {
	mu         sync.Mutex
	cancelTurn context.CancelFunc
	interrupts int
	signals    chan os.Signal
	shutdownCh chan struct{}
	closeOnce  sync.Once
	logger     *log.Logger
}

// NewShutdownManager creates a new shutdown manager
func NewShutdownManager(logger *log.Logger) *ShutdownManager {
	return &ShutdownManager{
		signals:    make(chan os.Signal, 1),
		shutdownCh: make(chan struct{}),
		logger:     logger,
	}
}

// Listen handles SIGINT and SIGTERM until stop is called
func (sm *ShutdownManager) Listen() (stop func()) {
	signal.Notify(sm.signals, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case sig := <-sm.signals:
				sm.handle(sig)
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sm.signals)
		close(done)
	}
}

func (sm *ShutdownManager) handle(sig os.Signal) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.logger.Printf("Received signal: %v", sig)
	if sm.cancelTurn != nil && sm.interrupts == 0 {
		sm.interrupts++
		sm.logger.Println("Cancelling in-flight turn")
		sm.cancelTurn()
		return
	}

	if sm.cancelTurn != nil {
		sm.cancelTurn()
	}
	sm.closeOnce.Do(func() { close(sm.shutdownCh) })
}

// BeginTurn returns a context that the next interrupt cancels. done must be
// called when the turn ends.
func (sm *ShutdownManager) BeginTurn(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	sm.mu.Lock()
	sm.cancelTurn = cancel
	sm.interrupts = 0
	sm.mu.Unlock()

	return ctx, func() {
		sm.mu.Lock()
		sm.cancelTurn = nil
		sm.mu.Unlock()
		cancel()
	}
}

// Done is closed once shutdown has been requested
func (sm *ShutdownManager) Done() <-chan struct{} {
	return sm.shutdownCh
}

// IsShuttingDown returns true if shutdown has been initiated
func (sm *ShutdownManager) IsShuttingDown() bool {
	select {
	case <-sm.shutdownCh:
		return true
	default:
		return false
	}
}
