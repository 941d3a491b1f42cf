package scan

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Session is the lifetime of one scan. Work started for a session checks
// it before mutating shared state so a superseded scan cannot leak results.
type Session struct {
	id       string
	scanning atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc

	probeCtx    context.Context
	probeCancel context.CancelFunc

	// work tracks listener consumers and resolves started for the session.
	work sync.WaitGroup

	done     chan struct{}
	doneOnce sync.Once
}

func newSession(parent context.Context) *Session {
	ctx, cancel := context.WithCancel(parent)
	probeCtx, probeCancel := context.WithCancel(ctx)
	s := &Session{
		id:          uuid.NewString(),
		ctx:         ctx,
		cancel:      cancel,
		probeCtx:    probeCtx,
		probeCancel: probeCancel,
		done:        make(chan struct{}),
	}
	s.scanning.Store(true)
	return s
}

// ID returns the unique session identifier.
func (s *Session) ID() string { return s.id }

// Scanning reports whether the session is still inside its scan window.
func (s *Session) Scanning() bool { return s.scanning.Load() }

// Live reports whether the session has not been torn down. A session that
// stopped scanning is still live during its grace period.
func (s *Session) Live() bool { return s.ctx.Err() == nil }

// finish flips the scanning flag. It returns true only for the call that
// performed the transition.
func (s *Session) finish() bool {
	return s.scanning.CompareAndSwap(true, false)
}

func (s *Session) cancelProbes() { s.probeCancel() }

func (s *Session) teardown() {
	s.probeCancel()
	s.cancel()
}

func (s *Session) markDone() {
	s.doneOnce.Do(func() { close(s.done) })
}
