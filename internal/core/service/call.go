package service

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Wyydra/peercall/internal/core/domain"
	"github.com/Wyydra/peercall/internal/core/port"
	"github.com/rs/zerolog/log"
)

// CallService is the call session controller. All of its state is owned by
// the goroutine running Run; operations, library callbacks and timers are
// queued onto it.
type CallService struct {
	factory port.SignalingFactory
	devices port.MediaDevices
	gateway port.StatusGateway
	logs    *DebugLog
	clock   port.Clock
	opts    Options

	ctx    context.Context
	cancel context.CancelFunc

	queue     *actionQueue
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// owned by the loop
	closed    bool
	client    port.SignalingClient
	clientGen uint64
	peerID    domain.PeerID
	connected bool

	state      domain.CallState
	locked     bool
	call       port.MediaCall
	callGen    uint64
	remotePeer domain.PeerID
	remote     domain.RemoteStream
	ice        domain.ICEState
	kind       domain.ConnectionKind
	pending    port.MediaCall

	local     port.LocalStream
	localKind domain.StreamKind

	connectingSeconds int
	warning           string
	lastError         string

	settle   port.Timer
	watchdog port.Timer
	deferred port.Timer
}

func NewCallService(factory port.SignalingFactory, devices port.MediaDevices, gateway port.StatusGateway, logs *DebugLog, clock port.Clock, opts Options) *CallService {
	ctx, cancel := context.WithCancel(context.Background())
	return &CallService{
		factory:   factory,
		devices:   devices,
		gateway:   gateway,
		logs:      logs,
		clock:     clock,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		queue:     newActionQueue(),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		state:     domain.CallIdle,
		ice:       domain.ICENew,
		kind:      domain.ConnectionUnknown,
		localKind: domain.StreamNone,
	}
}

// Run processes queued actions until Close. It must be running for any
// other method to return.
func (s *CallService) Run() {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		case <-s.queue.ready:
			for _, fn := range s.queue.drain() {
				fn()
			}
		}
	}
}

// Close tears the component down: timers, calls, signaling and local media.
func (s *CallService) Close() error {
	s.closeOnce.Do(func() {
		_ = s.do(context.Background(), func() error {
			s.shutdown()
			return nil
		})
		s.cancel()
		close(s.quit)
	})
	<-s.done
	return nil
}

func (s *CallService) Connect(ctx context.Context) error {
	return s.do(ctx, func() error {
		if s.closed {
			return domain.ErrClosed
		}
		return s.connect()
	})
}

func (s *CallService) Reconnect(ctx context.Context) error {
	return s.do(ctx, func() error {
		if s.closed {
			return domain.ErrClosed
		}
		s.reset()
		s.record(domain.LevelInfo, "Reconnecting to signaling server")
		return s.connect()
	})
}

func (s *CallService) StartCall(ctx context.Context, target domain.PeerID) error {
	return s.do(ctx, func() error {
		if s.closed {
			return domain.ErrClosed
		}
		return s.startCall(target)
	})
}

func (s *CallService) AnswerIncomingCall(ctx context.Context, call port.MediaCall) error {
	return s.do(ctx, func() error {
		if s.closed {
			_ = call.Close()
			return domain.ErrClosed
		}
		return s.answer(call)
	})
}

func (s *CallService) AnswerPending(ctx context.Context) error {
	return s.do(ctx, func() error {
		if s.closed {
			return domain.ErrClosed
		}
		if s.pending == nil {
			return domain.ErrNoPendingCall
		}
		call := s.pending
		s.pending = nil
		return s.answer(call)
	})
}

func (s *CallService) RejectPending(ctx context.Context) error {
	return s.do(ctx, func() error {
		if s.closed {
			return domain.ErrClosed
		}
		if s.pending == nil {
			return domain.ErrNoPendingCall
		}
		s.recordf(domain.LevelInfo, "Rejected incoming call from %s", s.pending.Peer())
		s.closePending()
		s.publish()
		return nil
	})
}

func (s *CallService) EndCall(ctx context.Context) error {
	return s.do(ctx, func() error {
		if s.closed {
			return domain.ErrClosed
		}
		s.endCall("Call ended")
		return nil
	})
}

func (s *CallService) Status(ctx context.Context) (domain.Status, error) {
	var st domain.Status
	err := s.do(ctx, func() error {
		st = s.snapshot()
		return nil
	})
	return st, err
}

func (s *CallService) Logs(ctx context.Context, limit int) ([]domain.LogEntry, error) {
	return s.logs.Entries(ctx, limit)
}

func (s *CallService) post(fn func()) bool {
	select {
	case <-s.quit:
		return false
	default:
	}
	s.queue.push(fn)
	return true
}

// do runs fn on the loop and waits for its result. An operation whose ctx
// is done before the loop picks it up never runs, so a returned ctx error
// always means no effect.
func (s *CallService) do(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	const (
		queued int32 = iota
		running
		abandoned
	)
	var state atomic.Int32
	errc := make(chan error, 1)
	posted := s.post(func() {
		if !state.CompareAndSwap(queued, running) {
			return
		}
		if err := ctx.Err(); err != nil {
			errc <- err
			return
		}
		errc <- fn()
	})
	if !posted {
		return domain.ErrClosed
	}

	select {
	case err := <-errc:
		return err
	case <-s.done:
		select {
		case err := <-errc:
			return err
		default:
			return domain.ErrClosed
		}
	case <-ctx.Done():
		if state.CompareAndSwap(queued, abandoned) {
			return ctx.Err()
		}
		// already running; its result is the truth
		return <-errc
	}
}

func (s *CallService) snapshot() domain.Status {
	st := domain.Status{
		PeerID:             s.peerID,
		SignalingConnected: s.connected,
		CallState:          s.state,
		Locked:             s.locked,
		ICEState:           s.ice,
		ConnectionKind:     s.kind,
		RemotePeer:         s.remotePeer,
		Remote:             s.remote,
		LocalKind:          s.localKind,
		ConnectingSeconds:  s.connectingSeconds,
		Warning:            s.warning,
		LastError:          s.lastError,
	}
	if s.local != nil {
		st.Local = s.local.Counts()
	}
	if s.pending != nil {
		st.PendingCaller = s.pending.Peer()
	}
	return st.Derive()
}

func (s *CallService) publish() {
	if err := s.gateway.PublishStatus(s.ctx, s.snapshot()); err != nil {
		log.Debug().Err(err).Msg("Failed to publish status")
	}
}

func (s *CallService) record(level domain.LogLevel, msg string) {
	if err := s.logs.Record(s.ctx, level, msg); err != nil {
		log.Debug().Err(err).Msg("Failed to record debug log entry")
	}
}

func (s *CallService) recordf(level domain.LogLevel, format string, args ...any) {
	s.logs.Recordf(s.ctx, level, format, args...)
}

type actionQueue struct {
	mu    sync.Mutex
	items []func()
	ready chan struct{}
}

func newActionQueue() *actionQueue {
	return &actionQueue{ready: make(chan struct{}, 1)}
}

// push never blocks, so callbacks fired from inside the loop cannot deadlock it.
func (q *actionQueue) push(fn func()) {
	q.mu.Lock()
	q.items = append(q.items, fn)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *actionQueue) drain() []func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}
