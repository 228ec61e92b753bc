package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Wyydra/peercall/internal/core/domain"
	"github.com/Wyydra/peercall/internal/core/port"
	"github.com/stretchr/testify/require"
)

// fakeClock only moves when Advance is called.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) port.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.fn()
	}
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type fakeGateway struct {
	mu       sync.Mutex
	statuses []domain.Status
	entries  []domain.LogEntry
}

func (g *fakeGateway) PublishStatus(ctx context.Context, status domain.Status) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses = append(g.statuses, status)
	return nil
}

func (g *fakeGateway) PublishLog(ctx context.Context, entry domain.LogEntry) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries = append(g.entries, entry)
	return nil
}

func (g *fakeGateway) hasLog(level domain.LogLevel) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, e := range g.entries {
		if e.Level == level {
			return true
		}
	}
	return false
}

type fakeLogRepo struct {
	mu      sync.Mutex
	entries []domain.LogEntry
}

func (r *fakeLogRepo) Save(ctx context.Context, entry domain.LogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *fakeLogRepo) List(ctx context.Context, limit int) ([]domain.LogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 || limit > len(r.entries) {
		limit = len(r.entries)
	}
	out := make([]domain.LogEntry, limit)
	copy(out, r.entries[len(r.entries)-limit:])
	return out, nil
}

type fakeStream struct {
	mu     sync.Mutex
	id     string
	counts domain.TrackCounts
	stops  int
}

func (s *fakeStream) ID() string                 { return s.id }
func (s *fakeStream) Counts() domain.TrackCounts { return s.counts }

func (s *fakeStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	return nil
}

func (s *fakeStream) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

type fakeDevices struct {
	mu        sync.Mutex
	failVideo bool
	failAudio bool
	failEmpty bool
	requests  []domain.MediaConstraints
	streams   []*fakeStream
}

func (d *fakeDevices) GetUserMedia(ctx context.Context, c domain.MediaConstraints) (port.LocalStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, c)
	if c.Video && d.failVideo {
		return nil, errors.New("camera not found")
	}
	if c.Audio && d.failAudio {
		return nil, errors.New("microphone not found")
	}
	counts := domain.TrackCounts{Audio: 1}
	if c.Video {
		counts.Video = 1
	}
	s := &fakeStream{id: "local", counts: counts}
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *fakeDevices) EmptyStream() (port.LocalStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failEmpty {
		return nil, errors.New("no stream")
	}
	s := &fakeStream{id: "empty"}
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *fakeDevices) allStreams() []*fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeStream(nil), d.streams...)
}

type fakeCall struct {
	mu       sync.Mutex
	id       string
	peer     domain.PeerID
	handlers port.CallHandlers
	kind     domain.ConnectionKind
	answers  []port.LocalStream
	closes   int
}

func newFakeCall(peer domain.PeerID) *fakeCall {
	return &fakeCall{id: "mc_" + string(peer), peer: peer, kind: domain.ConnectionDirect}
}

func (c *fakeCall) ID() string          { return c.id }
func (c *fakeCall) Peer() domain.PeerID { return c.peer }

func (c *fakeCall) SetHandlers(h port.CallHandlers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = h
}

func (c *fakeCall) Answer(ctx context.Context, stream port.LocalStream) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answers = append(c.answers, stream)
	return nil
}

func (c *fakeCall) ConnectionKind(ctx context.Context) (domain.ConnectionKind, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kind, nil
}

// Close fires OnClose synchronously, the way a real library may.
func (c *fakeCall) Close() error {
	c.mu.Lock()
	c.closes++
	h := c.handlers
	c.mu.Unlock()
	if h.OnClose != nil {
		h.OnClose()
	}
	return nil
}

func (c *fakeCall) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func (c *fakeCall) answerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.answers)
}

func (c *fakeCall) current() port.CallHandlers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers
}

func (c *fakeCall) emitStream(video, audio int) {
	if h := c.current(); h.OnStream != nil {
		h.OnStream(domain.NewRemoteStream(domain.TrackCounts{Video: video, Audio: audio}))
	}
}

func (c *fakeCall) emitICE(state domain.ICEState) {
	if h := c.current(); h.OnICEStateChange != nil {
		h.OnICEStateChange(state)
	}
}

func (c *fakeCall) emitError(err error) {
	if h := c.current(); h.OnError != nil {
		h.OnError(err)
	}
}

func (c *fakeCall) emitRemoteClose() {
	if h := c.current(); h.OnClose != nil {
		h.OnClose()
	}
}

type fakeSignaling struct {
	mu        sync.Mutex
	id        domain.PeerID
	handlers  port.SignalingHandlers
	openErr   error
	callErr   error
	calls     []*fakeCall
	destroyed int
}

func (f *fakeSignaling) ID() domain.PeerID { return f.id }

func (f *fakeSignaling) Open(ctx context.Context) error {
	return f.openErr
}

func (f *fakeSignaling) Call(ctx context.Context, target domain.PeerID, stream port.LocalStream) (port.MediaCall, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.callErr != nil {
		return nil, f.callErr
	}
	c := newFakeCall(target)
	f.calls = append(f.calls, c)
	return c, nil
}

func (f *fakeSignaling) Destroy() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed++
	return nil
}

func (f *fakeSignaling) placed() []*fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeCall(nil), f.calls...)
}

func (f *fakeSignaling) destroyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.destroyed
}

func (f *fakeSignaling) open()                           { f.handlers.OnOpen(f.id) }
func (f *fakeSignaling) incoming(c *fakeCall)            { f.handlers.OnCall(c) }
func (f *fakeSignaling) fail(err *domain.SignalingError) { f.handlers.OnError(err) }

func testTimings() Timings {
	return Timings{
		StartSettleDelay:     100 * time.Millisecond,
		AnswerSettleDelay:    200 * time.Millisecond,
		LockCooldown:         500 * time.Millisecond,
		FailureTeardownDelay: time.Second,
		ErrorRecoveryDelay:   300 * time.Millisecond,
		WatchdogWarnAfter:    3,
		WatchdogFailAfter:    5,
	}
}

type harness struct {
	t       *testing.T
	svc     *CallService
	clock   *fakeClock
	gateway *fakeGateway
	devices *fakeDevices

	mu        sync.Mutex
	clients   []*fakeSignaling
	onFactory func()
	callErr   error
}

const selfID domain.PeerID = "self"

func newHarness(t *testing.T, configure ...func(*Options)) *harness {
	t.Helper()
	opts := DefaultOptions()
	opts.Timings = testTimings()
	for _, fn := range configure {
		fn(&opts)
	}

	h := &harness{
		t:       t,
		clock:   newFakeClock(),
		gateway: &fakeGateway{},
		devices: &fakeDevices{},
	}
	factory := func(hd port.SignalingHandlers) (port.SignalingClient, error) {
		h.mu.Lock()
		hook := h.onFactory
		c := &fakeSignaling{id: selfID, handlers: hd, callErr: h.callErr}
		h.clients = append(h.clients, c)
		h.mu.Unlock()
		if hook != nil {
			hook()
		}
		return c, nil
	}
	logs := NewDebugLog(&fakeLogRepo{}, h.gateway, h.clock)
	h.svc = NewCallService(factory, h.devices, h.gateway, logs, h.clock, opts)
	go h.svc.Run()
	t.Cleanup(func() { _ = h.svc.Close() })
	return h
}

func (h *harness) client() *fakeSignaling {
	h.mu.Lock()
	defer h.mu.Unlock()
	require.NotEmpty(h.t, h.clients, "no signaling client created")
	return h.clients[len(h.clients)-1]
}

func (h *harness) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *harness) connect() {
	h.t.Helper()
	require.NoError(h.t, h.svc.Connect(context.Background()))
	h.client().open()
	require.True(h.t, h.status().SignalingConnected)
}

func (h *harness) status() domain.Status {
	h.t.Helper()
	st, err := h.svc.Status(context.Background())
	require.NoError(h.t, err)
	return st
}

// advance moves the clock in small steps, letting the loop run between them
// so chained timers fire at their due time.
func (h *harness) advance(d time.Duration) {
	h.t.Helper()
	const step = 50 * time.Millisecond
	for elapsed := time.Duration(0); elapsed < d; elapsed += step {
		h.clock.Advance(step)
		h.status()
	}
}

// connectedCall dials target and delivers a remote stream.
func (h *harness) connectedCall(target domain.PeerID) *fakeCall {
	h.t.Helper()
	require.NoError(h.t, h.svc.StartCall(context.Background(), target))
	h.advance(testTimings().StartSettleDelay)
	calls := h.client().placed()
	require.NotEmpty(h.t, calls)
	call := calls[len(calls)-1]
	call.emitStream(1, 1)
	require.Equal(h.t, domain.CallConnected, h.status().CallState)
	return call
}
