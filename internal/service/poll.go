package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"storefront/internal/domain"
	"storefront/internal/metrics"
	"storefront/pkg/payment"

	"go.uber.org/zap"
)

type PollState string

const (
	PollIdle       PollState = "idle"
	PollAwaitingQR PollState = "awaiting-qr"
	PollPolling    PollState = "polling"
	PollSuccess    PollState = "success"
	PollClosed     PollState = "closed"
	PollCancelled  PollState = "cancelled"
)

// Finished reports whether no further ticks will happen in state s.
func (s PollState) Finished() bool {
	return s == PollSuccess || s == PollClosed || s == PollCancelled
}

type CancelReason string

const (
	CancelUser            CancelReason = "user"
	CancelNavigation      CancelReason = "navigation"
	CancelHidden          CancelReason = "hidden"
	CancelTeardown        CancelReason = "teardown"
	CancelTimeout         CancelReason = "timeout"
	CancelPrecreateFailed CancelReason = "precreate_failed"
)

// ParseCancelReason maps client supplied text to a reason, defaulting to user.
func ParseCancelReason(s string) CancelReason {
	switch r := CancelReason(s); r {
	case CancelNavigation, CancelHidden, CancelTeardown:
		return r
	}
	return CancelUser
}

var ErrPollerClosed = errors.New("poll coordinator is shut down")

// Querier asks the gateway for a trade's current status.
type Querier interface {
	Query(ctx context.Context, outTradeNo string) (*payment.QueryResponse, error)
}

// Observer consumes status observations.
type Observer interface {
	Observe(ctx context.Context, obs Observation) (Outcome, error)
}

type PollOptions struct {
	Interval    time.Duration
	TickTimeout time.Duration
	MaxDuration time.Duration
	// KeepFinished bounds how many finished sessions State still remembers.
	KeepFinished int
}

// PollResult is the final record of a session.
type PollResult struct {
	OutTradeNo string
	State      PollState
	Reason     CancelReason
	Ticks      int
	FinishedAt time.Time
}

type pollSession struct {
	outTradeNo string
	state      PollState
	reason     CancelReason
	ticks      int
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// PollCoordinator runs at most one query loop per order. Each loop owns a
// single timer that is re-armed only after the previous tick has returned.
type PollCoordinator struct {
	querier  Querier
	observer Observer
	opts     PollOptions
	log      *zap.Logger

	mu       sync.Mutex
	sessions map[string]*pollSession
	finished map[string]PollResult
	order    []string
	closed   bool
	wg       sync.WaitGroup
}

func NewPollCoordinator(q Querier, o Observer, opts PollOptions, log *zap.Logger) *PollCoordinator {
	if opts.Interval <= 0 {
		opts.Interval = 4 * time.Second
	}
	if opts.TickTimeout <= 0 {
		opts.TickTimeout = 10 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 15 * time.Minute
	}
	if opts.KeepFinished <= 0 {
		opts.KeepFinished = 1024
	}
	return &PollCoordinator{
		querier:  q,
		observer: o,
		opts:     opts,
		log:      log.Named("poll"),
		sessions: make(map[string]*pollSession),
		finished: make(map[string]PollResult),
	}
}

// Begin registers a session waiting for its QR code. It returns false when
// the order already has an active session.
func (c *PollCoordinator) Begin(outTradeNo string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, ErrPollerClosed
	}
	if _, ok := c.sessions[outTradeNo]; ok {
		return false, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.sessions[outTradeNo] = &pollSession{
		outTradeNo: outTradeNo,
		state:      PollAwaitingQR,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	return true, nil
}

// Start moves a session into polling and launches its loop. Calling Start
// on a polling session is a no-op.
func (c *PollCoordinator) Start(outTradeNo string) error {
	if _, err := c.Begin(outTradeNo); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[outTradeNo]
	if !ok || s.state != PollAwaitingQR {
		return nil
	}
	s.state = PollPolling
	c.wg.Add(1)
	go c.run(s)
	c.log.Debug("polling started", zap.String("out_trade_no", outTradeNo))
	return nil
}

// Cancel stops the order's session. It reports whether an active session
// was found.
func (c *PollCoordinator) Cancel(outTradeNo string, reason CancelReason) bool {
	c.mu.Lock()
	s, ok := c.sessions[outTradeNo]
	if !ok {
		c.mu.Unlock()
		return false
	}
	if s.reason == "" {
		s.reason = reason
	}
	if s.state == PollAwaitingQR {
		c.finishLocked(s, PollCancelled)
		c.mu.Unlock()
		return true
	}
	c.mu.Unlock()
	s.cancel()
	return true
}

// Abandon cancels the order's session only while it is still awaiting its
// QR code. A polling session is left alone.
func (c *PollCoordinator) Abandon(outTradeNo string, reason CancelReason) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[outTradeNo]
	if !ok || s.state != PollAwaitingQR {
		return false
	}
	if s.reason == "" {
		s.reason = reason
	}
	c.finishLocked(s, PollCancelled)
	return true
}

// State returns the current or last known state of the order's session.
func (c *PollCoordinator) State(outTradeNo string) (PollState, CancelReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[outTradeNo]; ok {
		return s.state, ""
	}
	if r, ok := c.finished[outTradeNo]; ok {
		return r.State, r.Reason
	}
	return PollIdle, ""
}

// Result returns the finished record for the order, if still kept.
func (c *PollCoordinator) Result(outTradeNo string) (PollResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.finished[outTradeNo]
	return r, ok
}

// Done is closed when the order's session ends. Orders without an active
// session get an already closed channel.
func (c *PollCoordinator) Done(outTradeNo string) <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[outTradeNo]; ok {
		return s.done
	}
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Active returns the number of live sessions.
func (c *PollCoordinator) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// Shutdown cancels every session with reason teardown and waits for the
// loops to exit or ctx to expire.
func (c *PollCoordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.Cancel(id, CancelTeardown)
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *PollCoordinator) run(s *pollSession) {
	defer c.wg.Done()

	deadline := time.NewTimer(c.opts.MaxDuration)
	defer deadline.Stop()
	timer := time.NewTimer(c.opts.Interval)
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			c.finish(s, PollCancelled)
			return
		case <-deadline.C:
			c.mu.Lock()
			if s.reason == "" {
				s.reason = CancelTimeout
			}
			c.mu.Unlock()
			c.finish(s, PollCancelled)
			return
		case <-timer.C:
			if state, done := c.tick(s); done {
				c.finish(s, state)
				return
			}
			timer.Reset(c.opts.Interval)
		}
	}
}

// tick performs one query and feeds the answer to the observer. Failures
// are logged and leave the loop running.
func (c *PollCoordinator) tick(s *pollSession) (PollState, bool) {
	c.mu.Lock()
	s.ticks++
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, c.opts.TickTimeout)
	defer cancel()

	resp, err := c.querier.Query(ctx, s.outTradeNo)
	if err != nil {
		if s.ctx.Err() == nil {
			c.log.Warn("poll query failed", zap.String("out_trade_no", s.outTradeNo), zap.Error(err))
		}
		return "", false
	}

	target, terminal := TargetStatus(resp.Status)
	// The write must complete even if the session is cancelled mid-flight.
	_, err = c.observer.Observe(context.WithoutCancel(ctx), Observation{
		OutTradeNo: s.outTradeNo,
		TradeNo:    resp.TradeNo,
		Status:     resp.Status,
		Raw:        resp.Raw,
		Source:     domain.SourcePoll,
	})
	if err != nil {
		c.log.Warn("poll observation failed", zap.String("out_trade_no", s.outTradeNo), zap.Error(err))
		return "", false
	}
	if !terminal {
		return "", false
	}
	if target == domain.OrderStatusSuccess {
		return PollSuccess, true
	}
	return PollClosed, true
}

func (c *PollCoordinator) finish(s *pollSession, state PollState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finishLocked(s, state)
}

func (c *PollCoordinator) finishLocked(s *pollSession, state PollState) {
	if cur, ok := c.sessions[s.outTradeNo]; !ok || cur != s {
		return
	}
	s.state = state
	s.cancel()
	delete(c.sessions, s.outTradeNo)
	close(s.done)

	reason := s.reason
	if state != PollCancelled {
		reason = ""
	}
	if _, seen := c.finished[s.outTradeNo]; !seen {
		c.order = append(c.order, s.outTradeNo)
	}
	c.finished[s.outTradeNo] = PollResult{
		OutTradeNo: s.outTradeNo,
		State:      state,
		Reason:     reason,
		Ticks:      s.ticks,
		FinishedAt: time.Now(),
	}
	for len(c.order) > c.opts.KeepFinished {
		delete(c.finished, c.order[0])
		c.order = c.order[1:]
	}
	metrics.PollSessions.WithLabelValues(string(state)).Inc()
	c.log.Info("poll session finished",
		zap.String("out_trade_no", s.outTradeNo),
		zap.String("state", string(state)),
		zap.String("reason", string(reason)),
		zap.Int("ticks", s.ticks),
	)
}
