package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/gwillem/armseq/pkg/command"
	"github.com/gwillem/armseq/pkg/robot"
)

// NATS publishes frames to a command subject and follows joint state on a state
// subject.
type NATS struct {
	nc       *nats.Conn
	subject  string
	ingester *StateIngester
	logger   *zap.Logger
}

// DialNATS connects to the broker at url. Frames published while the
// connection is down fail instead of being buffered, so stale setpoints are
// never replayed after a reconnect.
func DialNATS(url string, cfg robot.TransportConfig, logger *zap.Logger) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name(cfg.ClientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(250*time.Millisecond),
		nats.ReconnectBufSize(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	logger.Info("Connected to NATS",
		zap.String("url", nc.ConnectedUrl()),
		zap.String("command_subject", cfg.CommandSubject),
		zap.String("state_subject", cfg.StateSubject),
	)

	ingester, err := NewStateIngester(nc, cfg.StateSubject, cfg.StateTimeout, logger)
	if err != nil {
		nc.Close()
		return nil, err
	}

	return &NATS{
		nc:       nc,
		subject:  cfg.CommandSubject,
		ingester: ingester,
		logger:   logger,
	}, nil
}

// Send publishes one frame.
func (n *NATS) Send(_ context.Context, f *command.Frame) error {
	if err := n.nc.Publish(n.subject, command.MarshalFrame(f)); err != nil {
		return fmt.Errorf("publish %s: %w", n.subject, err)
	}
	return nil
}

// Pose returns the latest joint state.
func (n *NATS) Pose(ctx context.Context) (robot.JointVector, error) {
	return n.ingester.Pose(ctx)
}

// Close flushes pending frames and closes the connection.
func (n *NATS) Close() error {
	n.ingester.Stop()
	err := n.nc.FlushTimeout(time.Second)
	n.nc.Close()
	if err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// StateIngester keeps the most recent joint state snapshot published on a
// subject.
type StateIngester struct {
	sub     *nats.Subscription
	timeout time.Duration
	logger  *zap.Logger

	ready     chan struct{}
	readyOnce sync.Once

	mu     sync.RWMutex
	pose   robot.JointVector
	tick   uint64
	count  uint64
	errors uint64
}

// NewStateIngester subscribes to subject. Pose waits at most timeout for the
// first snapshot.
func NewStateIngester(nc *nats.Conn, subject string, timeout time.Duration, logger *zap.Logger) (*StateIngester, error) {
	s := &StateIngester{
		timeout: timeout,
		logger:  logger,
		ready:   make(chan struct{}),
	}
	sub, err := nc.Subscribe(subject, s.handle)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	s.sub = sub
	return s, nil
}

func (s *StateIngester) handle(msg *nats.Msg) {
	st, err := command.UnmarshalState(msg.Data)
	var pose robot.JointVector
	if err == nil {
		pose, err = st.Joints()
	}
	if err != nil {
		s.mu.Lock()
		s.errors++
		n := s.errors
		s.mu.Unlock()
		if n == 1 {
			s.logger.Warn("Dropping malformed joint state", zap.Error(err))
		}
		return
	}

	s.mu.Lock()
	s.pose = pose
	s.tick = st.Tick
	s.count++
	s.mu.Unlock()

	s.readyOnce.Do(func() { close(s.ready) })
}

// Latest returns the last snapshot and whether one has arrived.
func (s *StateIngester) Latest() (robot.JointVector, uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pose, s.tick, s.count > 0
}

// Pose waits for the first snapshot, then returns the latest one.
func (s *StateIngester) Pose(ctx context.Context) (robot.JointVector, error) {
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case <-s.ready:
		pose, _, _ := s.Latest()
		return pose, nil
	case <-ctx.Done():
		return robot.JointVector{}, ctx.Err()
	case <-timer.C:
		return robot.JointVector{}, fmt.Errorf("%w on %s within %s", ErrNoState, s.sub.Subject, s.timeout)
	}
}

// Dropped returns the number of snapshots rejected as malformed or incomplete.
func (s *StateIngester) Dropped() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errors
}

// Stop unsubscribes.
func (s *StateIngester) Stop() {
	if n := s.Dropped(); n > 0 {
		s.logger.Warn("Dropped joint states", zap.Uint64("count", n))
	}
	if err := s.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		s.logger.Debug("Unsubscribe failed", zap.Error(err))
	}
}
