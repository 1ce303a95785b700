package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/betting-loadtest/internal/protocol"
)

// Conn is one duplex message stream.
type Conn interface {
	Send(ctx context.Context, payload []byte) error
	Read(ctx context.Context) ([]byte, error)
	Ping(ctx context.Context) error
	Close() error
}

type DialFunc func(ctx context.Context, url string) (Conn, error)

// Completer records finished sessions.
type Completer interface {
	MarkDone(sessionID string)
}

type Endpoints struct {
	Auth string
	Game string
}

type Options struct {
	Endpoints    Endpoints
	Dial         DialFunc
	Completer    Completer
	Logger       *zap.Logger
	PingInterval time.Duration
	// ReadTimeout bounds the wait for each inbound frame. Zero waits until
	// the run context ends.
	ReadTimeout time.Duration
}

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeAborted   Outcome = "aborted"
)

type Result struct {
	AccountID string
	Outcome   Outcome
	// Phase is the final phase, or the phase the session was in when it
	// aborted.
	Phase     Phase
	State     State
	Err       error
	StartedAt time.Time
	EndedAt   time.Time
}

// Session runs a Machine against live connections.
type Session struct {
	m     *Machine
	opts  Options
	log   *zap.Logger
	conns map[Channel]Conn

	hbCancel context.CancelFunc
	hbDone   chan struct{}
}

func New(cfg Config, picker WagerPicker, opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		m:     NewMachine(cfg, picker),
		opts:  opts,
		log:   log.With(zap.String("account", cfg.AccountID)),
		conns: make(map[Channel]Conn, 2),
	}
}

func (s *Session) State() State { return s.m.State() }

// Run blocks until the session completes or aborts. An aborted session
// returns an *AbortError.
func (s *Session) Run(ctx context.Context) (Result, error) {
	res := Result{AccountID: s.m.State().AccountID, StartedAt: time.Now()}

	err := s.run(ctx)
	if err == nil && s.m.State().Phase != PhaseCompleted {
		err = ErrSessionClosed
	}
	if cerr := s.teardown(); cerr != nil {
		s.log.Debug("teardown", zap.Error(cerr))
	}

	res.EndedAt = time.Now()
	res.State = s.m.State()
	if res.State.Phase == PhaseCompleted {
		err = nil
	}
	if err == nil {
		res.Outcome, res.Phase = OutcomeCompleted, PhaseCompleted
		s.log.Info("session completed",
			zap.Int("payouts", res.State.PayoutsObserved),
			zap.Int("wagers", res.State.WagersSent),
			zap.Duration("elapsed", res.EndedAt.Sub(res.StartedAt)))
		return res, nil
	}

	var abortErr *AbortError
	if !errors.As(err, &abortErr) {
		abortErr = s.m.Abort(err)
	}
	res.Outcome, res.Phase, res.Err = OutcomeAborted, abortErr.Phase, abortErr
	res.State = s.m.State()
	s.log.Warn("session aborted", zap.String("phase", string(abortErr.Phase)), zap.Error(abortErr.Err))
	return res, abortErr
}

func (s *Session) run(ctx context.Context) error {
	effects, err := s.m.Start()
	if err != nil {
		return err
	}
	if err := s.apply(ctx, effects); err != nil {
		return err
	}
	if err := s.pump(ctx, ChannelAuth); err != nil {
		return err
	}

	effects, err = s.m.ConnectGame()
	if err != nil {
		return err
	}
	if err := s.apply(ctx, effects); err != nil {
		return err
	}
	return s.pump(ctx, ChannelGame)
}

// pump feeds frames from ch into the machine until the machine closes ch or
// the session ends.
func (s *Session) pump(ctx context.Context, ch Channel) error {
	for {
		conn := s.conns[ch]
		if conn == nil || s.m.State().Phase.Terminal() {
			return nil
		}

		raw, err := s.read(ctx, conn)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("read %s: %w", ch, err)
		}

		before := s.m.State()
		effects, herr := s.m.Handle(ch, raw)

		var abortErr *AbortError
		if errors.As(herr, &abortErr) {
			_ = s.apply(ctx, effects)
			return abortErr
		}
		s.logHandled(ch, herr, raw)
		s.logProgress(before)

		if err := s.apply(ctx, effects); err != nil {
			return err
		}
	}
}

func (s *Session) read(ctx context.Context, conn Conn) ([]byte, error) {
	if s.opts.ReadTimeout <= 0 {
		return conn.Read(ctx)
	}
	rctx, cancel := context.WithTimeout(ctx, s.opts.ReadTimeout)
	defer cancel()
	return conn.Read(rctx)
}

func (s *Session) apply(ctx context.Context, effects []Effect) error {
	for _, e := range effects {
		switch e.Type {
		case EffOpen:
			conn, err := s.opts.Dial(ctx, s.endpoint(e.Channel))
			if err != nil {
				return fmt.Errorf("open %s: %w", e.Channel, err)
			}
			s.conns[e.Channel] = conn
			s.log.Debug("connected", zap.String("channel", string(e.Channel)))

		case EffSend:
			if err := s.send(ctx, e.Channel, e.Request); err != nil {
				return err
			}

		case EffClose:
			if conn := s.conns[e.Channel]; conn != nil {
				delete(s.conns, e.Channel)
				if err := conn.Close(); err != nil {
					s.log.Debug("close", zap.String("channel", string(e.Channel)), zap.Error(err))
				}
			}

		case EffStartHeartbeat:
			s.startHeartbeat(ctx, s.conns[e.Channel])

		case EffStopHeartbeat:
			s.stopHeartbeat()

		case EffComplete:
			if s.opts.Completer != nil {
				s.opts.Completer.MarkDone(s.m.State().AccountID)
			}
		}
	}
	return nil
}

func (s *Session) send(ctx context.Context, ch Channel, req protocol.Request) error {
	conn := s.conns[ch]
	if conn == nil {
		return fmt.Errorf("send %s on %s: %w", req.Op, ch, ErrSessionClosed)
	}
	payload, err := req.Encode()
	if err != nil {
		return fmt.Errorf("encode %s: %w", req.Op, err)
	}
	if err := conn.Send(ctx, payload); err != nil {
		return fmt.Errorf("send %s: %w", req.Op, err)
	}
	s.log.Debug("sent", zap.String("op", req.Op.String()), zap.ByteString("payload", payload))
	return nil
}

func (s *Session) endpoint(ch Channel) string {
	if ch == ChannelAuth {
		return s.opts.Endpoints.Auth
	}
	return s.opts.Endpoints.Game
}

func (s *Session) startHeartbeat(ctx context.Context, conn Conn) {
	if conn == nil || s.opts.PingInterval <= 0 || s.hbCancel != nil {
		return
	}
	hbCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.hbCancel, s.hbDone = cancel, done

	interval := s.opts.PingInterval
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				pctx, pcancel := context.WithTimeout(hbCtx, interval)
				err := conn.Ping(pctx)
				pcancel()
				if err != nil && hbCtx.Err() == nil {
					s.log.Debug("ping failed", zap.Error(err))
					return
				}
			}
		}
	}()
}

func (s *Session) stopHeartbeat() {
	if s.hbCancel == nil {
		return
	}
	s.hbCancel()
	<-s.hbDone
	s.hbCancel, s.hbDone = nil, nil
}

func (s *Session) teardown() error {
	s.stopHeartbeat()
	var err error
	for ch, conn := range s.conns {
		delete(s.conns, ch)
		err = multierr.Append(err, conn.Close())
	}
	return err
}

func (s *Session) logHandled(ch Channel, err error, raw []byte) {
	switch {
	case err == nil:
	case errors.Is(err, protocol.ErrDecode):
		s.log.Warn("decode error", zap.String("channel", string(ch)), zap.Error(err), zap.ByteString("payload", raw))
	case errors.Is(err, ErrProtocolViolation):
		s.log.Debug("unexpected message", zap.Error(err))
	default:
		s.log.Debug("discarded", zap.Error(err))
	}
}

func (s *Session) logProgress(before State) {
	after := s.m.State()
	if after.Phase != before.Phase {
		s.log.Debug("phase", zap.String("from", string(before.Phase)), zap.String("to", string(after.Phase)))
	}
	if after.PayoutsObserved != before.PayoutsObserved {
		s.log.Info("payout",
			zap.Int("payouts", after.PayoutsObserved),
			zap.Int("target", after.PayoutTarget))
	}
}
