package session

import (
	"errors"
	"fmt"

	"github.com/DoyleJ11/betting-loadtest/internal/protocol"
)

type EffectType string

const (
	EffOpen           EffectType = "Open"
	EffSend           EffectType = "Send"
	EffClose          EffectType = "Close"
	EffStartHeartbeat EffectType = "StartHeartbeat"
	EffStopHeartbeat  EffectType = "StopHeartbeat"
	EffComplete       EffectType = "Complete"
)

/*
	Start                -> Open(auth), Send(auth, authenticate)
	auth result (sid)    -> Close(auth)
	ConnectGame          -> Open(game), Send(game, login), StartHeartbeat
	first bet window     -> Send(game, join table), Send(game, set limits)
	later bet window     -> Send(game, wager)          only when WagerReady
	payout at target     -> StopHeartbeat, Close(game), Complete
*/

// Effect is an instruction for the driver. The machine never touches the
// network itself.
type Effect struct {
	Type    EffectType
	Channel Channel
	Request protocol.Request
}

type Config struct {
	AccountID      string
	Password       string
	PayoutTarget   int
	TargetInstance protocol.InstanceID
	Presentation   protocol.Presentation
	TableLimits    protocol.LimitSelection
	ModifiedLimits protocol.LimitSelection
}

// Machine drives one session through the handshake. It is not safe for
// concurrent use; the driver feeds it from a single reader.
type Machine struct {
	cfg    Config
	st     State
	picker WagerPicker
	abort  *AbortError
}

func NewMachine(cfg Config, picker WagerPicker) *Machine {
	if cfg.Presentation == (protocol.Presentation{}) {
		cfg.Presentation = protocol.DefaultPresentation
	}
	if cfg.TableLimits == nil {
		cfg.TableLimits = protocol.DefaultTableLimits()
	}
	if cfg.ModifiedLimits == nil {
		cfg.ModifiedLimits = protocol.DefaultModifiedLimits()
	}
	if picker == nil {
		picker = NewRandomPicker(1)
	}
	return &Machine{
		cfg:    cfg,
		picker: picker,
		st: State{
			AccountID:      cfg.AccountID,
			Phase:          PhaseDisconnected,
			TargetInstance: cfg.TargetInstance,
			PayoutTarget:   cfg.PayoutTarget,
			WagerSequence:  1,
		},
	}
}

func (m *Machine) State() State { return m.st }

// Start opens the auth channel and sends the authenticate request.
func (m *Machine) Start() ([]Effect, error) {
	if m.st.Phase != PhaseDisconnected {
		return nil, fmt.Errorf("%w: start in %s", ErrProtocolViolation, m.st.Phase)
	}
	m.st.Phase = PhaseAuthenticating
	return []Effect{
		{Type: EffOpen, Channel: ChannelAuth},
		send(ChannelAuth, protocol.NewAuthRequest(m.cfg.AccountID, m.cfg.Password, m.cfg.Presentation)),
	}, nil
}

// ConnectGame opens the game channel once the auth channel has been closed.
func (m *Machine) ConnectGame() ([]Effect, error) {
	if m.st.Phase != PhaseJoinedAuth {
		return nil, fmt.Errorf("%w: connect game in %s", ErrProtocolViolation, m.st.Phase)
	}
	m.st.Phase = PhaseConnectingGame
	return []Effect{
		{Type: EffOpen, Channel: ChannelGame},
		send(ChannelGame, protocol.NewGameLoginRequest(m.st.SessionToken, m.cfg.TableLimits, m.cfg.Presentation)),
		{Type: EffStartHeartbeat, Channel: ChannelGame},
	}, nil
}

// Abort moves the session to aborted and returns the failure event. Calling
// it again returns the first failure.
func (m *Machine) Abort(cause error) *AbortError {
	if m.abort != nil {
		return m.abort
	}
	if m.st.Phase == PhaseCompleted {
		return nil
	}
	m.abort = &AbortError{Phase: m.st.Phase, Err: cause}
	m.st.Phase = PhaseAborted
	return m.abort
}

// Handle consumes one inbound payload. Returned errors are informational
// (ErrDecode, ErrFiltered, ErrProtocolViolation, ErrUnknownOpcode) unless
// they are an *AbortError.
func (m *Machine) Handle(ch Channel, raw []byte) ([]Effect, error) {
	if m.st.Phase.Terminal() {
		return nil, ErrSessionClosed
	}

	msg, err := protocol.Decode(raw)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownOpcode) {
			m.st.Discarded++
		} else {
			m.st.DecodeErrors++
		}
		return nil, err
	}

	if err := m.filter(msg); err != nil {
		m.st.Discarded++
		return nil, err
	}

	switch ch {
	case ChannelAuth:
		return m.onAuthChannel(msg)
	case ChannelGame:
		return m.onGameChannel(msg)
	default:
		return nil, fmt.Errorf("unknown channel %q", ch)
	}
}

func (m *Machine) filter(msg protocol.Message) error {
	if msg.Instance.IsSet() && m.st.TargetInstance.IsSet() && msg.Instance != m.st.TargetInstance {
		return fmt.Errorf("%w: %s for instance %d", ErrFiltered, msg.Op, msg.Instance)
	}
	if msg.Player.IsSet() && m.st.PlayerID.IsSet() && msg.Player != m.st.PlayerID {
		return fmt.Errorf("%w: %s for player %d", ErrFiltered, msg.Op, msg.Player)
	}
	return nil
}

func (m *Machine) onAuthChannel(msg protocol.Message) ([]Effect, error) {
	if msg.Op != protocol.OpAuth || m.st.Phase != PhaseAuthenticating {
		return m.violation(msg)
	}

	resp := msg.Body.(protocol.AuthResponse)
	if resp.Sid == "" || (resp.OK != nil && !*resp.OK) {
		return []Effect{{Type: EffClose, Channel: ChannelAuth}}, m.Abort(ErrAuthRejected)
	}

	m.st.SessionToken = resp.Sid
	m.st.Phase = PhaseJoinedAuth
	return []Effect{{Type: EffClose, Channel: ChannelAuth}}, nil
}

func (m *Machine) onGameChannel(msg protocol.Message) ([]Effect, error) {
	if !m.st.Phase.AtLeast(PhaseConnectingGame) {
		return m.violation(msg)
	}

	switch msg.Op {
	case protocol.OpAuth:
		if m.st.Phase != PhaseConnectingGame {
			return m.violation(msg)
		}
		m.st.Phase = PhaseAwaitingFirstWindow
		return nil, nil

	case protocol.OpBettingWindow:
		return m.onBettingWindow(msg.Body.(protocol.BettingWindow))

	case protocol.OpJoinTable:
		if !m.st.Phase.AtLeast(PhaseLimitsPending) {
			return m.violation(msg)
		}
		if !m.st.PlayerID.IsSet() && msg.Player.IsSet() {
			m.st.PlayerID = msg.Player
		}
		return nil, nil

	case protocol.OpSetLimits:
		if !m.st.LimitsRequested {
			return m.violation(msg)
		}
		m.st.LimitsConfirmed = true
		if m.st.Phase == PhaseLimitsPending {
			m.st.Phase = PhaseReady
		}
		return nil, nil

	case protocol.OpRoundResult:
		m.onRoundResult()
		return nil, nil

	case protocol.OpWager:
		if m.st.WagersSent == 0 {
			return m.violation(msg)
		}
		if m.st.Phase == PhaseWagerPlaced {
			m.st.Phase = PhaseSettling
		}
		return nil, nil

	case protocol.OpPayout:
		return m.onPayout(msg)

	default:
		return m.violation(msg)
	}
}

func (m *Machine) onPayout(msg protocol.Message) ([]Effect, error) {
	if !m.st.Phase.AtLeast(PhaseReady) {
		return m.violation(msg)
	}

	m.st.PayoutsObserved++
	if !m.st.TargetReached() {
		return nil, nil
	}

	m.st.Phase = PhaseCompleted
	return []Effect{
		{Type: EffStopHeartbeat, Channel: ChannelGame},
		{Type: EffClose, Channel: ChannelGame},
		{Type: EffComplete},
	}, nil
}

func (m *Machine) violation(msg protocol.Message) ([]Effect, error) {
	m.st.Violations++
	return nil, fmt.Errorf("%w: %s in %s", ErrProtocolViolation, msg.Op, m.st.Phase)
}

func send(ch Channel, req protocol.Request) Effect {
	return Effect{Type: EffSend, Channel: ch, Request: req}
}
