package session

import (
	"errors"
	"fmt"

	"github.com/DoyleJ11/betting-loadtest/internal/protocol"
)

var ErrFiltered = errors.New("message filtered")
var ErrProtocolViolation = errors.New("protocol violation")
var ErrAuthRejected = errors.New("authentication rejected")
var ErrSessionClosed = errors.New("session closed")

type Phase string

const (
	PhaseDisconnected        Phase = "disconnected"
	PhaseAuthenticating      Phase = "authenticating"
	PhaseJoinedAuth          Phase = "joined_auth"
	PhaseConnectingGame      Phase = "connecting_game"
	PhaseAwaitingFirstWindow Phase = "awaiting_first_window"
	PhaseLimitsPending       Phase = "limits_pending"
	PhaseReady               Phase = "ready"
	PhaseWagerPlaced         Phase = "wager_placed"
	PhaseSettling            Phase = "settling"
	PhaseCompleted           Phase = "completed"
	PhaseAborted             Phase = "aborted"
)

var phaseRank = map[Phase]int{
	PhaseDisconnected:        0,
	PhaseAuthenticating:      1,
	PhaseJoinedAuth:          2,
	PhaseConnectingGame:      3,
	PhaseAwaitingFirstWindow: 4,
	PhaseLimitsPending:       5,
	PhaseReady:               6,
	PhaseWagerPlaced:         7,
	PhaseSettling:            8,
	PhaseCompleted:           9,
	PhaseAborted:             9,
}

// AtLeast reports whether p comes at or after q in the handshake order.
// The ready/wager_placed/settling loop counts as one stage for callers that
// ask about ready.
func (p Phase) AtLeast(q Phase) bool { return phaseRank[p] >= phaseRank[q] }

func (p Phase) Terminal() bool { return p == PhaseCompleted || p == PhaseAborted }

type Channel string

const (
	ChannelAuth Channel = "auth"
	ChannelGame Channel = "game"
)

// State is one simulated client's protocol state.
type State struct {
	AccountID    string
	Phase        Phase
	SessionToken string

	TargetInstance protocol.InstanceID
	PlayerID       protocol.PlayerID

	LimitsRequested bool
	LimitsConfirmed bool
	RoundSettled    bool

	WagerSequence   int
	PayoutsObserved int
	PayoutTarget    int

	WindowsSeen  int
	WagersSent   int
	DecodeErrors int
	Discarded    int
	Violations   int
}

// TargetReached is false while the payout target is unbounded.
func (s State) TargetReached() bool {
	return s.PayoutTarget > 0 && s.PayoutsObserved >= s.PayoutTarget
}

// WagerReady is the round gate: limits configured and the previous round settled.
func (s State) WagerReady() bool { return s.LimitsConfirmed && s.RoundSettled }

// AbortError is the single failure event of an aborted session.
type AbortError struct {
	Phase Phase
	Err   error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("session aborted in %s: %v", e.Phase, e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }
