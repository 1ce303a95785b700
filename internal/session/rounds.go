package session

import (
	"fmt"

	"github.com/DoyleJ11/betting-loadtest/internal/protocol"
)

// onBettingWindow applies the round rule. The first window only discovers
// the table and asks to join it; every later one is a wager opportunity.
func (m *Machine) onBettingWindow(w protocol.BettingWindow) ([]Effect, error) {
	m.st.WindowsSeen++

	switch {
	case m.st.Phase == PhaseConnectingGame:
		m.st.Violations++
		return nil, fmt.Errorf("%w: betting window before login ack", ErrProtocolViolation)
	case m.st.Phase == PhaseAwaitingFirstWindow:
		return m.discover(w), nil
	case !m.st.WagerReady():
		return nil, nil
	}
	return []Effect{m.placeWager(w)}, nil
}

func (m *Machine) discover(w protocol.BettingWindow) []Effect {
	if !m.st.TargetInstance.IsSet() {
		m.st.TargetInstance = w.GroupID
	}
	m.st.LimitsRequested = true
	m.st.Phase = PhaseLimitsPending
	return []Effect{
		send(ChannelGame, protocol.NewJoinTableRequest(m.st.TargetInstance, m.cfg.TableLimits)),
		send(ChannelGame, protocol.NewSetLimitsRequest(m.cfg.ModifiedLimits)),
	}
}

func (m *Machine) placeWager(w protocol.BettingWindow) Effect {
	line := m.picker.Pick()
	req := protocol.NewWagerRequest(m.st.WagerSequence, w.GameNo, w.GameNoRound, []protocol.WagerLine{line})

	m.st.WagerSequence++
	m.st.WagersSent++
	m.st.RoundSettled = false
	m.st.Phase = PhaseWagerPlaced
	return send(ChannelGame, req)
}

// onRoundResult settles the round once the table is known. It does not wait
// for the limit ack; the two flags are combined only when a window arrives.
func (m *Machine) onRoundResult() {
	if !m.st.Phase.AtLeast(PhaseLimitsPending) {
		return
	}
	m.st.RoundSettled = true
	if m.st.Phase == PhaseWagerPlaced || m.st.Phase == PhaseSettling {
		m.st.Phase = PhaseReady
	}
}
