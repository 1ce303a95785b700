package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrDecode = errors.New("undecodable payload")
var ErrUnknownOpcode = errors.New("unknown opcode")

// Message is a decoded inbound frame. Instance and Player are copied out of
// the body so filters can run without a type switch.
type Message struct {
	Op       Opcode
	Instance InstanceID
	Player   PlayerID
	Body     any
}

type envelope struct {
	Protocol *Opcode        `json:"protocol"`
	Data     json.RawMessage `json:"data"`
}

// Decode parses one inbound frame. Malformed frames return an error wrapping
// ErrDecode; well-formed frames with an opcode the client does not handle
// return ErrUnknownOpcode together with the opcode.
func Decode(raw []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if env.Protocol == nil {
		return Message{}, fmt.Errorf("%w: missing protocol field", ErrDecode)
	}

	msg := Message{Op: *env.Protocol}
	switch msg.Op {
	case OpAuth:
		var body AuthResponse
		if err := decodeData(env.Data, &body); err != nil {
			return msg, err
		}
		msg.Player = body.MemberID
		msg.Body = body

	case OpJoinTable, OpSetLimits, OpWager:
		var body Ack
		if err := decodeData(env.Data, &body); err != nil {
			return msg, err
		}
		msg.Instance, msg.Player = body.GroupID, body.MemberID
		msg.Body = body

	case OpRoundResult:
		var body RoundResult
		if err := decodeData(env.Data, &body); err != nil {
			return msg, err
		}
		msg.Instance, msg.Player = body.GroupID, body.MemberID
		msg.Body = body

	case OpBettingWindow:
		var body BettingWindow
		if err := decodeData(env.Data, &body); err != nil {
			return msg, err
		}
		msg.Instance = body.GroupID
		msg.Body = body

	case OpPayout:
		var body Payout
		if err := decodeData(env.Data, &body); err != nil {
			return msg, err
		}
		msg.Instance, msg.Player = body.GroupID, body.MemberID
		msg.Body = body

	default:
		return msg, fmt.Errorf("%w: %d", ErrUnknownOpcode, int(msg.Op))
	}
	return msg, nil
}

func decodeData(data json.RawMessage, into any) error {
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("%w: data: %v", ErrDecode, err)
	}
	return nil
}
