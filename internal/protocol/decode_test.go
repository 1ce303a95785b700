package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	cases := []struct {
		name         string
		raw          string
		wantOp       Opcode
		wantInstance InstanceID
		wantPlayer   PlayerID
		wantErr      error
	}{
		{
			name:       "auth response",
			raw:        `{"protocol":0,"data":{"sid":"abc","memberID":42,"bOk":true}}`,
			wantOp:     OpAuth,
			wantPlayer: 42,
		},
		{
			name:   "login ack without data",
			raw:    `{"protocol":0}`,
			wantOp: OpAuth,
		},
		{
			name:         "betting window",
			raw:          `{"protocol":38,"data":{"groupID":7,"gameNo":1001,"gameNoRound":3,"betTimeCount":15}}`,
			wantOp:       OpBettingWindow,
			wantInstance: 7,
		},
		{
			name:         "payout addressed to a player",
			raw:          `{"protocol":31,"data":{"groupID":7,"memberID":9}}`,
			wantOp:       OpPayout,
			wantInstance: 7,
			wantPlayer:   9,
		},
		{
			name:       "set limits ack with null data",
			raw:        `{"protocol":60,"data":null}`,
			wantOp:     OpSetLimits,
			wantPlayer: 0,
		},
		{
			name:    "not json",
			raw:     `{"protocol":`,
			wantErr: ErrDecode,
		},
		{
			name:    "missing protocol",
			raw:     `{"data":{"groupID":7}}`,
			wantErr: ErrDecode,
		},
		{
			name:    "wrong field type",
			raw:     `{"protocol":38,"data":{"groupID":"seven"}}`,
			wantErr: ErrDecode,
		},
		{
			name:    "unhandled opcode",
			raw:     `{"protocol":21,"data":{}}`,
			wantErr: ErrUnknownOpcode,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := Decode([]byte(tc.raw))
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("want %v, got %v", tc.wantErr, err)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantOp, msg.Op)
			assert.Equal(t, tc.wantInstance, msg.Instance)
			assert.Equal(t, tc.wantPlayer, msg.Player)
		})
	}
}

func TestDecode_BettingWindowBody(t *testing.T) {
	msg, err := Decode([]byte(`{"protocol":38,"data":{"groupID":7,"gameNo":1001,"gameNoRound":3}}`))
	require.NoError(t, err)

	w, ok := msg.Body.(BettingWindow)
	require.True(t, ok, "body type %T", msg.Body)
	assert.Equal(t, int64(1001), w.GameNo)
	assert.Equal(t, int64(3), w.GameNoRound)
}

func TestWagerRequest_WireShape(t *testing.T) {
	raw, err := NewWagerRequest(4, 1001, 3, []WagerLine{{BetArea: 2, AddBetMoney: 300}}).Encode()
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.EqualValues(t, 22, got["protocol"])

	data := got["data"].(map[string]any)
	assert.EqualValues(t, 4, data["betSerialNumber"])
	assert.EqualValues(t, 1001, data["gameNo"])
	assert.EqualValues(t, 0, data["commission"])
	assert.Len(t, data["betArr"], 1)
}

func TestModifiedLimits_DoNotAliasTableLimits(t *testing.T) {
	mod := DefaultModifiedLimits()
	table := DefaultTableLimits()

	assert.Equal(t, 2, mod["101"])
	assert.Equal(t, 124, table["101"])
	assert.Equal(t, len(table), len(mod))
}
