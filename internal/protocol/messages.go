package protocol

import (
	"encoding/json"
	"maps"
)

// LimitSelection maps a game-type code to the selected bet-limit preset.
type LimitSelection map[string]int

// Presentation is what the client reports about itself on login.
type Presentation struct {
	DisplayName string
	VideoDelay  int
	UserAgent   string
}

var DefaultPresentation = Presentation{
	DisplayName: "TC",
	VideoDelay:  3000,
	UserAgent:   "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/136.0.0.0 Safari/537.36",
}

var tableLimits = LimitSelection{
	"101": 124, "102": 125, "103": 9, "104": 126, "105": 127,
	"106": 128, "107": 129, "108": 149, "110": 131, "111": 150,
	"112": 250, "113": 251, "117": 260, "121": 261, "125": 600,
	"126": 599, "128": 584, "129": 602, "301": 29,
}

// DefaultTableLimits is sent with the game login and the table join.
func DefaultTableLimits() LimitSelection { return maps.Clone(tableLimits) }

// DefaultModifiedLimits is sent with the set-limits request. It lowers the
// baccarat preset so the account ends up with its own limit configuration.
func DefaultModifiedLimits() LimitSelection {
	l := maps.Clone(tableLimits)
	l["101"] = 2
	return l
}

// Client -> Server

type AuthRequest struct {
	Account            string         `json:"account"`
	Password           string         `json:"password"`
	DtBetLimitSelectID LimitSelection `json:"dtBetLimitSelectID"`
	BGroupList         bool           `json:"bGroupList"`
	VideoName          string         `json:"videoName"`
	VideoDelay         int            `json:"videoDelay"`
	UserAgent          string         `json:"userAgent"`
}

type GameLoginRequest struct {
	DtBetLimitSelectID LimitSelection `json:"dtBetLimitSelectID"`
	BGroupList         bool           `json:"bGroupList"`
	VideoName          string         `json:"videoName"`
	VideoDelay         int            `json:"videoDelay"`
	UserAgent          string         `json:"userAgent"`
	Sid                string         `json:"sid"`
}

type JoinTableRequest struct {
	DtBetLimitSelectID LimitSelection `json:"dtBetLimitSelectID"`
	GroupID            InstanceID     `json:"groupID"`
}

type SetLimitsRequest struct {
	DtBetLimitSelectID LimitSelection `json:"dtBetLimitSelectID"`
}

type WagerLine struct {
	BetArea     int `json:"betArea"`
	AddBetMoney int `json:"addBetMoney"`
}

type WagerRequest struct {
	BetSerialNumber int         `json:"betSerialNumber"`
	GameNo          int64       `json:"gameNo"`
	GameNoRound     int64       `json:"gameNoRound"`
	BetArr          []WagerLine `json:"betArr"`
	Commission      int         `json:"commission"`
}

// Request is an outbound frame before encoding.
type Request struct {
	Op   Opcode
	Data any
}

func (r Request) Encode() ([]byte, error) {
	return json.Marshal(struct {
		Protocol Opcode `json:"protocol"`
		Data     any    `json:"data"`
	}{Protocol: r.Op, Data: r.Data})
}

func NewAuthRequest(account, password string, p Presentation) Request {
	return Request{Op: OpAuth, Data: AuthRequest{
		Account:            account,
		Password:           password,
		DtBetLimitSelectID: LimitSelection{},
		VideoName:          p.DisplayName,
		VideoDelay:         p.VideoDelay,
		UserAgent:          p.UserAgent,
	}}
}

func NewGameLoginRequest(sid string, limits LimitSelection, p Presentation) Request {
	return Request{Op: OpGameLogin, Data: GameLoginRequest{
		DtBetLimitSelectID: limits,
		VideoName:          p.DisplayName,
		VideoDelay:         p.VideoDelay,
		UserAgent:          p.UserAgent,
		Sid:                sid,
	}}
}

func NewJoinTableRequest(instance InstanceID, limits LimitSelection) Request {
	return Request{Op: OpJoinTable, Data: JoinTableRequest{DtBetLimitSelectID: limits, GroupID: instance}}
}

func NewSetLimitsRequest(limits LimitSelection) Request {
	return Request{Op: OpSetLimits, Data: SetLimitsRequest{DtBetLimitSelectID: limits}}
}

func NewWagerRequest(seq int, gameNo, gameNoRound int64, lines []WagerLine) Request {
	return Request{Op: OpWager, Data: WagerRequest{
		BetSerialNumber: seq,
		GameNo:          gameNo,
		GameNoRound:     gameNoRound,
		BetArr:          lines,
	}}
}

// Server -> Client

// AuthResponse answers opcode 0 on either channel. On the game channel it
// is the login ack and usually carries no sid.
type AuthResponse struct {
	Sid      string   `json:"sid"`
	MemberID PlayerID `json:"memberID"`
	Account  string   `json:"account"`
	OK       *bool    `json:"bOk,omitempty"`
}

// Ack is the body of join-table, set-limits and wager acknowledgements.
type Ack struct {
	MemberID PlayerID   `json:"memberID"`
	GroupID  InstanceID `json:"groupID"`
}

type RoundResult struct {
	GroupID  InstanceID `json:"groupID"`
	MemberID PlayerID   `json:"memberID"`
}

type BettingWindow struct {
	GameID          int        `json:"gameID"`
	GroupID         InstanceID `json:"groupID"`
	GameNo          int64      `json:"gameNo"`
	GameNoRound     int64      `json:"gameNoRound"`
	BetTimeCount    int        `json:"betTimeCount"`
	TimeMillisecond int        `json:"timeMillisecond"`
}

type Payout struct {
	GroupID  InstanceID `json:"groupID"`
	MemberID PlayerID   `json:"memberID"`
}
