package protocol

// Opcode is the numeric "protocol" field of every frame.
//
// Auth channel:
//
//	0  -> authenticate  {account, password, dtBetLimitSelectID, bGroupList, videoName, videoDelay, userAgent}
//	0  <- auth result   {sid, memberID, bOk}
//
// Game channel:
//
//	1  -> login         {sid, dtBetLimitSelectID, bGroupList, videoName, videoDelay, userAgent}
//	0  <- login ack
//	10 <> join table    {groupID, dtBetLimitSelectID} / {memberID}
//	60 <> set limits    {dtBetLimitSelectID} / {memberID}
//	25 <- round result  {groupID, memberID?}
//	38 <- bet window    {groupID, gameNo, gameNoRound, betTimeCount}
//	22 <> wager         {betSerialNumber, gameNo, gameNoRound, betArr, commission} / {groupID}
//	31 <- payout        {groupID, memberID}
type Opcode int

const (
	OpAuth          Opcode = 0
	OpGameLogin     Opcode = 1
	OpJoinTable     Opcode = 10
	OpWager         Opcode = 22
	OpRoundResult   Opcode = 25
	OpPayout        Opcode = 31
	OpBettingWindow Opcode = 38
	OpSetLimits     Opcode = 60
)

func (op Opcode) String() string {
	switch op {
	case OpAuth:
		return "auth"
	case OpGameLogin:
		return "game_login"
	case OpJoinTable:
		return "join_table"
	case OpWager:
		return "wager"
	case OpRoundResult:
		return "round_result"
	case OpPayout:
		return "payout"
	case OpBettingWindow:
		return "betting_window"
	case OpSetLimits:
		return "set_limits"
	default:
		return "unknown"
	}
}

// InstanceID identifies a live table (the server's groupID). Zero means unset.
type InstanceID int64

func (id InstanceID) IsSet() bool { return id != 0 }

// PlayerID is the server-issued memberID. Zero means unset.
type PlayerID int64

func (id PlayerID) IsSet() bool { return id != 0 }
