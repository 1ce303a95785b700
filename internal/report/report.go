package report

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/betting-loadtest/internal/session"
)

// Record is the flattened outcome of one session, as written to every sink.
type Record struct {
	RunID           string    `json:"run_id"`
	AccountID       string    `json:"account_id"`
	Outcome         string    `json:"outcome"`
	Phase           string    `json:"phase"`
	Error           string    `json:"error,omitempty"`
	TargetInstance  int64     `json:"target_instance"`
	PlayerID        int64     `json:"player_id"`
	PayoutsObserved int       `json:"payouts_observed"`
	WagersSent      int       `json:"wagers_sent"`
	WindowsSeen     int       `json:"windows_seen"`
	Discarded       int       `json:"discarded"`
	DecodeErrors    int       `json:"decode_errors"`
	Violations      int       `json:"violations"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	ElapsedMillis   int64     `json:"elapsed_ms"`
}

func FromResult(runID string, res session.Result) Record {
	rec := Record{
		RunID:           runID,
		AccountID:       res.AccountID,
		Outcome:         string(res.Outcome),
		Phase:           string(res.Phase),
		TargetInstance:  int64(res.State.TargetInstance),
		PlayerID:        int64(res.State.PlayerID),
		PayoutsObserved: res.State.PayoutsObserved,
		WagersSent:      res.State.WagersSent,
		WindowsSeen:     res.State.WindowsSeen,
		Discarded:       res.State.Discarded,
		DecodeErrors:    res.State.DecodeErrors,
		Violations:      res.State.Violations,
		StartedAt:       res.StartedAt,
		EndedAt:         res.EndedAt,
		ElapsedMillis:   res.EndedAt.Sub(res.StartedAt).Milliseconds(),
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	return rec
}

type Sink interface {
	Record(ctx context.Context, rec Record) error
	Close() error
}

// Multi fans every record out to all sinks. A failing sink does not stop the
// others; errors are combined.
type Multi []Sink

func (m Multi) Record(ctx context.Context, rec Record) error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Record(ctx, rec))
	}
	return err
}

func (m Multi) Close() error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Close())
	}
	return err
}

func NewRunID() string { return uuid.NewString() }

// Recorder turns session results into records for one run.
type Recorder struct {
	RunID string
	Sink  Sink
	Log   *zap.Logger
}

// Observe writes res to the sink. Sink failures are logged, not returned, so
// a broken report never stops a run.
func (r *Recorder) Observe(ctx context.Context, res session.Result) {
	if r.Sink == nil {
		return
	}
	if err := r.Sink.Record(ctx, FromResult(r.RunID, res)); err != nil && r.Log != nil {
		r.Log.Warn("record session outcome", zap.String("account", res.AccountID), zap.Error(err))
	}
}
