package runner

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/betting-loadtest/internal/config"
	"github.com/DoyleJ11/betting-loadtest/internal/coordinator"
	"github.com/DoyleJ11/betting-loadtest/internal/protocol"
	"github.com/DoyleJ11/betting-loadtest/internal/session"
)

type hookLog struct {
	mu        sync.Mutex
	completed []string
	aborted   []string
}

func (h *hookLog) hooks() Hooks {
	return Hooks{
		OnComplete: func(res session.Result) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.completed = append(h.completed, res.AccountID)
		},
		OnAbort: func(res session.Result) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.aborted = append(h.aborted, res.AccountID)
		},
	}
}

func specs(n, payouts int) []SessionSpec {
	out := make([]SessionSpec, n)
	for i := range out {
		out[i] = SessionSpec{
			AccountID:    "laugh_g_" + string(rune('1'+i)),
			PayoutTarget: payouts,
			Seed:         int64(i + 1),
		}
	}
	return out
}

func newRunner(t *testing.T, endpoints session.Endpoints, hooks Hooks, maxConcurrent int) (*Runner, *coordinator.Coordinator) {
	t.Helper()
	coord := coordinator.New()
	r := New(coord, Options{
		Endpoints:     endpoints,
		Dial:          wsDial,
		Password:      "123456",
		MaxConcurrent: maxConcurrent,
		Logger:        zaptest.NewLogger(t),
		Hooks:         hooks,
	})
	return r, coord
}

func TestRun_AllSessionsReachPayoutTarget(t *testing.T) {
	endpoints := startFakeService(t, &fakeService{})
	var log hookLog
	r, coord := newRunner(t, endpoints, log.hooks(), 0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := r.Run(ctx, specs(3, 2), 0)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for _, res := range results {
		assert.Equal(t, session.OutcomeCompleted, res.Outcome, res.AccountID)
		assert.NoError(t, res.Err)
		assert.Equal(t, 2, res.State.PayoutsObserved)
		assert.Equal(t, 2, res.State.WagersSent)
		assert.Equal(t, 3, res.State.WagerSequence)
		assert.Equal(t, protocol.InstanceID(7), res.State.TargetInstance)
		assert.True(t, res.State.PlayerID.IsSet())
		assert.Positive(t, res.State.Discarded, "noise from table 9 and other players is discarded")
	}

	assert.True(t, coord.IsAllDone(3))
	assert.Len(t, log.completed, 3)
	assert.Empty(t, log.aborted)
	assert.Equal(t, Progress{Total: 3, Completed: 3, AllDone: true}, r.Progress())
}

func TestRun_MaxConcurrentStillFinishesEverySession(t *testing.T) {
	endpoints := startFakeService(t, &fakeService{})
	r, coord := newRunner(t, endpoints, Hooks{}, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := r.Run(ctx, specs(2, 1), 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2, coord.Done())
	assert.Zero(t, r.Progress().Running)
}

func TestRun_BudgetExceeded(t *testing.T) {
	endpoints := startFakeService(t, &fakeService{idle: true})
	var log hookLog
	r, coord := newRunner(t, endpoints, log.hooks(), 0)

	results, err := r.Run(context.Background(), specs(2, 1), 200*time.Millisecond)
	assert.ErrorIs(t, err, ErrBudgetExceeded)
	require.Len(t, results, 2)

	for _, res := range results {
		assert.Equal(t, session.OutcomeAborted, res.Outcome)
		assert.Equal(t, session.PhaseAwaitingFirstWindow, res.Phase)
		assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	}
	assert.Zero(t, coord.Done())
	assert.Len(t, log.aborted, 2)

	p := r.Progress()
	assert.Equal(t, 2, p.Aborted)
	assert.False(t, p.AllDone)
}

func TestRun_ServiceDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	var log hookLog
	r, _ := newRunner(t, session.Endpoints{Auth: base + "/15109", Game: base + "/15101"}, log.hooks(), 0)

	results, err := r.Run(context.Background(), specs(2, 1), 5*time.Second)
	require.NoError(t, err, "sessions ended on their own before the budget")
	for _, res := range results {
		assert.Equal(t, session.OutcomeAborted, res.Outcome)
		assert.Equal(t, session.PhaseAuthenticating, res.Phase)
	}
	assert.Len(t, log.aborted, 2)
}

func TestRun_CancelledContextStartsNothing(t *testing.T) {
	endpoints := startFakeService(t, &fakeService{})
	r, _ := newRunner(t, endpoints, Hooks{}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := r.Run(ctx, specs(3, 1), 0)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, r.Progress().Total)
}

func TestStartSession_Handle(t *testing.T) {
	endpoints := startFakeService(t, &fakeService{})
	r, coord := newRunner(t, endpoints, Hooks{}, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	h := r.StartSession(ctx, SessionSpec{AccountID: "laugh_g_9", PayoutTarget: 1, Seed: 9})
	assert.Equal(t, "laugh_g_9", h.ID())

	select {
	case <-h.Done():
	case <-ctx.Done():
		t.Fatal("session did not finish")
	}
	res, err := h.Wait()
	require.NoError(t, err)
	assert.Equal(t, session.PhaseCompleted, res.Phase)
	assert.True(t, coord.IsDone("laugh_g_9"))

	st, ok := r.Status("laugh_g_9")
	require.True(t, ok)
	assert.Equal(t, SessionStatus{AccountID: "laugh_g_9", Done: true, Outcome: "completed", Phase: "completed", Payouts: 1, Wagers: 1}, st)

	_, ok = r.Status("laugh_g_404")
	assert.False(t, ok)
}

func TestPlan(t *testing.T) {
	cfg := config.Config{
		AccountCount:  4,
		AccountPrefix: "laugh_g_",
		PayoutCount:   3,
		GroupIDs:      config.IDList{7, 9},
		Seed:          42,
	}

	got := Plan(cfg)
	require.Len(t, got, 4)
	for i, spec := range got {
		assert.Equal(t, cfg.AccountID(i), spec.AccountID)
		assert.Equal(t, 3, spec.PayoutTarget)
		assert.Contains(t, []protocol.InstanceID{7, 9}, spec.TargetInstance)
	}
	assert.Equal(t, got, Plan(cfg), "same seed, same plan")

	cfg.GroupIDs = nil
	for _, spec := range Plan(cfg) {
		assert.False(t, spec.TargetInstance.IsSet())
	}
}
