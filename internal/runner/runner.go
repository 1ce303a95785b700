package runner

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/betting-loadtest/internal/config"
	"github.com/DoyleJ11/betting-loadtest/internal/coordinator"
	"github.com/DoyleJ11/betting-loadtest/internal/protocol"
	"github.com/DoyleJ11/betting-loadtest/internal/session"
)

var ErrBudgetExceeded = errors.New("run budget exceeded")

// SessionSpec is what the scheduler knows about one virtual client.
type SessionSpec struct {
	AccountID    string
	PayoutTarget int
	// TargetInstance is optional; zero joins the first table offered.
	TargetInstance protocol.InstanceID
	Seed           int64
}

type Hooks struct {
	OnComplete func(session.Result)
	OnAbort    func(session.Result)
}

type Options struct {
	Endpoints    session.Endpoints
	Dial         session.DialFunc
	Password     string
	PingInterval time.Duration
	ReadTimeout  time.Duration
	// MaxConcurrent caps live sessions; zero starts all at once.
	MaxConcurrent int
	Logger        *zap.Logger
	Hooks         Hooks
}

type Progress struct {
	Total     int  `json:"total"`
	Running   int  `json:"running"`
	Completed int  `json:"completed"`
	Aborted   int  `json:"aborted"`
	AllDone   bool `json:"all_done"`
}

type Runner struct {
	opts  Options
	coord *coordinator.Coordinator
	log   *zap.Logger

	total     atomic.Int64
	running   atomic.Int64
	completed atomic.Int64
	aborted   atomic.Int64

	mu      sync.Mutex
	handles map[string]*Handle
}

func New(coord *coordinator.Coordinator, opts Options) *Runner {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		opts:    opts,
		coord:   coord,
		log:     log,
		handles: make(map[string]*Handle),
	}
}

// Handle tracks one started session.
type Handle struct {
	id   string
	done chan struct{}
	res  session.Result
	err  error
}

func (h *Handle) ID() string { return h.id }

// Done is closed when the session has completed or aborted.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) Wait() (session.Result, error) {
	<-h.done
	return h.res, h.err
}

// StartSession launches one session in its own goroutine.
func (r *Runner) StartSession(ctx context.Context, spec SessionSpec) *Handle {
	h := &Handle{id: spec.AccountID, done: make(chan struct{})}
	r.mu.Lock()
	r.handles[spec.AccountID] = h
	r.mu.Unlock()
	r.total.Add(1)

	go func() {
		h.res, h.err = r.runOne(ctx, spec)
		close(h.done)
	}()
	return h
}

func (r *Runner) runOne(ctx context.Context, spec SessionSpec) (session.Result, error) {
	r.running.Add(1)
	defer r.running.Add(-1)

	s := session.New(session.Config{
		AccountID:      spec.AccountID,
		Password:       r.opts.Password,
		PayoutTarget:   spec.PayoutTarget,
		TargetInstance: spec.TargetInstance,
	}, session.NewRandomPicker(spec.Seed), session.Options{
		Endpoints:    r.opts.Endpoints,
		Dial:         r.opts.Dial,
		Completer:    r.coord,
		Logger:       r.log,
		PingInterval: r.opts.PingInterval,
		ReadTimeout:  r.opts.ReadTimeout,
	})

	res, err := s.Run(ctx)
	if err != nil {
		r.aborted.Add(1)
		if r.opts.Hooks.OnAbort != nil {
			r.opts.Hooks.OnAbort(res)
		}
		return res, err
	}
	r.completed.Add(1)
	if r.opts.Hooks.OnComplete != nil {
		r.opts.Hooks.OnComplete(res)
	}
	return res, nil
}

// Run starts every session and waits until all sessions have ended, the budget
// expires or ctx is cancelled. Results are returned in the order of specs. The
// returned error is ErrBudgetExceeded when the budget cut the run short.
func (r *Runner) Run(ctx context.Context, specs []SessionSpec, budget time.Duration) ([]session.Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if budget > 0 {
		var cancelBudget context.CancelFunc
		runCtx, cancelBudget = context.WithTimeout(runCtx, budget)
		defer cancelBudget()
	}

	var g errgroup.Group
	if r.opts.MaxConcurrent > 0 {
		g.SetLimit(r.opts.MaxConcurrent)
	}

	exited := make(chan struct{})
	go func() {
		defer close(exited)
		for _, spec := range specs {
			spec := spec
			g.Go(func() error {
				if runCtx.Err() != nil {
					return nil
				}
				_, _ = r.StartSession(runCtx, spec).Wait()
				return nil
			})
		}
		_ = g.Wait()
	}()

	budgetHit := r.supervise(runCtx, cancel, len(specs), exited)

	results := make([]session.Result, 0, len(specs))
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, spec := range specs {
		if h, ok := r.handles[spec.AccountID]; ok {
			results = append(results, h.res)
		}
	}
	if budgetHit {
		return results, ErrBudgetExceeded
	}
	return results, nil
}

// supervise stops the run once the coordinator reports every session done,
// and waits for all session goroutines to exit. It reports whether the
// budget expired before every session was done.
func (r *Runner) supervise(ctx context.Context, cancel context.CancelFunc, total int, exited <-chan struct{}) bool {
	for {
		select {
		case <-r.coord.Notify():
			if r.coord.IsAllDone(total) {
				r.log.Info("all sessions reached their payout target", zap.Int("sessions", total))
				cancel()
			}
			continue
		case <-ctx.Done():
			<-exited
		case <-exited:
		}

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !r.coord.IsAllDone(total) {
			r.log.Warn("run budget exceeded", zap.Int("done", r.coord.Done()), zap.Int("sessions", total))
			return true
		}
		return false
	}
}

// SessionStatus is a point-in-time view of one session. Outcome and the
// counters are only filled once the session has ended.
type SessionStatus struct {
	AccountID string `json:"account_id"`
	Done      bool   `json:"done"`
	Outcome   string `json:"outcome,omitempty"`
	Phase     string `json:"phase,omitempty"`
	Payouts   int    `json:"payouts"`
	Wagers    int    `json:"wagers"`
	Error     string `json:"error,omitempty"`
}

func (r *Runner) Status(accountID string) (SessionStatus, bool) {
	r.mu.Lock()
	h, ok := r.handles[accountID]
	r.mu.Unlock()
	if !ok {
		return SessionStatus{}, false
	}

	st := SessionStatus{AccountID: accountID}
	select {
	case <-h.done:
	default:
		return st, true
	}
	st.Done = true
	st.Outcome = string(h.res.Outcome)
	st.Phase = string(h.res.Phase)
	st.Payouts = h.res.State.PayoutsObserved
	st.Wagers = h.res.State.WagersSent
	if h.err != nil {
		st.Error = h.err.Error()
	}
	return st, true
}

func (r *Runner) Progress() Progress {
	total := int(r.total.Load())
	return Progress{
		Total:     total,
		Running:   int(r.running.Load()),
		Completed: int(r.completed.Load()),
		Aborted:   int(r.aborted.Load()),
		AllDone:   total > 0 && r.coord.IsAllDone(total),
	}
}

// Plan builds one SessionSpec per configured account. Each account picks its table
// at random from GroupIDs, or leaves it unset when the list is empty.
func Plan(cfg config.Config) []SessionSpec {
	rng := rand.New(rand.NewSource(cfg.Seed))
	specs := make([]SessionSpec, cfg.AccountCount)
	for i := range specs {
		specs[i] = SessionSpec{
			AccountID:    cfg.AccountID(i),
			PayoutTarget: cfg.PayoutCount,
			Seed:         cfg.Seed + int64(i) + 1,
		}
		if len(cfg.GroupIDs) > 0 {
			specs[i].TargetInstance = protocol.InstanceID(cfg.GroupIDs[rng.Intn(len(cfg.GroupIDs))])
		}
	}
	return specs
}
