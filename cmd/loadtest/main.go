package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/DoyleJ11/betting-loadtest/internal/config"
	"github.com/DoyleJ11/betting-loadtest/internal/coordinator"
	"github.com/DoyleJ11/betting-loadtest/internal/httpapi"
	"github.com/DoyleJ11/betting-loadtest/internal/logging"
	"github.com/DoyleJ11/betting-loadtest/internal/report"
	"github.com/DoyleJ11/betting-loadtest/internal/runner"
	"github.com/DoyleJ11/betting-loadtest/internal/session"
	"github.com/DoyleJ11/betting-loadtest/internal/wsconn"
)

var errSessionsAborted = errors.New("some sessions aborted")

type CLI struct {
	EnvFile       string        `help:"Path to a .env file" default:".env" type:"path"`
	Debug         bool          `help:"Enable debug logging" short:"d"`
	Accounts      int           `help:"Number of accounts to simulate (overrides ACCOUNT_COUNT)"`
	Duration      time.Duration `help:"Wall-clock budget for the whole run (overrides DURATION)"`
	MaxConcurrent int           `help:"Maximum sessions running at once (0 = all)"`
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("loadtest"),
		kong.Description("Drives simulated players against the wagering service."),
		kong.UsageOnError(),
	)
	if err := cli.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (c *CLI) config() (config.Config, error) {
	cfg, err := config.Load(c.EnvFile)
	if err != nil {
		return cfg, err
	}
	if c.Debug {
		cfg.Debug = true
	}
	if c.Accounts != 0 {
		cfg.AccountCount = c.Accounts
	}
	if c.Duration != 0 {
		cfg.Duration = c.Duration
	}
	return cfg, cfg.Validate()
}

func (c *CLI) Run() error {
	cfg, err := c.config()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink, err := openSinks(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.Warn("close result sinks", zap.Error(err))
		}
	}()

	rec := &report.Recorder{RunID: report.NewRunID(), Sink: sink, Log: log}
	observe := func(res session.Result) { rec.Observe(context.WithoutCancel(ctx), res) }

	coord := coordinator.New()
	r := runner.New(coord, runner.Options{
		Endpoints: session.Endpoints{Auth: cfg.AuthURL(), Game: cfg.GameURL()},
		Dial: func(ctx context.Context, url string) (session.Conn, error) {
			return wsconn.Dial(ctx, url, wsconn.Options{})
		},
		Password:      cfg.Password,
		PingInterval:  cfg.PingInterval,
		ReadTimeout:   cfg.ReadTimeout,
		MaxConcurrent: c.MaxConcurrent,
		Logger:        log,
		Hooks:         runner.Hooks{OnComplete: observe, OnAbort: observe},
	})

	if cfg.StatusAddr != "" {
		srv := &http.Server{Addr: cfg.StatusAddr, Handler: httpapi.SetupRoutes(r)}
		go func() {
			log.Info("status api listening", zap.String("addr", cfg.StatusAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("status api", zap.Error(err))
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	specs := runner.Plan(cfg)
	log.Info("starting run",
		zap.String("run_id", rec.RunID),
		zap.Int("accounts", len(specs)),
		zap.Int("payout_target", cfg.PayoutCount),
		zap.Duration("budget", cfg.Duration),
		zap.String("auth", cfg.AuthURL()),
		zap.String("game", cfg.GameURL()))

	_, runErr := r.Run(ctx, specs, cfg.Duration)

	p := r.Progress()
	log.Info("run finished",
		zap.String("run_id", rec.RunID),
		zap.Int("sessions", p.Total),
		zap.Int("completed", p.Completed),
		zap.Int("aborted", p.Aborted))

	if runErr != nil {
		return runErr
	}
	if p.Aborted > 0 || p.Completed < len(specs) {
		return fmt.Errorf("%w: %d of %d", errSessionsAborted, len(specs)-p.Completed, len(specs))
	}
	return nil
}

func openSinks(ctx context.Context, cfg config.Config, log *zap.Logger) (report.Multi, error) {
	var sinks report.Multi
	if cfg.OutputFile != "" {
		f, err := report.NewFileSink(cfg.OutputFile)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, f)
	}
	if cfg.DatabaseURL != "" {
		store, err := report.OpenPostgres(ctx, cfg.DatabaseURL, log)
		if err != nil {
			_ = sinks.Close()
			return nil, err
		}
		sinks = append(sinks, store)
	}
	return sinks, nil
}
