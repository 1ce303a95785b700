package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SessionOutcome is the persisted form of a Record.
type SessionOutcome struct {
	ID              uint   `gorm:"primaryKey"`
	RunID           string `gorm:"index;size:36;not null"`
	AccountID       string `gorm:"size:64;not null"`
	Outcome         string `gorm:"size:16;not null"`
	Phase           string `gorm:"size:32"`
	Error           string
	TargetInstance  int64
	PlayerID        int64
	PayoutsObserved int
	WagersSent      int
	WindowsSeen     int
	Discarded       int
	DecodeErrors    int
	Violations      int
	StartedAt       time.Time
	EndedAt         time.Time
	ElapsedMillis   int64
	CreatedAt       time.Time
}

func (SessionOutcome) TableName() string { return "session_outcomes" }

func outcomeFromRecord(rec Record) SessionOutcome {
	return SessionOutcome{
		RunID:           rec.RunID,
		AccountID:       rec.AccountID,
		Outcome:         rec.Outcome,
		Phase:           rec.Phase,
		Error:           rec.Error,
		TargetInstance:  rec.TargetInstance,
		PlayerID:        rec.PlayerID,
		PayoutsObserved: rec.PayoutsObserved,
		WagersSent:      rec.WagersSent,
		WindowsSeen:     rec.WindowsSeen,
		Discarded:       rec.Discarded,
		DecodeErrors:    rec.DecodeErrors,
		Violations:      rec.Violations,
		StartedAt:       rec.StartedAt,
		EndedAt:         rec.EndedAt,
		ElapsedMillis:   rec.ElapsedMillis,
	}
}

// Store writes outcomes through gorm. It does not own db unless it was
// built by OpenPostgres.
type Store struct {
	db      *gorm.DB
	closers []func() error
}

func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&SessionOutcome{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenPostgres connects through a pgx pool and runs gorm on top of it.
func OpenPostgres(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: newGormLogger(log),
	})
	if err != nil {
		_ = sqlDB.Close()
		pool.Close()
		return nil, fmt.Errorf("open gorm: %w", err)
	}

	s, err := NewStore(db)
	if err != nil {
		_ = sqlDB.Close()
		pool.Close()
		return nil, err
	}
	s.closers = []func() error{sqlDB.Close, func() error { pool.Close(); return nil }}
	return s, nil
}

func (s *Store) Record(ctx context.Context, rec Record) error {
	row := outcomeFromRecord(rec)
	return s.db.WithContext(ctx).Create(&row).Error
}

// Summary counts outcomes of one run, keyed by outcome.
func (s *Store) Summary(ctx context.Context, runID string) (map[string]int64, error) {
	var rows []struct {
		Outcome string
		N       int64
	}
	err := s.db.WithContext(ctx).
		Model(&SessionOutcome{}).
		Select("outcome, count(*) as n").
		Where("run_id = ?", runID).
		Group("outcome").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Outcome] = r.N
	}
	return out, nil
}

func (s *Store) Close() error {
	var err error
	for _, c := range s.closers {
		err = multierr.Append(err, c())
	}
	s.closers = nil
	return err
}

type gormLogger struct {
	log   *zap.Logger
	level logger.LogLevel
}

func newGormLogger(log *zap.Logger) logger.Interface {
	if log == nil {
		log = zap.NewNop()
	}
	level := logger.Warn
	if log.Core().Enabled(zap.DebugLevel) {
		level = logger.Info
	}
	return &gormLogger{log: log.Named("gorm"), level: level}
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	return &gormLogger{log: l.log, level: level}
}

func (l *gormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Info {
		l.log.Info(fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Warn {
		l.log.Warn(fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Error {
		l.log.Error(fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level < logger.Warn {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && !errors.Is(err, sql.ErrNoRows):
		q, rows := fc()
		l.log.Error("gorm query error", zap.Error(err), zap.Duration("duration", elapsed), zap.String("sql", q), zap.Int64("rows", rows))
	case elapsed > 200*time.Millisecond:
		q, rows := fc()
		l.log.Warn("slow query", zap.Duration("duration", elapsed), zap.String("sql", q), zap.Int64("rows", rows))
	case l.level >= logger.Info:
		q, rows := fc()
		l.log.Debug("gorm query", zap.Duration("duration", elapsed), zap.String("sql", q), zap.Int64("rows", rows))
	}
}
