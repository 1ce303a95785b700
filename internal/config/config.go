package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var ErrInvalid = errors.New("invalid config")

// IDList is a comma separated list of table ids. Blank entries and
// surrounding spaces are ignored.
type IDList []int64

type Config struct {
	WSBase   string `env:"WS_IP" envDefault:"ws://192.168.0.213"`
	AuthPath string `env:"AUTH_PATH" envDefault:"/15109"`
	GamePath string `env:"GAME_PATH" envDefault:"/15101"`

	AccountCount  int    `env:"ACCOUNT_COUNT" envDefault:"2"`
	AccountPrefix string `env:"ACCOUNT_PREFIX" envDefault:"laugh_g_"`
	Password      string `env:"ACCOUNT_PASSWORD" envDefault:"123456"`
	GroupIDs      IDList `env:"GROUP_IDS"`
	// PayoutCount is the per-account stop condition; 0 runs until Duration.
	PayoutCount int `env:"PAYOUT_COUNT" envDefault:"10"`

	// Duration is the wall-clock budget of the whole run; 0 means none.
	Duration     time.Duration `env:"DURATION"`
	PingInterval time.Duration `env:"PING_INTERVAL" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT"`
	Seed         int64         `env:"SEED"`

	Debug       bool   `env:"DEBUG"`
	OutputFile  string `env:"OUTPUT_FILE"`
	DatabaseURL string `env:"DATABASE_URL"`
	StatusAddr  string `env:"STATUS_ADDR"`
}

// Load reads envFile (if present) into the process environment and parses
// the environment into a Config. Variables already set win over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	opts := env.Options{
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(IDList{}): func(v string) (any, error) { return ParseIDList(v) },
		},
	}
	if err := env.ParseWithOptions(target, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func ParseIDList(s string) (IDList, error) {
	var ids IDList
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("group id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (c Config) Validate() error {
	if c.AccountCount <= 0 {
		return fmt.Errorf("%w: ACCOUNT_COUNT must be positive, got %d", ErrInvalid, c.AccountCount)
	}
	if c.PayoutCount < 0 {
		return fmt.Errorf("%w: PAYOUT_COUNT must not be negative", ErrInvalid)
	}
	if c.Duration < 0 || c.PingInterval < 0 || c.ReadTimeout < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalid)
	}
	u, err := url.Parse(c.WSBase)
	if err != nil {
		return fmt.Errorf("%w: WS_IP: %v", ErrInvalid, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: WS_IP scheme must be ws or wss, got %q", ErrInvalid, u.Scheme)
	}
	return nil
}

func (c Config) AuthURL() string { return strings.TrimRight(c.WSBase, "/") + c.AuthPath }
func (c Config) GameURL() string { return strings.TrimRight(c.WSBase, "/") + c.GamePath }

// AccountID names the i-th account, counting from zero.
func (c Config) AccountID(i int) string { return c.AccountPrefix + strconv.Itoa(i+1) }
