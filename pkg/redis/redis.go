package redis

import (
	"errors"
	"strings"
	"time"

	backend "github.com/redis/go-redis/v9"
)

type Config struct {
	Addr     string        `split_words:"true" required:"true"`
	Password string        `split_words:"true"`
	DB       int           `envconfig:"DB" default:"0"`
	Timeout  time.Duration `split_words:"true" default:"5s"`
}

func NewClient(cfg Config) (*backend.Client, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	if cfg.DB < 0 {
		return nil, errors.New("redis db must be >= 0")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return backend.NewClient(&backend.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}), nil
}

func MustNew(cfg Config) *backend.Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}
