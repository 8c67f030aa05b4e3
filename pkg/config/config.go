package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

const defaultEnvFile = ".env"

var (
	envFilePath string
	parseOnce   sync.Once
)

// Validator is implemented by config structs that check themselves after loading.
type Validator interface {
	Validate() error
}

type options struct {
	envFile  string
	skipFile bool
}

type Option func(*options)

// WithEnvFile reads variables from path instead of the -env flag or ./.env.
func WithEnvFile(path string) Option {
	return func(o *options) {
		o.envFile = strings.TrimSpace(path)
	}
}

// WithoutEnvFile loads from the process environment only.
func WithoutEnvFile() Option {
	return func(o *options) {
		o.skipFile = true
	}
}

func MustNew[T any](prefix string, opts ...Option) *T {
	conf, err := New[T](prefix, opts...)
	if err != nil {
		panic(err)
	}
	return conf
}

// New fills a T from the environment using envconfig under prefix. Variables
// from the env file are exported first but never override ones already set.
func New[T any](prefix string, opts ...Option) (*T, error) {
	o := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	if !o.skipFile {
		path := o.envFile
		if path == "" {
			path = resolveEnvPath()
		}
		if path != "" {
			if err := exportEnvironment(path); err != nil {
				return nil, fmt.Errorf("failed to load env file %s: %w", path, err)
			}
		} else if err := exportEnvironmentIfExists(defaultEnvFile); err != nil {
			return nil, fmt.Errorf("failed to load default env file: %w", err)
		}
	}

	var conf T
	if err := envconfig.Process(prefix, &conf); err != nil {
		return nil, err
	}

	if v, ok := any(&conf).(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}

	return &conf, nil
}

func resolveEnvPath() string {
	parseOnce.Do(func() {
		if flag.Lookup("env") == nil {
			flag.StringVar(&envFilePath, "env", "", "path to .env file")
		}
		if !flag.Parsed() {
			flag.Parse()
		}
	})
	return strings.TrimSpace(envFilePath)
}

func exportEnvironmentIfExists(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return nil
	}
	return exportEnvironment(path)
}

func exportEnvironment(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return err
	}

	for k, val := range v.AllSettings() {
		key := strings.ToUpper(k)
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, fmt.Sprint(val)); err != nil {
			return err
		}
	}

	return nil
}
