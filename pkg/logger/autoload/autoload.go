// Package autoload configures the global logger from LOG_* environment variables on import.
package autoload

import (
	logx "github.com/fireflyframework/genai-data/pkg/logger"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

func init() {
	var conf logx.Config
	if err := envconfig.Process("LOG", &conf); err != nil {
		logx.Init()
		log.Warn().Err(err).Msg("invalid LOG_* configuration, using defaults")
		return
	}
	logx.Init(conf)
}
