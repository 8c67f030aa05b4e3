package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	contractx "github.com/fireflyframework/genai-data/agent/contract"
	"github.com/fireflyframework/genai-data/agent/httpapi"
	"github.com/fireflyframework/genai-data/agent/lineage"
	"github.com/fireflyframework/genai-data/agent/lineage/sinks"
	"github.com/fireflyframework/genai-data/agent/pipeline"
	"github.com/fireflyframework/genai-data/agent/refdata"
	"github.com/fireflyframework/genai-data/agent/steps"
	configx "github.com/fireflyframework/genai-data/pkg/config"
	_ "github.com/fireflyframework/genai-data/pkg/logger/autoload"
	postgresx "github.com/fireflyframework/genai-data/pkg/postgres"
	redisx "github.com/fireflyframework/genai-data/pkg/redis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	backend "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type AppConfig struct {
	HTTPAddr        string        `envconfig:"HTTP_ADDR" default:":8080"`
	ExportInterval  time.Duration `envconfig:"EXPORT_INTERVAL" default:"5s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	PostgresEnabled bool          `envconfig:"POSTGRES_ENABLED" default:"false"`
	RedisEnabled    bool          `envconfig:"REDIS_ENABLED" default:"false"`

	// Enrichment steps read reference data from Redis and are served under
	// POST /pipelines/{PIPELINE_NAME}/runs.
	PipelineName     string   `envconfig:"PIPELINE_NAME" default:"enrichment"`
	PipelineSteps    []string `envconfig:"PIPELINE_STEPS"`
	PipelineStrategy string   `envconfig:"PIPELINE_STRATEGY" default:"ENHANCE"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCfg := configx.MustNew[AppConfig]("")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := lineage.NewMetrics(registry)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register lineage metrics")
	}
	recorder := lineage.NewRecorder(lineage.WithObserver(metrics))

	var outputs []lineage.Sink
	if appCfg.PostgresEnabled {
		pgCfg := configx.MustNew[postgresx.Config]("POSTGRES")
		db := postgresx.MustNew(*pgCfg)
		defer db.Close()

		pgSink, err := sinks.NewPostgresSink(db)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to build postgres sink")
		}
		if err := pgSink.CreateTable(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to prepare lineage table")
		}
		outputs = append(outputs, pgSink)
	}
	var redisClient *backend.Client
	if appCfg.RedisEnabled || len(appCfg.PipelineSteps) > 0 {
		redisCfg := configx.MustNew[redisx.Config]("REDIS")
		redisClient = redisx.MustNew(*redisCfg)
		defer redisClient.Close()
	}
	if appCfg.RedisEnabled {
		redisSink, err := sinks.NewRedisSink(redisClient)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to build redis sink")
		}
		outputs = append(outputs, redisSink)
	}

	var apiOpts []httpapi.Option
	if len(appCfg.PipelineSteps) > 0 {
		p, err := buildPipeline(ctx, appCfg, recorder, redisClient)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to build enrichment pipeline")
		}
		apiOpts = append(apiOpts, httpapi.WithPipeline(p))
		log.Info().Str("pipeline", p.Name()).Strs("steps", appCfg.PipelineSteps).Msg("enrichment pipeline ready")
	}

	exportDone := make(chan struct{})
	if sink := lineage.NewMultiSink(outputs...); sink.Len() > 0 {
		exporter, err := lineage.NewExporter(recorder, sink,
			lineage.WithInterval(appCfg.ExportInterval),
			lineage.WithShutdownTimeout(appCfg.ShutdownTimeout),
		)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to build lineage exporter")
		}
		go func() {
			defer close(exportDone)
			if err := exporter.Run(ctx); err != nil {
				log.Error().Err(err).Msg("lineage exporter stopped with error")
			}
		}()
	} else {
		close(exportDone)
		log.Info().Msg("no lineage sinks enabled, records stay in memory")
	}

	server := &http.Server{
		Addr:              appCfg.HTTPAddr,
		Handler:           httpapi.NewHandler(recorder, registry, apiOpts...),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", appCfg.HTTPAddr).Msg("lineage api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), appCfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}
	<-exportDone
}

func buildPipeline(ctx context.Context, cfg *AppConfig, rec *lineage.Recorder, client *backend.Client) (*pipeline.Pipeline, error) {
	strategy := contractx.Strategy(strings.ToUpper(strings.TrimSpace(cfg.PipelineStrategy)))
	if !strategy.Valid() {
		return nil, fmt.Errorf("%w: unknown pipeline strategy %q", contractx.ErrValidation, cfg.PipelineStrategy)
	}

	enricher, err := refdata.NewRedisEnricher(client)
	if err != nil {
		return nil, err
	}

	stages := make([]pipeline.Step, 0, len(cfg.PipelineSteps))
	for _, typ := range cfg.PipelineSteps {
		step, err := steps.NewEnrichmentStep(enricher, typ, steps.WithStrategy(strategy))
		if err != nil {
			return nil, err
		}
		stages = append(stages, step)
	}
	return pipeline.New(ctx, cfg.PipelineName, rec, stages...)
}
