// Command tars-mqtt-demo runs one TARS worker process: it connects to
// the MQTT broker, wires the wake arbitration machine, the LLM
// request pipeline, and the memory/RAG corpus service to the shared
// envelope bus, and exposes the operator admin HTTP surface
// (health/metrics/event stream) alongside it.
//
// The speech-to-text, text-to-speech and chat-completion collaborators
// are opaque pkg/provider interfaces, and this binary wires none of
// them: llm/request is answered with a "no LLM provider configured"
// error. Embeddings go through memory.Embedder, for which the binary
// wires placeholderEmbedder (below). The message-passing core still
// runs in full.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"hash/fnv"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/tars-project/tars/internal/adminapi"
	"github.com/tars-project/tars/internal/config"
	"github.com/tars-project/tars/internal/envelope"
	"github.com/tars-project/tars/internal/llm"
	"github.com/tars-project/tars/internal/memory"
	"github.com/tars-project/tars/internal/metrics"
	"github.com/tars-project/tars/internal/mqttclient"
	"github.com/tars-project/tars/internal/topics"
	"github.com/tars-project/tars/internal/wake"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	var overrides config.Overrides
	var showVersion bool
	flag.StringVar(&overrides.EnvFile, "env-file", "", "Path to .env file (default: .env)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	flag.StringVar(&overrides.MQTTBrokerURL, "mqtt-url", "", "MQTT broker URL (overrides MQTT_BROKER_URL)")
	flag.StringVar(&overrides.DatabaseURL, "database-url", "", "PostgreSQL connection URL (overrides DATABASE_URL)")
	flag.StringVar(&overrides.AdminHTTPAddr, "admin-listen", "", "Admin HTTP listen address (overrides ADMIN_HTTP_ADDR)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("%s (commit=%s, built=%s)\n", version, commit, buildTime)
		os.Exit(0)
	}

	startTime := time.Now()

	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().
		Str("version", version).
		Str("commit", commit).
		Str("built", buildTime).
		Str("log_level", level.String()).
		Msg("tars starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Memory corpus: schema migration, pool, and the hybrid index.
	memLog := log.With().Str("component", "memory").Logger()
	if err := memory.RunMigrations(cfg.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("failed to apply memory corpus migrations")
	}
	pgStore, err := memory.NewPgStore(ctx, cfg.DatabaseURL, memLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to memory corpus database")
	}
	defer pgStore.Close()

	corpus := memory.NewCorpus(pgStore, placeholderEmbedder{}, memLog)
	if err := corpus.LoadAndReconcile(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to load memory corpus")
	}

	// MQTT core client.
	mqttLog := log.With().Str("component", "mqtt").Logger()
	mqttOpts := cfg.MQTTOptions(mqttLog)
	client := mqttclient.New(mqttOpts)
	if err := client.Connect(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
	}
	defer client.Shutdown()
	log.Info().Str("broker", cfg.MQTTBrokerURL).Str("client_id", cfg.MQTTClientID).Msg("mqtt connected")

	// Wake arbitration.
	wakeLog := log.With().Str("component", "wake").Logger()
	wakeMachine := wake.New(client, cfg.WakeOptions(wakeLog))
	wakeMachine.Start()
	defer wakeMachine.Stop()

	if err := client.Subscribe(topics.TTSStatus.Name, topics.TTSStatus.QoS, func(_ string, payload []byte) {
		handleTTSStatus(wakeMachine, payload, wakeLog)
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe to tts/status")
	}
	if err := client.Subscribe(topics.STTFinal.Name, topics.STTFinal.QoS, func(_ string, payload []byte) {
		handleSTTFinal(wakeMachine, payload, wakeLog)
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe to stt/final")
	}

	// LLM pipeline. No ChatCompletionProvider or ToolBridge is wired
	// here — see the package doc comment.
	llmLog := log.With().Str("component", "llm").Logger()
	pipeline := llm.New(client, nil, nil, cfg.LLMOptions(llmLog))

	if err := client.Subscribe(topics.LLMRequest.Name, topics.LLMRequest.QoS, func(_ string, payload []byte) {
		pipeline.HandleRequest(ctx, payload)
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe to llm/request")
	}
	if err := client.Subscribe(topics.MemoryResults.Name, topics.MemoryResults.QoS, func(_ string, payload []byte) {
		handleMemoryResult(pipeline, payload, llmLog)
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe to memory/results")
	}
	if err := client.Subscribe(topics.LLMToolCallResult.Name, topics.LLMToolCallResult.QoS, func(_ string, payload []byte) {
		handleToolCallResult(pipeline, payload, llmLog)
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe to llm/tool.call.result")
	}
	if err := client.Subscribe(topics.CharacterCurrent.Name, topics.CharacterCurrent.QoS, func(_ string, payload []byte) {
		handleCharacterUpdate(pipeline, payload, llmLog)
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe to system/character/current")
	}

	// Memory service: answers memory/query, ingests stt/final and tts/say.
	// Ingests are queued and flushed in batches of up to 8 or every 2s;
	// each document in a batch is still embedded with its own call.
	batchIngestor := memory.NewBatchIngestor(ctx, corpus, 8, 2*time.Second)
	defer batchIngestor.Stop()
	memService := memory.NewService(client, corpus, memLog).WithBatching(batchIngestor)
	if err := client.Subscribe(topics.MemoryQuery.Name, topics.MemoryQuery.QoS, func(_ string, payload []byte) {
		memService.HandleQuery(payload)
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe to memory/query")
	}
	if err := client.Subscribe(topics.STTFinal.Name, topics.STTFinal.QoS, func(_ string, payload []byte) {
		go memService.HandleIngest(ctx, topics.STTFinal.EventType, payload)
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe to stt/final for ingest")
	}
	if err := client.Subscribe(topics.TTSSay.Name, topics.TTSSay.QoS, func(_ string, payload []byte) {
		go memService.HandleIngest(ctx, topics.TTSSay.EventType, payload)
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe to tts/say for ingest")
	}

	// Admin HTTP surface: health, metrics, live event stream.
	adminLog := log.With().Str("component", "admin").Logger()
	hub := adminapi.NewHub(adminLog)
	if err := hub.Watch(client, "wake/#", "llm/#", "tts/#", "memory/#"); err != nil {
		log.Fatal().Err(err).Msg("failed to attach admin event hub")
	}
	fleet := adminapi.NewFleetTracker(cfg.FleetStaleAfter)
	if err := fleet.Watch(client); err != nil {
		log.Fatal().Err(err).Msg("failed to attach fleet tracker")
	}

	var collector prometheus.Collector
	if bool(cfg.MetricsEnabled) {
		collector = metrics.NewCollector(pgStore.Pool(), adminapi.FleetStats{Tracker: fleet, Hub: hub})
	}

	adminSrv := adminapi.NewServer(adminapi.ServerOptions{
		Addr:         cfg.AdminHTTPAddr,
		ReadTimeout:  cfg.AdminReadTimeout,
		WriteTimeout: cfg.AdminWriteTimeout,
		MQTT:         client,
		DB:           pgStore,
		Collector:    collector,
		Hub:          hub,
		Version:      fmt.Sprintf("%s (commit=%s, built=%s)", version, commit, buildTime),
		StartTime:    startTime,
		Log:          adminLog,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- adminSrv.Start() }()

	log.Info().
		Str("admin_listen", cfg.AdminHTTPAddr).
		Dur("startup_ms", time.Since(startTime)).
		Msg("tars ready")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("admin http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("admin http server shutdown error")
	}

	log.Info().Msg("tars stopped")
}

// placeholderEmbedder is a stand-in memory.Embedder: it has no notion
// of semantics, only a deterministic bag-of-words hash, so that the
// memory corpus has something to embed documents with out of the box.
// It exists only in this binary, not as a library abstraction — wire a
// real embedding provider in to get meaningful retrieval.
type placeholderEmbedder struct{}

const placeholderEmbedderDim = 64

func (placeholderEmbedder) Dimension() int { return placeholderEmbedderDim }

func (placeholderEmbedder) Embed(text string) ([]float32, error) {
	vec := make([]float32, placeholderEmbedderDim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[int(h.Sum32())%placeholderEmbedderDim]++
	}
	return vec, nil
}

func handleTTSStatus(m *wake.Machine, payload []byte, log zerolog.Logger) {
	env, err := envelope.Decode(payload)
	if err != nil {
		log.Warn().Err(err).Msg("unparseable tts/status envelope, dropping")
		return
	}
	var p struct {
		Event string `json:"event"`
		UttID string `json:"utt_id"`
	}
	if err := json.Unmarshal(env.Data, &p); err != nil {
		log.Warn().Err(err).Msg("invalid tts/status payload, dropping")
		return
	}
	m.OnTTSStatus(p.Event, p.UttID)
}

func handleSTTFinal(m *wake.Machine, payload []byte, log zerolog.Logger) {
	env, err := envelope.Decode(payload)
	if err != nil {
		log.Warn().Err(err).Msg("unparseable stt/final envelope, dropping")
		return
	}
	var p struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(env.Data, &p); err != nil {
		log.Warn().Err(err).Msg("invalid stt/final payload, dropping")
		return
	}
	m.OnSTTFinal(p.Text)
}

func handleMemoryResult(p *llm.Pipeline, payload []byte, log zerolog.Logger) {
	env, err := envelope.Decode(payload)
	if err != nil {
		log.Warn().Err(err).Msg("unparseable memory/results envelope, dropping")
		return
	}
	p.OnMemoryResult(env.Correlate, env.Data)
}

func handleToolCallResult(p *llm.Pipeline, payload []byte, log zerolog.Logger) {
	env, err := envelope.Decode(payload)
	if err != nil {
		log.Warn().Err(err).Msg("unparseable llm/tool.call.result envelope, dropping")
		return
	}
	p.OnToolCallResult(env.Correlate, env.Data)
}

func handleCharacterUpdate(p *llm.Pipeline, payload []byte, log zerolog.Logger) {
	env, err := envelope.Decode(payload)
	if err != nil {
		log.Warn().Err(err).Msg("unparseable system/character/current envelope, dropping")
		return
	}
	var snap llm.CharacterSnapshot
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		log.Warn().Err(err).Msg("invalid character snapshot, dropping")
		return
	}
	p.SetCharacter(snap)
}
