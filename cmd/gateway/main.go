// Command gateway runs the claw-router HTTP service: it loads the routing
// document, builds the provider registry and codecs it names, and serves
// the routing and management endpoints described in SPEC_FULL.md §6.
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/namphamdev/claw-router/internal/cache"
	"github.com/namphamdev/claw-router/internal/config"
	"github.com/namphamdev/claw-router/internal/engine"
	"github.com/namphamdev/claw-router/internal/httpserver"
	"github.com/namphamdev/claw-router/internal/provider"
	"github.com/namphamdev/claw-router/internal/registry"
	"github.com/namphamdev/claw-router/internal/telemetry"
)

func main() {
	cfg := config.FromEnv()

	doc, err := config.LoadDocument(cfg.DocumentPath)
	if err != nil {
		log.Fatalf("failed to load routing document %s: %v", cfg.DocumentPath, err)
	}

	reg, err := registry.New(doc.ToRegistryProviders())
	if err != nil {
		log.Fatalf("failed to build provider registry: %v", err)
	}

	profiles, err := doc.ToEngineProfiles()
	if err != nil {
		log.Fatalf("failed to build routing profiles: %v", err)
	}
	activeProfile, err := profiles.ActiveProfile()
	if err != nil {
		log.Fatalf("failed to resolve active profile: %v", err)
	}
	if err := config.ValidateRouting(reg, profiles); err != nil {
		log.Fatalf("routing document failed validation: %v", err)
	}

	providers := buildProviders(doc)
	log.Printf("configured %d providers, active profile %q", len(providers), activeProfile.Name)

	var cch *cache.Cache
	cacheCfg := doc.ToCacheConfig()
	if cacheCfg.Enabled {
		cch, err = cache.New(cacheCfg)
		if err != nil {
			log.Fatalf("failed to initialize cache: %v", err)
		}
	}

	store := telemetry.New(cfg.TelemetryRingCapacity)
	metricsRegistry := prometheus.NewRegistry()
	metrics := engine.NewMetrics(metricsRegistry)

	routingCfg := engine.DefaultRoutingConfig()

	eng := engine.New(reg, cch, store, metrics, providers, doc.ToScorerConfig(), routingCfg, activeProfile)

	srv := httpserver.New(httpserver.Deps{
		Engine:         eng,
		Document:       doc,
		DocumentPath:   cfg.DocumentPath,
		Cache:          cch,
		Telemetry:      store,
		PromRegistry:   metricsRegistry,
		AuthToken:      cfg.AuthToken,
		AllowedOrigins: cfg.CORSOrigins,
	})

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		log.Printf("gateway listening on :%d (cache=%v, providers=%d)", cfg.Port, cacheCfg.Enabled, len(providers))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	log.Println("gateway stopped")
}

// buildProviders constructs one provider.Provider codec per enabled
// registry.Provider, dispatching on its Type the way the teacher's
// createProvider switch dispatched on a provider name string
// (cmd/gateway/main.go).
func buildProviders(doc config.Document) map[string]provider.Provider {
	codecs := make(map[string]provider.Provider)
	for _, p := range doc.Providers {
		if !p.Enabled {
			continue
		}
		codec, err := newProviderCodec(p)
		if err != nil {
			log.Printf("skipping provider %s: %v", p.ID, err)
			continue
		}
		codecs[p.ID] = codec
	}
	return codecs
}

func newProviderCodec(p config.ProviderDoc) (provider.Provider, error) {
	defaultModel := ""
	if len(p.Models) > 0 {
		defaultModel = p.Models[0].ID
	}

	switch registry.ProviderType(p.ProviderType) {
	case registry.ProviderOpenAI, registry.ProviderDeepSeek, registry.ProviderXAI, registry.ProviderCustomOpenAI:
		return provider.NewOpenAICompat(provider.OpenAICompatConfig{
			APIKey:       p.APIKey,
			BaseURL:      p.Endpoint,
			DefaultModel: defaultModel,
			ID:           p.ID,
		})
	case registry.ProviderAnthropic:
		return provider.NewAnthropic(provider.AnthropicConfig{
			APIKey:       p.APIKey,
			BaseURL:      p.Endpoint,
			DefaultModel: defaultModel,
			ID:           p.ID,
		})
	case registry.ProviderGoogle:
		return provider.NewGoogle(provider.GoogleConfig{
			APIKey:       p.APIKey,
			BaseURL:      p.Endpoint,
			DefaultModel: defaultModel,
			ID:           p.ID,
		})
	default:
		return nil, errUnknownProviderType(p.ProviderType)
	}
}

type errUnknownProviderType string

func (e errUnknownProviderType) Error() string {
	return "unknown provider_type " + string(e)
}
