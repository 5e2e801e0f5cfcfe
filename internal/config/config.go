// Package config holds the gateway's two configuration layers: ambient
// runtime settings loaded from the environment at process start (this
// file, following the teacher's intFromEnv/durationFromEnv idiom), and the
// hot-swappable routing Document loaded from disk (document.go).
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds process-level runtime configuration: the HTTP listener,
// timeouts, auth, and the document path to load routing state from.
type Config struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	AuthToken    string

	// DocumentPath points at the routing Document (SPEC_FULL.md §6) this
	// process loads on start and republishes to on POST /api/config.
	DocumentPath string

	// CORSOrigins is the allowlist of origins permitted to call the
	// gateway from a browser (teacher idiom, internal/httpserver CORS
	// middleware).
	CORSOrigins []string

	TelemetryRingCapacity int
}

// FromEnv loads configuration from environment variables with sensible
// defaults.
func FromEnv() Config {
	var origins []string
	if raw := os.Getenv("GATEWAY_CORS_ORIGINS"); raw != "" {
		for _, o := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}

	return Config{
		Port:                  intFromEnv("GATEWAY_PORT", 8080),
		ReadTimeout:           durationFromEnv("HTTP_READ_TIMEOUT_MS", 30_000),
		WriteTimeout:          durationFromEnv("HTTP_WRITE_TIMEOUT_MS", 120_000), // longer: upstream completions can be slow
		IdleTimeout:           durationFromEnv("HTTP_IDLE_TIMEOUT_MS", 60_000),
		AuthToken:             os.Getenv("GATEWAY_AUTH_TOKEN"),
		DocumentPath:          strFromEnv("GATEWAY_CONFIG_PATH", "./config/routing.json"),
		CORSOrigins:           origins,
		TelemetryRingCapacity: intFromEnv("GATEWAY_TELEMETRY_CAPACITY", 1000),
	}
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
		log.Printf("config: invalid int for %s=%s, using default %d", key, v, def)
	}
	return def
}

func durationFromEnv(key string, defMs int) time.Duration {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return time.Duration(i) * time.Millisecond
		}
		log.Printf("config: invalid duration for %s=%s, using default %dms", key, v, defMs)
	}
	return time.Duration(defMs) * time.Millisecond
}

func strFromEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
