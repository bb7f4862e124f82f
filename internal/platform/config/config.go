package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr     string
	LogLevel string
	// ClientRateLimit caps API requests per client IP, across all routes.
	ClientRateLimit ClientRateLimitConfig

	Redis        RedisConfig
	DatabaseURL  string
	Kafka        KafkaConfig
	Verification VerificationConfig
	Jobs         JobsConfig
	Sources      SourcesConfig
}

// RedisConfig configures the shared Redis client. An empty URL disables Redis
// and the in-memory stores are used instead.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ClientRateLimitConfig bounds requests per client IP.
type ClientRateLimitConfig struct {
	Max    int
	Window time.Duration

	// Disabled turns the per-IP limit off, for local load testing.
	Disabled bool
}

// KafkaConfig configures outcome event publishing. No brokers disables it.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// VerificationConfig holds orchestration thresholds, TTLs and scoring weights.
type VerificationConfig struct {
	CacheTTL          time.Duration
	RateLimitMax      int
	RateLimitWindow   time.Duration
	SecondaryGate     float64
	VerifiedThreshold float64
	SourceTimeout     time.Duration
	// Weights overrides per-source scoring, keyed by source name.
	Weights map[string]Weight
}

// Weight is a source's scoring contribution. A factor > 0 scales the source's
// raw confidence (contribution = min(cap, confidence*factor)); otherwise the
// fixed points apply on match.
type Weight struct {
	Points float64
	Factor float64
	Cap    float64
}

// JobsConfig bounds the async job lifecycle.
type JobsConfig struct {
	Retention    time.Duration
	MaxBatchSize int
}

// SourcesConfig holds provider endpoints and credentials. A provider without
// an API key answers from static fixtures.
type SourcesConfig struct {
	OpenCorporates ProviderConfig
	CompaniesHouse ProviderConfig
	LinkedIn       ProviderConfig
}

type ProviderConfig struct {
	BaseURL string
	APIKey  string
	RPS     float64
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:        envOr("TRUSTOS_ADDR", ":8080"),
		LogLevel:    envOr("LOG_LEVEL", "info"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   envOr("KAFKA_VERIFICATION_TOPIC", "trustos.verifications"),
		},
		Sources: SourcesConfig{
			OpenCorporates: ProviderConfig{
				BaseURL: envOr("OPENCORPORATES_URL", "https://api.opencorporates.com/v0.4"),
				APIKey:  os.Getenv("OPENCORPORATES_API_KEY"),
			},
			CompaniesHouse: ProviderConfig{
				BaseURL: envOr("COMPANIES_HOUSE_URL", "https://api.company-information.service.gov.uk"),
				APIKey:  os.Getenv("COMPANIES_HOUSE_API_KEY"),
			},
			LinkedIn: ProviderConfig{
				BaseURL: envOr("LINKEDIN_URL", "https://api.linkedin.com/v2"),
				APIKey:  os.Getenv("LINKEDIN_API_KEY"),
			},
		},
	}

	var err error
	p := parser{}
	cfg.Redis = RedisConfig{
		URL:          os.Getenv("REDIS_URL"),
		PoolSize:     p.int("REDIS_POOL_SIZE", 10),
		MinIdleConns: p.int("REDIS_MIN_IDLE_CONNS", 2),
		DialTimeout:  p.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  p.duration("REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: p.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
	}
	cfg.Verification = VerificationConfig{
		CacheTTL:          p.duration("VERIFICATION_CACHE_TTL", 24*time.Hour),
		RateLimitMax:      p.int("VERIFY_RATE_LIMIT_MAX", 100),
		RateLimitWindow:   p.duration("VERIFY_RATE_LIMIT_WINDOW", time.Minute),
		SecondaryGate:     p.float("SECONDARY_GATE_THRESHOLD", 40),
		VerifiedThreshold: p.float("VERIFIED_THRESHOLD", 80),
		SourceTimeout:     p.duration("SOURCE_TIMEOUT", 8*time.Second),
	}
	cfg.ClientRateLimit = ClientRateLimitConfig{
		Max:      p.int("CLIENT_RATE_LIMIT_MAX", 600),
		Window:   p.duration("CLIENT_RATE_LIMIT_WINDOW", time.Minute),
		Disabled: p.bool("CLIENT_RATE_LIMIT_DISABLED", false),
	}
	cfg.Jobs = JobsConfig{
		Retention:    p.duration("JOB_RETENTION", 7*24*time.Hour),
		MaxBatchSize: p.int("JOB_MAX_BATCH_SIZE", 100),
	}
	cfg.Sources.OpenCorporates.RPS = p.float("OPENCORPORATES_RPS", 5)
	cfg.Sources.CompaniesHouse.RPS = p.float("COMPANIES_HOUSE_RPS", 2)
	cfg.Sources.LinkedIn.RPS = p.float("LINKEDIN_RPS", 1)
	if p.err != nil {
		return Server{}, p.err
	}

	cfg.Verification.Weights, err = ParseWeights(os.Getenv("SOURCE_WEIGHTS"))
	if err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// ParseWeights reads "name=points[:factor[:cap]],..." into a weight table.
//
//	opencorporates=40,companieshouse=20,linkedin=0:0.333:30,dnb=20
func ParseWeights(raw string) (map[string]Weight, error) {
	weights := map[string]Weight{}
	for _, entry := range splitList(raw) {
		name, value, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("SOURCE_WEIGHTS: malformed entry %q", entry)
		}
		parts := strings.Split(value, ":")
		if len(parts) > 3 {
			return nil, fmt.Errorf("SOURCE_WEIGHTS: too many fields in %q", entry)
		}
		vals := make([]float64, 3)
		for i, part := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil || v < 0 {
				return nil, fmt.Errorf("SOURCE_WEIGHTS: invalid number in %q", entry)
			}
			vals[i] = v
		}
		weights[strings.ToLower(strings.TrimSpace(name))] = Weight{Points: vals[0], Factor: vals[1], Cap: vals[2]}
	}
	return weights, nil
}

// parser accumulates the first parse error so FromEnv reads top to bottom.
type parser struct {
	err error
}

func (p *parser) int(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" || p.err != nil {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		p.err = fmt.Errorf("%s: expected positive integer, got %q", key, raw)
		return def
	}
	return v
}

func (p *parser) float(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" || p.err != nil {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		p.err = fmt.Errorf("%s: expected non-negative number, got %q", key, raw)
		return def
	}
	return v
}

func (p *parser) bool(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" || p.err != nil {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.err = fmt.Errorf("%s: expected boolean, got %q", key, raw)
		return def
	}
	return v
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" || p.err != nil {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		p.err = fmt.Errorf("%s: expected positive duration, got %q", key, raw)
		return def
	}
	return v
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
