package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"shelfcast/internal/ml/ensemble"
)

type Config struct {
	DatabaseURL string
	RedisURL    string
	HTTPPort    int
	APIKey      string

	LogLevel  string
	LogFormat string

	TracingEnabled   bool
	OTELEndpoint     string
	TraceSampleRatio float64

	ArtifactDir            string
	MissingPredictorPolicy ensemble.MissingPolicy
	NormalizeHorizon       bool
	ServiceLevelZ          float64
	LeadTimeDays           int
	DefaultHistoricalStd   float64
	DecisionCacheTTLSecs   int
	ReloadPollSecs         int

	RetrainEnabled    bool
	RetrainHourUTC    int
	RetrainWindowDays int
	MinTrainSamples   int

	KafkaBrokers       []string
	KafkaDecisionTopic string

	OpenAIAPIKey          string
	OpenAIModel           string
	AdvisorCallsPerMinute int
}

func Load() *Config {
	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		APIKey:      os.Getenv("API_KEY"),
	}

	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set, ensemble is served from ARTIFACT_DIR and retraining is disabled")
	}
	if cfg.RedisURL == "" {
		log.Warn().Msg("REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}
	if cfg.APIKey == "" {
		log.Warn().Msg("API_KEY not set, /api routes are unauthenticated")
	}

	cfg.HTTPPort = intEnv("HTTP_PORT", 8080, positive)

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(os.Getenv("LOG_FORMAT")))
	if cfg.LogFormat != "console" {
		cfg.LogFormat = "json"
	}

	cfg.TracingEnabled = !strings.EqualFold(strings.TrimSpace(os.Getenv("TRACING_ENABLED")), "false")
	cfg.OTELEndpoint = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if cfg.OTELEndpoint == "" {
		cfg.OTELEndpoint = "localhost:4317"
	}
	cfg.TraceSampleRatio = floatEnv("TRACE_SAMPLE_RATIO", 1, func(v float64) bool { return v > 0 && v <= 1 })

	cfg.ArtifactDir = strings.TrimSpace(os.Getenv("ARTIFACT_DIR"))
	if cfg.ArtifactDir == "" {
		cfg.ArtifactDir = "artifacts"
	}

	cfg.MissingPredictorPolicy = ensemble.PolicyStrict
	if v := strings.TrimSpace(os.Getenv("MISSING_PREDICTOR_POLICY")); v != "" {
		p, err := ensemble.ParseMissingPolicy(v)
		if err != nil {
			log.Warn().Str("value", v).Msg("unsupported MISSING_PREDICTOR_POLICY, defaulting to strict")
		} else {
			cfg.MissingPredictorPolicy = p
		}
	}

	cfg.NormalizeHorizon = strings.EqualFold(strings.TrimSpace(os.Getenv("DECISION_NORMALIZE_HORIZON")), "true")
	cfg.ServiceLevelZ = floatEnv("SERVICE_LEVEL_Z", 1.65, func(v float64) bool { return v >= 0 })
	cfg.LeadTimeDays = intEnv("LEAD_TIME_DAYS", 7, positive)
	cfg.DefaultHistoricalStd = floatEnv("DEFAULT_HISTORICAL_STD", 2000, func(v float64) bool { return v >= 0 })
	cfg.DecisionCacheTTLSecs = intEnv("DECISION_CACHE_TTL_SECS", 300, func(n int) bool { return n >= 0 })
	cfg.ReloadPollSecs = intEnv("RELOAD_POLL_SECS", 60, positive)

	cfg.RetrainEnabled = strings.EqualFold(strings.TrimSpace(os.Getenv("RETRAIN_ENABLED")), "true")
	cfg.RetrainHourUTC = intEnv("RETRAIN_HOUR_UTC", 3, func(n int) bool { return n >= 0 && n <= 23 })
	cfg.RetrainWindowDays = intEnv("RETRAIN_WINDOW_DAYS", 730, positive)
	cfg.MinTrainSamples = intEnv("MIN_TRAIN_SAMPLES", 500, positive)

	for _, b := range strings.Split(os.Getenv("KAFKA_BROKERS"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
		}
	}
	cfg.KafkaDecisionTopic = strings.TrimSpace(os.Getenv("KAFKA_DECISION_TOPIC"))
	if cfg.KafkaDecisionTopic == "" {
		cfg.KafkaDecisionTopic = "shelfcast.decisions"
	}

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	if cfg.OpenAIAPIKey == "" {
		log.Warn().Msg("OPENAI_API_KEY not set, advisor will be disabled")
	}
	cfg.OpenAIModel = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = "gpt-4o-mini"
	}
	cfg.AdvisorCallsPerMinute = intEnv("ADVISOR_CALLS_PER_MINUTE", 30, positive)

	return cfg
}

func positive(n int) bool { return n > 0 }

// intEnv returns def when key is unset, unparsable or rejected by valid.
func intEnv(key string, def int, valid func(int) bool) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || !valid(n) {
		log.Warn().Str("key", key).Str("value", v).Int("default", def).Msg("invalid setting, using default")
		return def
	}
	return n
}

func floatEnv(key string, def float64, valid func(float64) bool) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || !valid(n) {
		log.Warn().Str("key", key).Str("value", v).Float64("default", def).Msg("invalid setting, using default")
		return def
	}
	return n
}
