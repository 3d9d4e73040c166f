package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Load reads configuration from the process environment, overlaying any
// values found in a .env file in the current directory. Missing values fall
// back to sane defaults for local development.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{}

	// Defaults that are awkward to express as zero values.
	cfg.LogLevel = "info"
	cfg.MaxSteps = 50
	cfg.LLMClient.Provider = "openai"

	cfg.Memory.ContextWindowTokens = 8192
	cfg.Memory.WarningFraction = 0.8
	cfg.Memory.FlushFraction = 0.95
	cfg.Memory.FlushTargetFraction = 0.6
	cfg.Memory.MinFIFOQueueLen = 5
	cfg.Memory.OverthinkWarningHeartbeats = 10
	cfg.Memory.ChunkMaxTokens = 128
	cfg.Memory.PersonaMaxWords = 100
	cfg.Memory.HeartbeatIntervalMinutes = 60
	cfg.Memory.PageSize = 5
	cfg.Memory.ChatLogPageSize = 5

	cfg.Databases.QdrantCollection = "archival_memory"
	cfg.Databases.QdrantDimensions = 1536
	cfg.Databases.QdrantMetric = "cosine"

	cfg.Orch.GroupID = "continuum-heartbeat"
	cfg.Orch.HeartbeatTopic = "agent.heartbeat"
	cfg.Orch.DefaultReplyTopic = "agent.heartbeat.replies"
	cfg.Orch.WorkerCount = 4
	cfg.Orch.DedupeTTLSeconds = 3600

	if v := strings.TrimSpace(os.Getenv("WORKDIR")); v != "" {
		cfg.Workdir = v
	} else {
		cfg.Workdir, _ = os.Getwd()
	}
	if v := strings.TrimSpace(os.Getenv("LOG_PATH")); v != "" {
		cfg.LogPath = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_PAYLOADS")); v != "" {
		cfg.LogPayloads = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv("SYSTEM_PROMPT_PATH")); v != "" {
		if b, err := os.ReadFile(v); err == nil {
			cfg.SystemPrompt = string(b)
		}
	}

	// LLM client.
	if v := strings.TrimSpace(os.Getenv("LLM_PROVIDER")); v != "" {
		cfg.LLMClient.Provider = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("LLM_FAILOVER_ORDER")); v != "" {
		cfg.LLMClient.FailoverOrder = parseCommaSeparatedList(v)
	}
	if v := strings.TrimSpace(os.Getenv("LLM_VLM_FAILOVER_ORDER")); v != "" {
		cfg.LLMClient.VLMFailoverOrder = parseCommaSeparatedList(v)
	}

	if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
		cfg.LLMClient.OpenAI.APIKey = v
	}
	if v := firstNonEmpty(os.Getenv("OPENAI_BASE_URL"), os.Getenv("OPENAI_API_BASE_URL")); v != "" {
		cfg.LLMClient.OpenAI.BaseURL = strings.TrimSpace(v)
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_MODEL")); v != "" {
		cfg.LLMClient.OpenAI.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_API")); v != "" {
		cfg.LLMClient.OpenAI.API = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_LOG_PAYLOADS")); v != "" {
		cfg.LLMClient.OpenAI.LogPayloads = parseBool(v)
	}
	if hdrs := parseHeaderList(os.Getenv("OPENAI_EXTRA_HEADERS")); len(hdrs) > 0 {
		cfg.LLMClient.OpenAI.ExtraHeaders = hdrs
	}

	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); v != "" {
		cfg.LLMClient.Anthropic.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL")); v != "" {
		cfg.LLMClient.Anthropic.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_MODEL")); v != "" {
		cfg.LLMClient.Anthropic.Model = v
	}
	cfg.LLMClient.Anthropic.PromptCache.Enabled = parseBool(strings.TrimSpace(os.Getenv("ANTHROPIC_PROMPT_CACHE_ENABLED")))
	cfg.LLMClient.Anthropic.PromptCache.CacheSystem = parseBool(strings.TrimSpace(os.Getenv("ANTHROPIC_PROMPT_CACHE_SYSTEM")))
	cfg.LLMClient.Anthropic.PromptCache.CacheTools = parseBool(strings.TrimSpace(os.Getenv("ANTHROPIC_PROMPT_CACHE_TOOLS")))
	cfg.LLMClient.Anthropic.PromptCache.CacheMessages = parseBool(strings.TrimSpace(os.Getenv("ANTHROPIC_PROMPT_CACHE_MESSAGES")))

	if v := strings.TrimSpace(os.Getenv("GOOGLE_API_KEY")); v != "" {
		cfg.LLMClient.Google.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("GOOGLE_BASE_URL")); v != "" {
		cfg.LLMClient.Google.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("GOOGLE_MODEL")); v != "" {
		cfg.LLMClient.Google.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("GOOGLE_TIMEOUT_SECONDS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.LLMClient.Google.Timeout = n
		}
	}

	// Memory / flush policy overrides.
	if v := strings.TrimSpace(os.Getenv("MEMORY_CONTEXT_WINDOW_TOKENS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Memory.ContextWindowTokens = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MEMORY_WARN_FRAC")); v != "" {
		if f, err := parseFloat(v); err == nil {
			cfg.Memory.WarningFraction = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("MEMORY_FLUSH_FRAC")); v != "" {
		if f, err := parseFloat(v); err == nil {
			cfg.Memory.FlushFraction = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("MEMORY_FLUSH_TARGET_FRAC")); v != "" {
		if f, err := parseFloat(v); err == nil {
			cfg.Memory.FlushTargetFraction = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("MEMORY_MIN_FIFO_QUEUE_LEN")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Memory.MinFIFOQueueLen = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MEMORY_OVERTHINK_WARNING_HEARTBEATS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Memory.OverthinkWarningHeartbeats = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MEMORY_CHUNK_MAX_TOKENS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Memory.ChunkMaxTokens = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MEMORY_PERSONA_MAX_WORDS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Memory.PersonaMaxWords = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MEMORY_HEARTBEAT_INTERVAL_MINUTES")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Memory.HeartbeatIntervalMinutes = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MEMORY_PAGE_SIZE")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Memory.PageSize = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MEMORY_CHAT_LOG_PAGE_SIZE")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Memory.ChatLogPageSize = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MEMORY_SUMMARY_MODEL")); v != "" {
		cfg.Memory.SummaryModel = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMORY_USE_RESPONSES_COMPACTION")); v != "" {
		cfg.Memory.UseResponsesCompaction = parseBool(v)
	}

	// Databases.
	if v := firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("POSTGRES_DSN")); v != "" {
		cfg.Databases.DefaultDSN = strings.TrimSpace(v)
	}
	if v := strings.TrimSpace(os.Getenv("QDRANT_DSN")); v != "" {
		cfg.Databases.QdrantDSN = v
	}
	if v := strings.TrimSpace(os.Getenv("QDRANT_COLLECTION")); v != "" {
		cfg.Databases.QdrantCollection = v
	}
	if v := strings.TrimSpace(os.Getenv("QDRANT_DIMENSIONS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Databases.QdrantDimensions = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("QDRANT_METRIC")); v != "" {
		cfg.Databases.QdrantMetric = v
	}

	// Observability.
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); v != "" {
		cfg.Obs.OTLP = v
	}
	cfg.Obs.ServiceName = firstNonEmpty(os.Getenv("OTEL_SERVICE_NAME"), "continuum-agentd")
	cfg.Obs.ServiceVersion = firstNonEmpty(os.Getenv("OTEL_SERVICE_VERSION"), "dev")
	cfg.Obs.Environment = firstNonEmpty(os.Getenv("APP_ENV"), "development")

	// Orchestrator.
	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		cfg.Orch.Brokers = parseCommaSeparatedList(v)
	}
	if v := strings.TrimSpace(os.Getenv("KAFKA_GROUP_ID")); v != "" {
		cfg.Orch.GroupID = v
	}
	if v := strings.TrimSpace(os.Getenv("KAFKA_HEARTBEAT_TOPIC")); v != "" {
		cfg.Orch.HeartbeatTopic = v
	}
	if v := strings.TrimSpace(os.Getenv("KAFKA_DEFAULT_REPLY_TOPIC")); v != "" {
		cfg.Orch.DefaultReplyTopic = v
	}
	if v := strings.TrimSpace(os.Getenv("ORCHESTRATOR_WORKER_COUNT")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Orch.WorkerCount = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ORCHESTRATOR_DEDUPE_TTL_SECONDS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Orch.DedupeTTLSeconds = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		cfg.Orch.RedisAddr = v
	}

	if v := strings.TrimSpace(os.Getenv("MAX_STEPS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.MaxSteps = n
		}
	}
	cfg.EnableInterpreter = parseBool(strings.TrimSpace(os.Getenv("ENABLE_INTERPRETER")))
	cfg.EnableWebSearch = parseBool(strings.TrimSpace(os.Getenv("ENABLE_WEB_SEARCH")))
	if v := strings.TrimSpace(os.Getenv("SEARXNG_URL")); v != "" {
		cfg.SearXNGURL = v
	}

	// Embeddings, for Archival Storage.
	cfg.Embeddings.Host = firstNonEmpty(os.Getenv("EMBEDDINGS_HOST"), cfg.LLMClient.OpenAI.BaseURL)
	cfg.Embeddings.APIKey = firstNonEmpty(os.Getenv("EMBEDDINGS_API_KEY"), cfg.LLMClient.OpenAI.APIKey)
	cfg.Embeddings.Model = firstNonEmpty(os.Getenv("EMBEDDINGS_MODEL"), "nomic-embed-text-v1.5.Q8_0")

	return cfg, nil
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseHeaderList(s string) map[string]string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	out := map[string]string{}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		k := strings.TrimSpace(kv[0])
		v := strings.TrimSpace(kv[1])
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if t := strings.TrimSpace(v); t != "" {
			return t
		}
	}
	return ""
}

func parseCommaSeparatedList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
