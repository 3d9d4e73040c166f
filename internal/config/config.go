// Package config defines the agent runtime's configuration surface and loads
// it from the process environment (optionally via a .env file).
package config

// AnthropicPromptCacheConfig controls Anthropic prompt-cache breakpoints.
type AnthropicPromptCacheConfig struct {
	Enabled       bool
	CacheSystem   bool
	CacheTools    bool
	CacheMessages bool
}

// OpenAIConfig configures the OpenAI-compatible backend (also used for
// self-hosted OpenAI-API-compatible servers such as mlx_lm.server or vLLM).
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	API          string // "completions" or "responses"
	LogPayloads  bool
	ExtraHeaders map[string]string
	ExtraParams  map[string]any
}

// AnthropicConfig configures the Anthropic backend.
type AnthropicConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	PromptCache AnthropicPromptCacheConfig
	ExtraParams map[string]any
}

// GoogleConfig configures the Gemini backend.
type GoogleConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout int // seconds
}

// LLMClientConfig selects the active backend and holds the per-backend
// settings. Only the backend named by Provider is built and called; there is
// no failover to another backend when it errors.
type LLMClientConfig struct {
	// Provider selects the default backend: "openai" (default), "local",
	// "anthropic", or "google".
	Provider string

	OpenAI    OpenAIConfig
	Anthropic AnthropicConfig
	Google    GoogleConfig

	// FailoverOrder is an ordered list of provider names loaded from the
	// environment. providers.Build does not read it: a failed Chat call on
	// the primary provider is not retried on any other provider.
	FailoverOrder []string

	// VLMFailoverOrder is the equivalent ordered list for multimodal
	// (vision) calls. Like FailoverOrder, no code path reads it.
	VLMFailoverOrder []string
}

// ObsConfig configures OpenTelemetry export.
type ObsConfig struct {
	OTLP           string
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// DatabasesConfig configures the persistence backends used by the memory
// tiers. DefaultDSN is a Postgres connection string used for the relational
// tiers (agents, working context, FIFO queue, recall storage, chat log).
type DatabasesConfig struct {
	DefaultDSN string

	QdrantDSN        string
	QdrantCollection string
	QdrantDimensions int
	QdrantMetric     string
}

// OrchestratorConfig configures the Kafka-backed scheduled-heartbeat
// dispatch and its at-least-once delivery guarantees.
type OrchestratorConfig struct {
	Brokers           []string
	GroupID           string
	HeartbeatTopic    string
	DefaultReplyTopic string
	WorkerCount       int
	DedupeTTLSeconds  int
	RedisAddr         string
}

// MemoryConfig carries the token-budget and pagination constants that shape
// the memory tiers and the recursive summarization flush policy.
type MemoryConfig struct {
	// ContextWindowTokens is the model's total context window (CTX_WINDOW).
	ContextWindowTokens int
	// WarningFraction triggers a warning message once the FIFO queue crosses
	// this fraction of the context window (WARN_FRAC).
	WarningFraction float64
	// FlushFraction triggers a recursive-summarization flush once the FIFO
	// queue crosses this fraction of the context window (FLUSH_FRAC).
	FlushFraction float64
	// FlushTargetFraction is the fraction of the context window the FIFO
	// queue is trimmed back down to after a flush (FLUSH_TGT_FRAC).
	FlushTargetFraction float64
	// MinFIFOQueueLen is the minimum number of FIFO queue messages that must
	// remain untouched by a flush (FLUSH_MIN_FIFO_QUEUE_LEN).
	MinFIFOQueueLen int
	// OverthinkWarningHeartbeats is the number of consecutive heartbeats
	// without a system notice (context warning, halt_soon notice or a
	// previous overthink notice) before an overthink notice is injected
	// (OVERTHINK_WARNING_HEARTBEAT_COUNT).
	OverthinkWarningHeartbeats int
	// ChunkMaxTokens is the maximum token size of each chunk an
	// archival_insert text is split into.
	ChunkMaxTokens int
	// PersonaMaxWords bounds persona_append/persona_replace edits.
	PersonaMaxWords int
	// HeartbeatIntervalMinutes is the cadence of the scheduled background
	// heartbeat that cmd/agentd drives with a local ticker.
	HeartbeatIntervalMinutes int
	// PageSize is loaded from the environment (default 5). The search tools
	// do not read it; they use their own fixed result limits.
	PageSize int
	// ChatLogPageSize is loaded from the environment (default 5).
	// chat_log_search does not read it; it pages by a fixed 20 entries.
	ChatLogPageSize int
	// SummaryModel names the model used to produce recursive summaries.
	// Empty means reuse the agent's main model.
	SummaryModel string
	// UseResponsesCompaction is loaded from the environment, but no code
	// path reads it: the summarizer produces only the plain-text summary.
	UseResponsesCompaction bool
}

// EmbeddingsConfig configures the embedding backend Archival Storage uses to
// turn inserted/queried text into vectors.
type EmbeddingsConfig struct {
	Host   string
	APIKey string
	Model  string
}

// Config is the full, env-driven configuration for the agent runtime.
type Config struct {
	Workdir     string
	LogPath     string
	LogLevel    string
	LogPayloads bool

	SystemPrompt string

	LLMClient  LLMClientConfig
	Memory     MemoryConfig
	Databases  DatabasesConfig
	Obs        ObsConfig
	Orch       OrchestratorConfig
	Embeddings EmbeddingsConfig

	// MaxSteps bounds the number of CallAgent iterations a single heartbeat
	// chain may run before the engine stops it with an error.
	MaxSteps int

	// EnableInterpreter/EnableWebSearch wire the optional function sets.
	EnableInterpreter bool
	EnableWebSearch   bool

	// SearXNGURL points the optional web search tool at a SearXNG instance;
	// when empty, the tool queries DuckDuckGo's Instant Answer API instead.
	SearXNGURL string
}
