package model

import "time"

// Config is the complete veritas configuration
type Config struct {
	Paths     PathsConfig     `yaml:"paths" mapstructure:"paths"`
	Segment   SegmentConfig   `yaml:"segment" mapstructure:"segment"`
	Embed     EmbedConfig     `yaml:"embed" mapstructure:"embed"`
	Index     IndexConfig     `yaml:"index" mapstructure:"index"`
	Retrieve  RetrieveConfig  `yaml:"retrieve" mapstructure:"retrieve"`
	Reason    ReasonConfig    `yaml:"reason" mapstructure:"reason"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Aggregate AggregateConfig `yaml:"aggregate" mapstructure:"aggregate"`
	Verbose   bool            `yaml:"verbose" mapstructure:"verbose"`
}

// PathsConfig locates the stage artifacts
type PathsConfig struct {
	SourcesDir   string   `yaml:"sources_dir" mapstructure:"sources_dir"`
	SegmentsFile string   `yaml:"segments_file" mapstructure:"segments_file"`
	IndexDir     string   `yaml:"index_dir" mapstructure:"index_dir"`
	ClaimsCSV    []string `yaml:"claims_csv" mapstructure:"claims_csv"`
	ClaimsFile   string   `yaml:"claims_file" mapstructure:"claims_file"`
	EvidenceDir  string   `yaml:"evidence_dir" mapstructure:"evidence_dir"`
	VerdictsDir  string   `yaml:"verdicts_dir" mapstructure:"verdicts_dir"`
	ReportFile   string   `yaml:"report_file" mapstructure:"report_file"`
}

// SegmentConfig controls the segmenter
type SegmentConfig struct {
	WindowTokens  int    `yaml:"window_tokens" mapstructure:"window_tokens"`
	OverlapTokens int    `yaml:"overlap_tokens" mapstructure:"overlap_tokens"`
	Tokenizer     string `yaml:"tokenizer" mapstructure:"tokenizer"` // "words" or "hf"
	TokenizerFile string `yaml:"tokenizer_file,omitempty" mapstructure:"tokenizer_file"`
}

// EmbedConfig controls the embedder
type EmbedConfig struct {
	Provider  string        `yaml:"provider" mapstructure:"provider"` // "hashing", "openai", "hugot"
	Model     string        `yaml:"model,omitempty" mapstructure:"model"`
	BaseURL   string        `yaml:"base_url,omitempty" mapstructure:"base_url"`
	APIKey    string        `yaml:"-" mapstructure:"api_key"`
	Dimension int           `yaml:"dimension" mapstructure:"dimension"`
	BatchSize int           `yaml:"batch_size" mapstructure:"batch_size"`
	ModelDir  string        `yaml:"model_dir,omitempty" mapstructure:"model_dir"`
	CacheDir  string        `yaml:"cache_dir,omitempty" mapstructure:"cache_dir"`
	CacheTTL  time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// IndexConfig selects the vector index backend
type IndexConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"` // "flat" or "pgvector"
	DSN     string `yaml:"dsn,omitempty" mapstructure:"dsn"`
	Table   string `yaml:"table,omitempty" mapstructure:"table"`
}

// RetrieveConfig controls evidence retrieval and re-ranking
type RetrieveConfig struct {
	FinalK          int     `yaml:"final_k" mapstructure:"final_k"`
	Oversample      int     `yaml:"oversample" mapstructure:"oversample"`
	SameSourceBoost float64 `yaml:"same_source_boost" mapstructure:"same_source_boost"`
	Workers         int     `yaml:"workers" mapstructure:"workers"`
}

// SearchK returns the oversampled neighbour count
func (r RetrieveConfig) SearchK() int {
	k := r.FinalK * r.Oversample
	if k < r.FinalK {
		k = r.FinalK
	}
	return k
}

// RetryConfig controls the transient-failure retry policy
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" mapstructure:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" mapstructure:"max_delay"`
	Jitter      float64       `yaml:"jitter" mapstructure:"jitter"`
}

// ReasonConfig controls the reasoning backend and the resolver
type ReasonConfig struct {
	Backend       string        `yaml:"backend" mapstructure:"backend"` // "anthropic", "openai", "ollama"
	Model         string        `yaml:"model,omitempty" mapstructure:"model"`
	BaseURL       string        `yaml:"base_url,omitempty" mapstructure:"base_url"`
	APIKey        string        `yaml:"-" mapstructure:"api_key"`
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxTokens     int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature   float64       `yaml:"temperature" mapstructure:"temperature"`
	CallDelay     time.Duration `yaml:"call_delay" mapstructure:"call_delay"`
	EvidenceChars int           `yaml:"evidence_chars" mapstructure:"evidence_chars"`
	Force         bool          `yaml:"force" mapstructure:"force"`
	Retry         RetryConfig   `yaml:"retry" mapstructure:"retry"`
	HTTPProxy     string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy    string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
}

// StoreConfig selects where evidence bundles and verdicts are persisted
type StoreConfig struct {
	Backend  string `yaml:"backend" mapstructure:"backend"` // "fs" or "redis"
	RedisURL string `yaml:"redis_url,omitempty" mapstructure:"redis_url"`
	Prefix   string `yaml:"prefix,omitempty" mapstructure:"prefix"`
}

// AggregateConfig controls the report
type AggregateConfig struct {
	RationaleMax int `yaml:"rationale_max" mapstructure:"rationale_max"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			SourcesDir:   "data/novels",
			SegmentsFile: "chunks/segments.jsonl",
			IndexDir:     "index",
			ClaimsCSV:    []string{"data/train.csv", "data/test.csv"},
			ClaimsFile:   "claims/claims.jsonl",
			EvidenceDir:  "evidence",
			VerdictsDir:  "verdicts",
			ReportFile:   "output/results.csv",
		},
		Segment: SegmentConfig{
			WindowTokens:  1400,
			OverlapTokens: 300,
			Tokenizer:     "words",
		},
		Embed: EmbedConfig{
			Provider:  "hashing",
			Dimension: 384,
			BatchSize: 64,
			ModelDir:  "./models",
			CacheTTL:  24 * time.Hour,
		},
		Index: IndexConfig{
			Backend: "flat",
			Table:   "veritas_segments",
		},
		Retrieve: RetrieveConfig{
			FinalK:          3,
			Oversample:      2,
			SameSourceBoost: 0.2,
			Workers:         1,
		},
		Reason: ReasonConfig{
			Backend:       "anthropic",
			Timeout:       60 * time.Second,
			MaxTokens:     1024,
			Temperature:   0.1,
			CallDelay:     500 * time.Millisecond,
			EvidenceChars: 2000,
			Retry: RetryConfig{
				MaxAttempts: 5,
				BaseDelay:   time.Second,
				MaxDelay:    60 * time.Second,
				Jitter:      0.25,
			},
		},
		Store: StoreConfig{
			Backend: "fs",
			Prefix:  "veritas",
		},
		Aggregate: AggregateConfig{
			RationaleMax: 200,
		},
	}
}
