package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	EnvPrefix        = "PAWMAP"
	minPartSize      = 5 << 20
)

var DefaultKeywords = []string{
	"강아지 유치원",
	"반려견 유치원",
	"강아지 호텔",
	"반려견 호텔",
	"애견 유치원",
	"애견 호텔",
}

type Config struct {
	Search  SearchConfig
	Scraper ScraperConfig
	Browser BrowserConfig
	Content ContentConfig
	Images  ImagesConfig
	S3      S3Config
	LLM     LLMConfig
	Cache   CacheConfig
	Output  OutputConfig
	Sinks   SinksConfig
	Metrics MetricsConfig
	Log     LogConfig
}

type SearchConfig struct {
	Endpoint      string
	Referer       string
	Keywords      []string
	QueriesPerSec float64
}

type ScraperConfig struct {
	UserAgent        string
	Timeout          time.Duration
	MaxRetries       int
	BaseDelay        time.Duration
	WorkerMultiplier float64
	MinWorkers       int
	MaxWorkers       int
	DetailURL        string
	AllowInternal    bool
}

type BrowserConfig struct {
	Enabled          bool
	Headless         bool
	Timeout          time.Duration
	MaxRetries       int
	RetryDelay       time.Duration
	WorkerMultiplier float64
	MinWorkers       int
	MaxWorkers       int
}

type ContentConfig struct {
	Enabled         bool
	MaxPages        int
	RespectRobots   bool
	MaxRedirectHops int
}

type ImagesConfig struct {
	MaxDimension int
	TempDir      string
	JPEGQuality  int
	MaxBytes     int64
}

type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	PartSize        int64
	Concurrency     int64
}

type LLMConfig struct {
	Mode         string
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int
	PollInterval time.Duration
	Chunks       int
	ChunkDelay   time.Duration
	QuotaWait    time.Duration
	WorkDir      string
	PromptFile   string
	// Provider answers direct mode: gemini, ollama or mock.
	Provider     string
	GeminiAPIKey string
	GeminiModel  string
	OllamaURL    string
	OllamaModel  string
	Workers      int
}

type CacheConfig struct {
	RedisURL string
	TTL      time.Duration
}

type OutputConfig struct {
	Dir    string
	Format string
}

type SinksConfig struct {
	PostgresURL string
	NatsURL     string
	NatsSubject string
}

type MetricsConfig struct {
	Addr string
}

type LogConfig struct {
	Level  string
	Format string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("search.endpoint", "https://svc-api.map.naver.com/v1/fusion-search/all")
	v.SetDefault("search.referer", "https://m.map.naver.com/")
	v.SetDefault("search.keywords", DefaultKeywords)
	v.SetDefault("search.queries_per_sec", 2.0)

	v.SetDefault("scraper.user_agent", DefaultUserAgent)
	v.SetDefault("scraper.timeout", 10*time.Second)
	v.SetDefault("scraper.max_retries", 3)
	v.SetDefault("scraper.base_delay", time.Second)
	v.SetDefault("scraper.worker_multiplier", 2.0)
	v.SetDefault("scraper.min_workers", 3)
	v.SetDefault("scraper.max_workers", 8)
	v.SetDefault("scraper.detail_url", "https://m.place.naver.com/place/%s/home")
	v.SetDefault("scraper.allow_internal", false)

	v.SetDefault("browser.enabled", false)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.timeout", 30*time.Second)
	v.SetDefault("browser.max_retries", 3)
	v.SetDefault("browser.retry_delay", 2*time.Second)
	v.SetDefault("browser.worker_multiplier", 1.5)
	v.SetDefault("browser.min_workers", 2)
	v.SetDefault("browser.max_workers", 4)

	v.SetDefault("content.enabled", true)
	v.SetDefault("content.max_pages", 10)
	v.SetDefault("content.respect_robots", true)
	v.SetDefault("content.max_redirect_hops", 3)

	v.SetDefault("images.max_dimension", 1024)
	v.SetDefault("images.temp_dir", "temp")
	v.SetDefault("images.jpeg_quality", 85)
	v.SetDefault("images.max_bytes", 20<<20)

	v.SetDefault("s3.region", "ap-northeast-2")
	v.SetDefault("s3.use_path_style", false)
	v.SetDefault("s3.part_size", 100<<20)
	v.SetDefault("s3.concurrency", 5)

	v.SetDefault("llm.mode", "batch")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4.1")
	v.SetDefault("llm.max_tokens", 10000)
	v.SetDefault("llm.poll_interval", 10*time.Second)
	v.SetDefault("llm.chunks", 1)
	v.SetDefault("llm.chunk_delay", 30*time.Second)
	v.SetDefault("llm.quota_wait", 60*time.Second)
	v.SetDefault("llm.work_dir", "batch")
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.gemini_model", "gemini-2.5-flash")
	v.SetDefault("llm.ollama_url", "http://localhost:11434")
	v.SetDefault("llm.ollama_model", "llava")
	v.SetDefault("llm.workers", 4)

	v.SetDefault("cache.ttl", 24*time.Hour)

	v.SetDefault("output.dir", "output")
	v.SetDefault("output.format", "json")

	v.SetDefault("sinks.nats_subject", "places.collected")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// bindSecrets maps the conventional provider variables onto config keys so a
// plain .env with OPENAI_API_KEY or AWS_ACCESS_KEY_ID keeps working.
func bindSecrets(v *viper.Viper) error {
	bindings := map[string][]string{
		"llm.api_key":          {EnvPrefix + "_LLM_API_KEY", "OPENAI_API_KEY"},
		"llm.gemini_api_key":   {EnvPrefix + "_LLM_GEMINI_API_KEY", "GEMINI_API_KEY"},
		"s3.access_key_id":     {EnvPrefix + "_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"},
		"s3.secret_access_key": {EnvPrefix + "_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"},
		"s3.bucket":            {EnvPrefix + "_S3_BUCKET", "AWS_S3_BUCKET"},
		"s3.region":            {EnvPrefix + "_S3_REGION", "AWS_REGION"},
		"cache.redis_url":      {EnvPrefix + "_CACHE_REDIS_URL", "REDIS_URL"},
		"sinks.postgres_url":   {EnvPrefix + "_SINKS_POSTGRES_URL", "DATABASE_URL"},
		"sinks.nats_url":       {EnvPrefix + "_SINKS_NATS_URL", "NATS_URL"},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return eris.Wrapf(err, "bind env for %s", key)
		}
	}
	return nil
}

// Load reads .env (when present), the optional config file, PAWMAP_* variables
// and defaults, in increasing order of precedence from defaults upward.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, eris.Wrap(err, "load .env")
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindSecrets(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, eris.Wrapf(err, "read config %s", path)
		}
	} else {
		v.SetConfigName("pawmap")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, eris.Wrap(err, "read config")
			}
		}
	}

	return FromViper(v)
}

func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Search: SearchConfig{
			Endpoint:      v.GetString("search.endpoint"),
			Referer:       v.GetString("search.referer"),
			Keywords:      normalizeKeywords(v.GetStringSlice("search.keywords")),
			QueriesPerSec: v.GetFloat64("search.queries_per_sec"),
		},
		Scraper: ScraperConfig{
			UserAgent:        v.GetString("scraper.user_agent"),
			Timeout:          v.GetDuration("scraper.timeout"),
			MaxRetries:       v.GetInt("scraper.max_retries"),
			BaseDelay:        v.GetDuration("scraper.base_delay"),
			WorkerMultiplier: v.GetFloat64("scraper.worker_multiplier"),
			MinWorkers:       v.GetInt("scraper.min_workers"),
			MaxWorkers:       v.GetInt("scraper.max_workers"),
			DetailURL:        v.GetString("scraper.detail_url"),
			AllowInternal:    v.GetBool("scraper.allow_internal"),
		},
		Browser: BrowserConfig{
			Enabled:          v.GetBool("browser.enabled"),
			Headless:         v.GetBool("browser.headless"),
			Timeout:          v.GetDuration("browser.timeout"),
			MaxRetries:       v.GetInt("browser.max_retries"),
			RetryDelay:       v.GetDuration("browser.retry_delay"),
			WorkerMultiplier: v.GetFloat64("browser.worker_multiplier"),
			MinWorkers:       v.GetInt("browser.min_workers"),
			MaxWorkers:       v.GetInt("browser.max_workers"),
		},
		Content: ContentConfig{
			Enabled:         v.GetBool("content.enabled"),
			MaxPages:        v.GetInt("content.max_pages"),
			RespectRobots:   v.GetBool("content.respect_robots"),
			MaxRedirectHops: v.GetInt("content.max_redirect_hops"),
		},
		Images: ImagesConfig{
			MaxDimension: v.GetInt("images.max_dimension"),
			TempDir:      v.GetString("images.temp_dir"),
			JPEGQuality:  v.GetInt("images.jpeg_quality"),
			MaxBytes:     v.GetInt64("images.max_bytes"),
		},
		S3: S3Config{
			Endpoint:        v.GetString("s3.endpoint"),
			Region:          v.GetString("s3.region"),
			Bucket:          v.GetString("s3.bucket"),
			AccessKeyID:     v.GetString("s3.access_key_id"),
			SecretAccessKey: v.GetString("s3.secret_access_key"),
			UsePathStyle:    v.GetBool("s3.use_path_style"),
			PartSize:        v.GetInt64("s3.part_size"),
			Concurrency:     v.GetInt64("s3.concurrency"),
		},
		LLM: LLMConfig{
			Mode:         strings.ToLower(v.GetString("llm.mode")),
			APIKey:       v.GetString("llm.api_key"),
			BaseURL:      strings.TrimRight(v.GetString("llm.base_url"), "/"),
			Model:        v.GetString("llm.model"),
			MaxTokens:    v.GetInt("llm.max_tokens"),
			PollInterval: v.GetDuration("llm.poll_interval"),
			Chunks:       v.GetInt("llm.chunks"),
			ChunkDelay:   v.GetDuration("llm.chunk_delay"),
			QuotaWait:    v.GetDuration("llm.quota_wait"),
			WorkDir:      v.GetString("llm.work_dir"),
			PromptFile:   v.GetString("llm.prompt_file"),
			Provider:     strings.ToLower(v.GetString("llm.provider")),
			GeminiAPIKey: v.GetString("llm.gemini_api_key"),
			GeminiModel:  v.GetString("llm.gemini_model"),
			OllamaURL:    v.GetString("llm.ollama_url"),
			OllamaModel:  v.GetString("llm.ollama_model"),
			Workers:      v.GetInt("llm.workers"),
		},
		Cache: CacheConfig{
			RedisURL: v.GetString("cache.redis_url"),
			TTL:      v.GetDuration("cache.ttl"),
		},
		Output: OutputConfig{
			Dir:    v.GetString("output.dir"),
			Format: strings.ToLower(v.GetString("output.format")),
		},
		Sinks: SinksConfig{
			PostgresURL: v.GetString("sinks.postgres_url"),
			NatsURL:     v.GetString("sinks.nats_url"),
			NatsSubject: v.GetString("sinks.nats_subject"),
		},
		Metrics: MetricsConfig{Addr: v.GetString("metrics.addr")},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.Search.Endpoint == "" {
		return eris.New("search.endpoint must be set")
	}
	if len(c.Search.Keywords) == 0 {
		return eris.New("search.keywords must include at least one keyword")
	}
	if c.Scraper.MinWorkers <= 0 || c.Scraper.MaxWorkers < c.Scraper.MinWorkers {
		return eris.Errorf("scraper workers: need 0 < min_workers <= max_workers, got %d/%d", c.Scraper.MinWorkers, c.Scraper.MaxWorkers)
	}
	if c.Browser.MinWorkers <= 0 || c.Browser.MaxWorkers < c.Browser.MinWorkers {
		return eris.Errorf("browser workers: need 0 < min_workers <= max_workers, got %d/%d", c.Browser.MinWorkers, c.Browser.MaxWorkers)
	}
	if c.Scraper.MaxRetries < 0 || c.Browser.MaxRetries < 0 {
		return eris.New("max_retries must be >= 0")
	}
	if !strings.Contains(c.Scraper.DetailURL, "%s") {
		return eris.New("scraper.detail_url must contain a %s placeholder for the place id")
	}
	if c.Images.MaxDimension <= 0 {
		return eris.New("images.max_dimension must be > 0")
	}
	if c.S3.Bucket != "" && c.S3.PartSize < minPartSize {
		return eris.Errorf("s3.part_size must be at least %d bytes", minPartSize)
	}
	if c.S3.Concurrency <= 0 {
		return eris.New("s3.concurrency must be > 0")
	}
	switch c.LLM.Mode {
	case "batch", "direct", "off":
	default:
		return eris.Errorf("llm.mode must be batch, direct or off, got %q", c.LLM.Mode)
	}
	switch c.LLM.Provider {
	case "gemini", "ollama", "mock":
	default:
		return eris.Errorf("llm.provider must be gemini, ollama or mock, got %q", c.LLM.Provider)
	}
	if c.LLM.Chunks <= 0 {
		return eris.New("llm.chunks must be > 0")
	}
	switch c.Output.Format {
	case "json", "xlsx":
	default:
		return eris.Errorf("output.format must be json or xlsx, got %q", c.Output.Format)
	}
	return nil
}

func normalizeKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{})
	for _, kw := range in {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}
