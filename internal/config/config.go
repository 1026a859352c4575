package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// AppConfig holds the complete application configuration
type AppConfig struct {
	Environment string `yaml:"environment" env:"AUDIT_ENVIRONMENT" env-default:"production"`

	Scraper ScraperConfig `yaml:"scraper"`
	IO      IOConfig      `yaml:"io"`
	Browser BrowserConfig `yaml:"browser"`
	Proxies ProxyConfig   `yaml:"proxies"`
}

// ScraperConfig holds the worker pool configuration
type ScraperConfig struct {
	// Workers is the number of concurrent probe slots
	Workers int `yaml:"workers" env:"AUDIT_CONCURRENCY" env-default:"1"`
	// TimeoutSeconds is the per-site navigation budget
	TimeoutSeconds int `yaml:"timeout_seconds" env:"AUDIT_TIMEOUT_SECONDS" env-default:"10"`
	// Grace is how long a slot waits past the timeout before abandoning a probe
	Grace time.Duration `yaml:"grace" env:"AUDIT_TIMEOUT_GRACE" env-default:"2s"`
	// RunCeiling bounds the whole run; zero disables it
	RunCeiling time.Duration `yaml:"run_ceiling" env:"AUDIT_RUN_CEILING" env-default:"0s"`
	// RateLimit is the pause each slot takes before claiming the next request
	RateLimit  time.Duration `yaml:"rate_limit" env:"AUDIT_RATE_LIMIT" env-default:"0s"`
	MaxRetries int           `yaml:"max_retries" env:"AUDIT_MAX_RETRIES" env-default:"0"`
	RetryDelay time.Duration `yaml:"retry_delay" env:"AUDIT_RETRY_DELAY" env-default:"2s"`
	// ProgressEvery logs a progress line after this many completions
	ProgressEvery int `yaml:"progress_every" env:"AUDIT_PROGRESS_EVERY" env-default:"25"`
	// UserAgents are rotated per request; unused with the mobile viewport
	UserAgents []string `yaml:"user_agents" env:"AUDIT_USER_AGENTS" env-separator:"|"`
}

// IOConfig holds the input/output configuration
type IOConfig struct {
	InputFile          string `yaml:"input_file" env:"AUDIT_INPUT"`
	ResultsDir         string `yaml:"results_dir" env:"AUDIT_RESULTS_DIR" env-default:"output"`
	LogsDir            string `yaml:"logs_dir" env:"AUDIT_LOGS_DIR" env-default:"logs"`
	SkipSocialProfiles bool   `yaml:"skip_social_profiles" env:"AUDIT_SKIP_SOCIAL" env-default:"false"`
}

// BrowserConfig holds the headless browser configuration
type BrowserConfig struct {
	Headless      bool          `yaml:"headless" env:"AUDIT_BROWSER_HEADLESS" env-default:"true"`
	ExecPath      string        `yaml:"exec_path" env:"AUDIT_BROWSER_PATH"`
	UserAgent     string        `yaml:"user_agent" env:"AUDIT_USER_AGENT"`
	MobileView    bool          `yaml:"mobile_viewport" env:"AUDIT_MOBILE_VIEWPORT" env-default:"false"`
	NoSandbox     bool          `yaml:"no_sandbox" env:"AUDIT_BROWSER_NO_SANDBOX" env-default:"true"`
	ExtraFlags    []string      `yaml:"extra_flags" env:"AUDIT_BROWSER_FLAGS" env-separator:","`
	LaunchTimeout time.Duration `yaml:"launch_timeout" env:"AUDIT_BROWSER_LAUNCH_TIMEOUT" env-default:"30s"`
	// Screenshot captures failed and non-2xx pages into ScreenshotDir
	Screenshot    bool   `yaml:"screenshot" env:"AUDIT_SCREENSHOT" env-default:"false"`
	ScreenshotDir string `yaml:"screenshot_dir" env:"AUDIT_SCREENSHOT_DIR"`
}

// ProxyConfig holds the proxy configuration
type ProxyConfig struct {
	Enabled bool     `yaml:"enabled" env:"AUDIT_PROXY_ENABLED" env-default:"false"`
	Rotate  bool     `yaml:"rotate" env:"AUDIT_PROXY_ROTATE" env-default:"true"`
	List    []string `yaml:"list" env:"AUDIT_PROXY_LIST" env-separator:","`
	Auth    struct {
		Username string `yaml:"username" env:"AUDIT_PROXY_USERNAME"`
		Password string `yaml:"password" env:"AUDIT_PROXY_PASSWORD"`
	} `yaml:"auth"`
}

// Timeout returns the per-site timeout as a duration
func (c *ScraperConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Load loads the configuration from a YAML file, applying environment overrides.
// An empty filename reads the environment only.
func Load(filename string) (*AppConfig, error) {
	var cfg AppConfig

	var err error
	if filename != "" {
		err = cleanenv.ReadConfig(filename, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("could not read config: %w", err)
	}

	if len(cfg.Scraper.UserAgents) == 0 {
		cfg.Scraper.UserAgents = slices.Clone(DefaultUserAgents)
	}
	if cfg.Browser.UserAgent == "" {
		cfg.Browser.UserAgent = DefaultUserAgents[0]
		if cfg.Browser.MobileView {
			cfg.Browser.UserAgent = MobileUserAgent
		}
	}

	return &cfg, nil
}

// Validate checks the values the external runner is allowed to pass
func (c *AppConfig) Validate() error {
	switch {
	case c.IO.InputFile == "":
		return ErrNoInput
	case c.Scraper.Workers < MinWorkers || c.Scraper.Workers > MaxWorkers:
		return fmt.Errorf("%w: got %d", ErrInvalidConcurrency, c.Scraper.Workers)
	case c.Scraper.TimeoutSeconds < MinTimeoutSeconds || c.Scraper.TimeoutSeconds > MaxTimeoutSeconds:
		return fmt.Errorf("%w: got %d", ErrInvalidTimeout, c.Scraper.TimeoutSeconds)
	case c.Scraper.RunCeiling < 0:
		return ErrInvalidCeiling
	case c.Scraper.Grace < 0 || c.Scraper.RateLimit < 0 || c.Scraper.RetryDelay < 0:
		return ErrNegativeDuration
	case c.Scraper.MaxRetries < 0:
		return ErrInvalidRetries
	case c.IO.ResultsDir == "" || c.IO.LogsDir == "":
		return ErrNoOutputDir
	}
	return nil
}
