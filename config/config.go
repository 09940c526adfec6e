package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds service configuration.
type Config struct {
	BaseURL     string   `yaml:"base_url"`
	NavTitles   []string `yaml:"nav_titles"`
	DataDir     string   `yaml:"data_dir"`
	ListenAddr  string   `yaml:"listen_addr"`
	MetricsAddr string   `yaml:"metrics_addr"`
	UserAgent   string   `yaml:"user_agent"`

	// Crawl bounds. A run is only time-bounded, never cancelled.
	MaxPageVisits  int           `yaml:"max_page_visits"`
	LoadMoreClicks int           `yaml:"load_more_clicks"`
	PageTimeout    time.Duration `yaml:"page_timeout"`
	HoverWait      time.Duration `yaml:"hover_wait"`
	RenderWait     time.Duration `yaml:"render_wait"`
	QueueSize      int           `yaml:"queue_size"`
	Headless       bool          `yaml:"headless"`

	// TTLs per target kind.
	NavigationTTL    time.Duration `yaml:"navigation_ttl"`
	CategoryTTL      time.Duration `yaml:"category_ttl"`
	ProductListTTL   time.Duration `yaml:"product_list_ttl"`
	ProductDetailTTL time.Duration `yaml:"product_detail_ttl"`

	Verbose bool `yaml:"verbose"`
}

// DefaultNavTitles is the hand-curated set of top-level sections the
// navigation stage trusts. Site wording drifts, so this lives in config
// rather than baked into the crawl.
var DefaultNavTitles = []string{
	"Clearance",
	"Fiction Books",
	"Non-Fiction Books",
	"Children's Books",
	"Rare Books",
	"Music & Film",
}

// DefaultConfig returns conservative defaults for the retail target.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          "https://www.worldofbooks.com/en-gb",
		NavTitles:        append([]string(nil), DefaultNavTitles...),
		DataDir:          "data",
		ListenAddr:       ":8080",
		MetricsAddr:      "",
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		MaxPageVisits:    50,
		LoadMoreClicks:   4,
		PageTimeout:      3 * time.Minute,
		HoverWait:        time.Second,
		RenderWait:       2 * time.Second,
		QueueSize:        256,
		Headless:         true,
		NavigationTTL:    24 * time.Hour,
		CategoryTTL:      12 * time.Hour,
		ProductListTTL:   6 * time.Hour,
		ProductDetailTTL: 24 * time.Hour,
		Verbose:          false,
	}
}

// LoadFile overlays values from a YAML file onto the config. Zero
// values in the file leave the existing value in place.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	c.merge(&file)

	// Booleans can't distinguish false from absent, so a second decode
	// into pointer fields tells presence apart.
	var flags struct {
		Headless *bool `yaml:"headless"`
		Verbose  *bool `yaml:"verbose"`
	}
	if err := yaml.Unmarshal(data, &flags); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if flags.Headless != nil {
		c.Headless = *flags.Headless
	}
	if flags.Verbose != nil {
		c.Verbose = *flags.Verbose
	}
	return nil
}

func (c *Config) merge(o *Config) {
	if o.BaseURL != "" {
		c.BaseURL = o.BaseURL
	}
	if len(o.NavTitles) > 0 {
		c.NavTitles = o.NavTitles
	}
	if o.DataDir != "" {
		c.DataDir = o.DataDir
	}
	if o.ListenAddr != "" {
		c.ListenAddr = o.ListenAddr
	}
	if o.MetricsAddr != "" {
		c.MetricsAddr = o.MetricsAddr
	}
	if o.UserAgent != "" {
		c.UserAgent = o.UserAgent
	}
	if o.MaxPageVisits != 0 {
		c.MaxPageVisits = o.MaxPageVisits
	}
	if o.LoadMoreClicks != 0 {
		c.LoadMoreClicks = o.LoadMoreClicks
	}
	if o.PageTimeout != 0 {
		c.PageTimeout = o.PageTimeout
	}
	if o.HoverWait != 0 {
		c.HoverWait = o.HoverWait
	}
	if o.RenderWait != 0 {
		c.RenderWait = o.RenderWait
	}
	if o.QueueSize != 0 {
		c.QueueSize = o.QueueSize
	}
	if o.NavigationTTL != 0 {
		c.NavigationTTL = o.NavigationTTL
	}
	if o.CategoryTTL != 0 {
		c.CategoryTTL = o.CategoryTTL
	}
	if o.ProductListTTL != 0 {
		c.ProductListTTL = o.ProductListTTL
	}
	if o.ProductDetailTTL != 0 {
		c.ProductDetailTTL = o.ProductDetailTTL
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if len(c.NavTitles) == 0 {
		return fmt.Errorf("nav titles cannot be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data dir cannot be empty")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen addr cannot be empty")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.MaxPageVisits <= 0 {
		return fmt.Errorf("max page visits must be positive")
	}
	if c.LoadMoreClicks < 0 {
		return fmt.Errorf("load more clicks cannot be negative")
	}
	if c.PageTimeout <= 0 {
		return fmt.Errorf("page timeout must be positive")
	}
	if c.HoverWait < 0 {
		return fmt.Errorf("hover wait cannot be negative")
	}
	if c.RenderWait < 0 {
		return fmt.Errorf("render wait cannot be negative")
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue size must be positive")
	}
	if c.NavigationTTL <= 0 || c.CategoryTTL <= 0 || c.ProductListTTL <= 0 || c.ProductDetailTTL <= 0 {
		return fmt.Errorf("TTLs must be positive")
	}

	return nil
}
