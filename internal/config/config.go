package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/crawlkit/engine/internal/extractor"
	"github.com/crawlkit/engine/internal/fetcher"
	"github.com/crawlkit/engine/internal/resolver"
)

type Config struct {
	//===============
	//  Crawl scope
	//===============
	// Initial pages to give to the crawler to begin discovering and traversing other pages.
	seedURLs []url.URL
	// Whitelisted hostnames. Build fills an empty set with the seed URLs' hosts
	allowedHosts map[string]struct{}
	// Which URL path segments are permitted to be fetched and traversed, even if the links are on the same domain
	allowedPathPrefix []string

	//===============
	// Limits
	//===============
	// Maximum number of hyperlink hops from a seed (root) URL
	maxDepth int
	// Maximum number of total documents are allowed to be fetched
	maxPages int

	//===============
	// Politeness
	//===============
	// Maximum number of crawl worker goroutines processing URLs concurrently;
	// it does not control OS threads or CPU parallelism.
	concurrency int
	// Minimum, fixed waiting time you enforce between two HTTP requests to the same host.
	baseDelay time.Duration
	// Randomized variation added on top of the base delay.
	// Intentional randomness applied to timing.
	jitter time.Duration
	// Controls the random number generator
	randomSeed int64
	// maximum attempt during retry
	maxAttempt int
	// initial delay for backoff
	backoffInitialDuration time.Duration
	// multiplier during exponential backoff
	backoffMultiplier float64
	// capped maximum delay for backoff to stop exponential multiplication
	backoffMaxDuration time.Duration

	//===============
	// Fetch
	//===============
	// Maximum time of a single fetch request
	timeout time.Duration
	// User agent that will be used in the request header. In raw string
	userAgent string

	//===============
	// Output
	//===============
	// Root directory in which results.jsonl (one JSON line per crawl result) is written
	outputDir string
	// Whether the program will simulates what it would do without
	// actually performing any irreversible or side-effecting actions
	dryRun bool

	//===============
	// Extraction
	//===============
	// BodySpecificityBias is the threshold for preferring a child container over <body>.
	// If a child node's score is >= BodySpecificityBias * bodyScore, the child is preferred.
	// Default: 0.75 (75%)
	bodySpecificityBias float64
	// LinkDensityThreshold is the maximum ratio of link text to total text before
	// applying a penalty. Higher values allow more link-heavy content.
	// Default: 0.80 (80%)
	linkDensityThreshold float64
	// ScoreMultiplierNonWhitespaceDivisor is the divisor for calculating text score.
	// Score gets +1 point per NonWhitespaceDivisor characters.
	// Default: 50.0
	scoreMultiplierNonWhitespaceDivisor float64
	// ScoreMultiplierParagraphs is the score multiplier for each paragraph element.
	// Default: 5.0
	scoreMultiplierParagraphs float64
	// ScoreMultiplierHeadings is the score multiplier for each heading element (h1-h3).
	// Default: 10.0
	scoreMultiplierHeadings float64
	// ScoreMultiplierCodeBlocks is the score multiplier for each code block.
	// Default: 15.0
	scoreMultiplierCodeBlocks float64
	// ScoreMultiplierListItems is the score multiplier for each list item.
	// Default: 2.0
	scoreMultiplierListItems float64
	// ThresholdMinNonWhitespace is the minimum number of non-whitespace characters
	// required for content to be considered meaningful.
	// Default: 50
	thresholdMinNonWhitespace int
	// ThresholdMinHeadings is the minimum number of headings required.
	// Headings are optional but valuable.
	// Default: 0
	thresholdMinHeadings int
	// ThresholdMinParagraphsOrCode is the minimum number of paragraphs OR code blocks
	// required for content to be considered meaningful.
	// Default: 1
	thresholdMinParagraphsOrCode int
	// ThresholdMaxLinkDensity is the maximum ratio of link text to total text before
	// content is considered navigation-only and rejected.
	// Default: 0.8 (80%)
	thresholdMaxLinkDensity float64

	//===============
	// Crawl identity & seeding
	//===============
	// crawlID tags every event/log line emitted by this run; generated if absent.
	crawlID string
	// sitemapURLs are extra sitemap documents to seed beyond what robots.txt advertises.
	sitemapURLs []url.URL
	// sitemapDiscoveryDisabled skips robots-advertised sitemap discovery entirely.
	sitemapDiscoveryDisabled bool

	//===============
	// Scheduling & budgets
	//===============
	// threadsPerCrawl is the fixed worker-pool size the coordinator launches.
	threadsPerCrawl int
	// maxDuration bounds total wall-clock crawl time; it defaults to 86400s, and 0 disables the limit.
	maxDuration time.Duration
	// maxUniqueURLCount bounds the VisitedSet; reaching it is a graceful termination trigger.
	maxUniqueURLCount int
	// statsDumpInterval is how often the coordinator emits a stats
	// snapshot event while Running (spec.md §4.9).
	statsDumpInterval time.Duration

	//===============
	// URL limits
	//===============
	urlLimits urlLimits

	//===============
	// Queue backend
	//===============
	// urlQueueBackend is a plain string (not a frontier.BackendName) to
	// avoid an import cycle: internal/frontier already imports this package.
	urlQueueBackend   string
	urlQueueSizeLimit int

	//===============
	// HTTP fetch (embeds the fetcher package's own option surface)
	//===============
	fetchOptions fetcher.Options

	//===============
	// DNS-filtering resolver policy
	//===============
	resolverPolicy resolver.Policy

	//===============
	// HTTP auth
	//===============
	httpAuthAllowed bool
	hostAuth        map[string]HostCredentials

	//===============
	// Output sink
	//===============
	outputSink string

	//===============
	// Field extraction caps (spec.md §6)
	//===============
	fieldLimits extractor.FieldLimits

	//===============
	// Content-extraction passthrough (for non-HTML, non-sitemap bodies)
	//===============
	contentExtractionEnabled   bool
	contentExtractionMimeTypes []string
	defaultEncoding            string

	//===============
	// Extraction ruleset (per-domain url_filters + opaque field rules)
	//===============
	domainsExtractionRules map[string]DomainExtractionRules
}

// urlLimits mirrors urlutil.Limits so this package doesn't have to import
// pkg/urlutil just to carry three ints around; the scheduler converts
// this to urlutil.Limits at wiring time.
type urlLimits struct {
	MaxURLLength   int
	MaxURLSegments int
	MaxURLParams   int
}

// HostCredentials is one entry of the per-host auth map spec.md §6 calls
// "auth": basic-auth credentials applied when http_auth_allowed is true.
type HostCredentials struct {
	Username string
	Password string
}

// DomainExtractionRules is the per-domain entry of domains_extraction_rules:
// url_filters (consumed by internal/ruleset) plus opaque field-extraction
// rules (consumed by an external collaborator, never interpreted here).
type DomainExtractionRules struct {
	URLFilters []URLFilterSpec
	Rules      map[string]string
}

// URLFilterSpec is the config-level shape of a url_filter entry; the
// scheduler/ruleset package turns these into compiled regexes.
type URLFilterSpec struct {
	Kind    string
	Pattern string
}

type configDTO struct {
	SeedURLs               []url.URL           `json:"seedUrls"`
	AllowedHosts           map[string]struct{} `json:"allowedHosts,omitempty"`
	AllowedPathPrefix      []string            `json:"allowedPathPrefix,omitempty"`
	MaxDepth               int                 `json:"maxDepth,omitempty"`
	MaxPages               int                 `json:"maxPages,omitempty"`
	Concurrency            int                 `json:"concurrency,omitempty"`
	BaseDelay              time.Duration       `json:"baseDelay,omitempty"`
	Jitter                 time.Duration       `json:"jitter,omitempty"`
	RandomSeed             int64               `json:"randomSeed,omitempty"`
	MaxAttempt             int                 `json:"maxAttempt,omitempty"`
	BackoffInitialDuration time.Duration       `json:"backoffInitialDuration,omitempty"`
	BackoffMultiplier      float64             `json:"backoffMultiplier,omitempty"`
	BackoffMaxDuration     time.Duration       `json:"backoffMaxDuration,omitempty"`
	Timeout                time.Duration       `json:"timeout,omitempty"`
	UserAgent              string              `json:"userAgent,omitempty"`
	OutputDir              string              `json:"outputDir,omitempty"`
	DryRun                 bool                `json:"dryRun,omitempty"`
	// Extraction parameters
	BodySpecificityBias                 float64 `json:"bodySpecificityBias,omitempty"`
	LinkDensityThreshold                float64 `json:"linkDensityThreshold,omitempty"`
	ScoreMultiplierNonWhitespaceDivisor float64 `json:"scoreMultiplierNonWhitespaceDivisor,omitempty"`
	ScoreMultiplierParagraphs           float64 `json:"scoreMultiplierParagraphs,omitempty"`
	ScoreMultiplierHeadings             float64 `json:"scoreMultiplierHeadings,omitempty"`
	ScoreMultiplierCodeBlocks           float64 `json:"scoreMultiplierCodeBlocks,omitempty"`
	ScoreMultiplierListItems            float64 `json:"scoreMultiplierListItems,omitempty"`
	ThresholdMinNonWhitespace           int     `json:"thresholdMinNonWhitespace,omitempty"`
	ThresholdMinHeadings                int     `json:"thresholdMinHeadings,omitempty"`
	ThresholdMinParagraphsOrCode        int     `json:"thresholdMinParagraphsOrCode,omitempty"`
	ThresholdMaxLinkDensity             float64 `json:"thresholdMaxLinkDensity,omitempty"`

	CrawlID                  string   `json:"crawlId,omitempty"`
	SitemapURLs              []url.URL `json:"sitemapUrls,omitempty"`
	SitemapDiscoveryDisabled bool     `json:"sitemapDiscoveryDisabled,omitempty"`

	ThreadsPerCrawl   int `json:"threadsPerCrawl,omitempty"`
	MaxDurationSec    int `json:"maxDurationSeconds,omitempty"`
	MaxUniqueURLCount int `json:"maxUniqueUrlCount,omitempty"`
	StatsDumpIntervalSec int `json:"statsDumpIntervalSeconds,omitempty"`

	MaxURLLength   int `json:"maxUrlLength,omitempty"`
	MaxURLSegments int `json:"maxUrlSegments,omitempty"`
	MaxURLParams   int `json:"maxUrlParams,omitempty"`

	URLQueueBackend   string `json:"urlQueue,omitempty"`
	URLQueueSizeLimit int    `json:"urlQueueSizeLimit,omitempty"`

	MaxRedirects         int           `json:"maxRedirects,omitempty"`
	MaxResponseSizeBytes int64         `json:"maxResponseSizeBytes,omitempty"`
	ConnectTimeout       time.Duration `json:"connectTimeout,omitempty"`
	SocketTimeout        time.Duration `json:"socketTimeout,omitempty"`
	RequestTimeout       time.Duration `json:"requestTimeout,omitempty"`
	CompressionEnabled   bool          `json:"compressionEnabled,omitempty"`
	HeadRequestsEnabled  bool          `json:"headRequestsEnabled,omitempty"`

	SSLVerificationMode string `json:"sslVerificationMode,omitempty"`

	HTTPProxyHost     string `json:"httpProxyHost,omitempty"`
	HTTPProxyPort     int    `json:"httpProxyPort,omitempty"`
	HTTPProxyProtocol string `json:"httpProxyProtocol,omitempty"`
	HTTPProxyUsername string `json:"httpProxyUsername,omitempty"`
	HTTPProxyPassword string `json:"httpProxyPassword,omitempty"`

	LoopbackAllowed        bool `json:"loopbackAllowed,omitempty"`
	PrivateNetworksAllowed bool `json:"privateNetworksAllowed,omitempty"`

	HTTPAuthAllowed bool                        `json:"httpAuthAllowed,omitempty"`
	HostAuth        map[string]HostCredentials `json:"auth,omitempty"`

	OutputSink string `json:"outputSink,omitempty"`

	MaxTitleSize           int `json:"maxTitleSize,omitempty"`
	MaxBodySize            int `json:"maxBodySize,omitempty"`
	MaxKeywordsSize        int `json:"maxKeywordsSize,omitempty"`
	MaxDescriptionSize     int `json:"maxDescriptionSize,omitempty"`
	MaxExtractedLinksCount int `json:"maxExtractedLinksCount,omitempty"`
	MaxIndexedLinksCount   int `json:"maxIndexedLinksCount,omitempty"`
	MaxHeadingsCount       int `json:"maxHeadingsCount,omitempty"`

	ContentExtractionEnabled   bool     `json:"contentExtractionEnabled,omitempty"`
	ContentExtractionMimeTypes []string `json:"contentExtractionMimeTypes,omitempty"`
	DefaultEncoding            string   `json:"defaultEncoding,omitempty"`

	DomainsExtractionRules map[string]DomainExtractionRules `json:"domainsExtractionRules,omitempty"`
}

func newConfigFromDTO(dto configDTO) (Config, error) {

	// Start with default config
	cfg, err := WithDefault(dto.SeedURLs).Build()
	if err != nil {
		return Config{}, err
	}

	// AllowedHosts can be empty - if so, default to seed URLs hostnames
	if len(dto.AllowedHosts) > 0 {
		cfg.allowedHosts = dto.AllowedHosts
	}

	// AllowedPathPrefix can be empty - always use DTO values
	cfg.allowedPathPrefix = dto.AllowedPathPrefix

	// For other fields, only override if non-zero value is provided
	if dto.MaxDepth != 0 {
		cfg.maxDepth = dto.MaxDepth
	}
	if dto.MaxPages != 0 {
		cfg.maxPages = dto.MaxPages
	}
	if dto.Concurrency != 0 {
		cfg.concurrency = dto.Concurrency
	}
	if dto.BaseDelay != 0 {
		cfg.baseDelay = dto.BaseDelay
	}
	if dto.Jitter != 0 {
		cfg.jitter = dto.Jitter
	}
	if dto.RandomSeed != 0 {
		cfg.randomSeed = dto.RandomSeed
	}
	if dto.MaxAttempt != 0 {
		cfg.maxAttempt = dto.MaxAttempt
	}
	if dto.BackoffInitialDuration != 0 {
		cfg.backoffInitialDuration = dto.BackoffInitialDuration
	}
	if dto.BackoffMultiplier != 0 {
		cfg.backoffMultiplier = dto.BackoffMultiplier
	}
	if dto.BackoffMaxDuration != 0 {
		cfg.backoffMaxDuration = dto.BackoffMaxDuration
	}

	if dto.Timeout != 0 {
		cfg.timeout = dto.Timeout
	}
	if dto.UserAgent != "" {
		cfg.userAgent = dto.UserAgent
	}
	if dto.OutputDir != "" {
		cfg.outputDir = dto.OutputDir
	}
	// DryRun is a boolean, check if explicitly set (we use the DTO value as-is since bool zero value is false)
	cfg.dryRun = dto.DryRun

	// Extraction parameters - only override if non-zero value is provided
	// For float64, we check if value is not 0 (which is also the zero value)
	if dto.BodySpecificityBias != 0 {
		cfg.bodySpecificityBias = dto.BodySpecificityBias
	}
	if dto.LinkDensityThreshold != 0 {
		cfg.linkDensityThreshold = dto.LinkDensityThreshold
	}
	if dto.ScoreMultiplierNonWhitespaceDivisor != 0 {
		cfg.scoreMultiplierNonWhitespaceDivisor = dto.ScoreMultiplierNonWhitespaceDivisor
	}
	if dto.ScoreMultiplierParagraphs != 0 {
		cfg.scoreMultiplierParagraphs = dto.ScoreMultiplierParagraphs
	}
	if dto.ScoreMultiplierHeadings != 0 {
		cfg.scoreMultiplierHeadings = dto.ScoreMultiplierHeadings
	}
	if dto.ScoreMultiplierCodeBlocks != 0 {
		cfg.scoreMultiplierCodeBlocks = dto.ScoreMultiplierCodeBlocks
	}
	if dto.ScoreMultiplierListItems != 0 {
		cfg.scoreMultiplierListItems = dto.ScoreMultiplierListItems
	}
	if dto.ThresholdMinNonWhitespace != 0 {
		cfg.thresholdMinNonWhitespace = dto.ThresholdMinNonWhitespace
	}
	// Note: ThresholdMinHeadings can be 0 (which is a valid value), so we don't check for non-zero
	cfg.thresholdMinHeadings = dto.ThresholdMinHeadings
	if dto.ThresholdMinParagraphsOrCode != 0 {
		cfg.thresholdMinParagraphsOrCode = dto.ThresholdMinParagraphsOrCode
	}
	if dto.ThresholdMaxLinkDensity != 0 {
		cfg.thresholdMaxLinkDensity = dto.ThresholdMaxLinkDensity
	}

	if dto.CrawlID != "" {
		cfg.crawlID = dto.CrawlID
	}
	if len(dto.SitemapURLs) > 0 {
		cfg.sitemapURLs = dto.SitemapURLs
	}
	cfg.sitemapDiscoveryDisabled = dto.SitemapDiscoveryDisabled

	if dto.ThreadsPerCrawl != 0 {
		cfg.threadsPerCrawl = dto.ThreadsPerCrawl
	}
	if dto.MaxDurationSec != 0 {
		cfg.maxDuration = time.Duration(dto.MaxDurationSec) * time.Second
	}
	if dto.MaxUniqueURLCount != 0 {
		cfg.maxUniqueURLCount = dto.MaxUniqueURLCount
	}
	if dto.StatsDumpIntervalSec != 0 {
		cfg.statsDumpInterval = time.Duration(dto.StatsDumpIntervalSec) * time.Second
	}

	if dto.MaxURLLength != 0 {
		cfg.urlLimits.MaxURLLength = dto.MaxURLLength
	}
	if dto.MaxURLSegments != 0 {
		cfg.urlLimits.MaxURLSegments = dto.MaxURLSegments
	}
	if dto.MaxURLParams != 0 {
		cfg.urlLimits.MaxURLParams = dto.MaxURLParams
	}

	if dto.URLQueueBackend != "" {
		cfg.urlQueueBackend = dto.URLQueueBackend
	}
	if dto.URLQueueSizeLimit != 0 {
		cfg.urlQueueSizeLimit = dto.URLQueueSizeLimit
	}

	if dto.MaxRedirects != 0 {
		cfg.fetchOptions.Redirect.MaxRedirects = dto.MaxRedirects
	}
	if dto.MaxResponseSizeBytes != 0 {
		cfg.fetchOptions.MaxResponseSizeBytes = dto.MaxResponseSizeBytes
	}
	if dto.ConnectTimeout != 0 {
		cfg.fetchOptions.Timeouts.Connect = dto.ConnectTimeout
	}
	if dto.SocketTimeout != 0 {
		cfg.fetchOptions.Timeouts.SocketIdle = dto.SocketTimeout
	}
	if dto.RequestTimeout != 0 {
		cfg.fetchOptions.Timeouts.RequestTotal = dto.RequestTimeout
	}
	cfg.fetchOptions.CompressionEnabled = dto.CompressionEnabled
	cfg.fetchOptions.HeadPreflightEnabled = dto.HeadRequestsEnabled

	if dto.SSLVerificationMode != "" {
		switch dto.SSLVerificationMode {
		case "full":
			cfg.fetchOptions.TLS.VerificationMode = fetcher.TLSVerifyFull
		case "certificate":
			cfg.fetchOptions.TLS.VerificationMode = fetcher.TLSVerifyCertificate
		case "none":
			cfg.fetchOptions.TLS.VerificationMode = fetcher.TLSVerifyNone
		}
	}

	if dto.HTTPProxyHost != "" {
		cfg.fetchOptions.Proxy.Enabled = true
		cfg.fetchOptions.Proxy.Host = dto.HTTPProxyHost
	}
	if dto.HTTPProxyPort != 0 {
		cfg.fetchOptions.Proxy.Port = dto.HTTPProxyPort
	}
	if dto.HTTPProxyProtocol != "" {
		cfg.fetchOptions.Proxy.Scheme = dto.HTTPProxyProtocol
	}
	if dto.HTTPProxyUsername != "" {
		cfg.fetchOptions.Proxy.Username = dto.HTTPProxyUsername
	}
	if dto.HTTPProxyPassword != "" {
		cfg.fetchOptions.Proxy.Password = dto.HTTPProxyPassword
	}

	cfg.resolverPolicy.LoopbackAllowed = dto.LoopbackAllowed
	cfg.resolverPolicy.PrivateNetworksAllowed = dto.PrivateNetworksAllowed

	cfg.httpAuthAllowed = dto.HTTPAuthAllowed
	if len(dto.HostAuth) > 0 {
		cfg.hostAuth = dto.HostAuth
	}

	if dto.OutputSink != "" {
		cfg.outputSink = dto.OutputSink
	}

	if dto.MaxTitleSize != 0 {
		cfg.fieldLimits.MaxTitleSize = dto.MaxTitleSize
	}
	if dto.MaxBodySize != 0 {
		cfg.fieldLimits.MaxBodySize = dto.MaxBodySize
	}
	if dto.MaxKeywordsSize != 0 {
		cfg.fieldLimits.MaxKeywordsSize = dto.MaxKeywordsSize
	}
	if dto.MaxDescriptionSize != 0 {
		cfg.fieldLimits.MaxDescriptionSize = dto.MaxDescriptionSize
	}
	if dto.MaxExtractedLinksCount != 0 {
		cfg.fieldLimits.MaxExtractedLinksCount = dto.MaxExtractedLinksCount
	}
	if dto.MaxIndexedLinksCount != 0 {
		cfg.fieldLimits.MaxIndexedLinksCount = dto.MaxIndexedLinksCount
	}
	if dto.MaxHeadingsCount != 0 {
		cfg.fieldLimits.MaxHeadingsCount = dto.MaxHeadingsCount
	}

	cfg.contentExtractionEnabled = dto.ContentExtractionEnabled
	if len(dto.ContentExtractionMimeTypes) > 0 {
		cfg.contentExtractionMimeTypes = dto.ContentExtractionMimeTypes
	}
	if dto.DefaultEncoding != "" {
		cfg.defaultEncoding = dto.DefaultEncoding
	}

	if len(dto.DomainsExtractionRules) > 0 {
		cfg.domainsExtractionRules = dto.DomainsExtractionRules
	}

	return cfg, nil
}

func WithConfigFile(path string) (Config, error) {
	_, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrFileDoesNotExist, err.Error())
	}
	configContent, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrReadConfigFail, err.Error())
	}
	cfgDTO := configDTO{}

	err = json.Unmarshal(configContent, &cfgDTO)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}

	cfg, err := newConfigFromDTO(cfgDTO)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WithDefault creates a new Config with the provided seed URLs and default values for all other fields.
// seedUrls is mandatory and must not be empty - an error will be returned if it is.
func WithDefault(seedUrls []url.URL) *Config {
	defaultConfig := Config{
		seedURLs:     seedUrls,
		allowedHosts: map[string]struct{}{},
		allowedPathPrefix: []string{
			"/",
		},
		maxDepth:               3,
		maxPages:               100,
		concurrency:            10,
		baseDelay:              time.Second,
		jitter:                 time.Millisecond * 500,
		randomSeed:             time.Now().UnixNano(),
		maxAttempt:             10,
		backoffInitialDuration: 100 * time.Millisecond,
		backoffMultiplier:      2.0,
		backoffMaxDuration:     10 * time.Second,
		timeout:                time.Second * 10,
		userAgent:              "docs-crawler/1.0",
		outputDir:              "output",
		dryRun:                 false,
		// Extraction defaults
		bodySpecificityBias:                 0.75,
		linkDensityThreshold:                0.80,
		scoreMultiplierNonWhitespaceDivisor: 50.0,
		scoreMultiplierParagraphs:           5.0,
		scoreMultiplierHeadings:             10.0,
		scoreMultiplierCodeBlocks:           15.0,
		scoreMultiplierListItems:            2.0,
		thresholdMinNonWhitespace:           50,
		thresholdMinHeadings:                0,
		thresholdMinParagraphsOrCode:        1,
		thresholdMaxLinkDensity:             0.8,

		threadsPerCrawl:   10,
		maxDuration:       86400 * time.Second,
		maxUniqueURLCount: 100000,
		statsDumpInterval: 30 * time.Second,

		urlLimits: urlLimits{
			MaxURLLength:   2048,
			MaxURLSegments: 16,
			MaxURLParams:   32,
		},

		urlQueueBackend:   "memory_only",
		urlQueueSizeLimit: 0,

		fetchOptions: fetcher.DefaultOptions,

		resolverPolicy: resolver.DefaultPolicy,

		outputSink: "console",

		fieldLimits: extractor.DefaultFieldLimits,

		contentExtractionEnabled: false,
		defaultEncoding:          "UTF-8",
	}
	// spec.md §6 documents a default of 10, overriding fetcher's own
	// more conservative built-in default of 3.
	defaultConfig.fetchOptions.Redirect.MaxRedirects = 10
	return &defaultConfig
}

func (c *Config) WithSeedUrls(urls []url.URL) *Config {
	c.seedURLs = urls
	return c
}

func (c *Config) WithAllowedHosts(hosts map[string]struct{}) *Config {
	c.allowedHosts = hosts
	return c
}

func (c *Config) WithAllowedPathPrefix(prefixes []string) *Config {
	c.allowedPathPrefix = prefixes
	return c
}

func (c *Config) WithMaxDepth(depth int) *Config {
	c.maxDepth = depth
	return c
}

func (c *Config) WithMaxPages(pages int) *Config {
	c.maxPages = pages
	return c
}

func (c *Config) WithConcurrency(concurrency int) *Config {
	c.concurrency = concurrency
	return c
}

func (c *Config) WithBaseDelay(delay time.Duration) *Config {
	c.baseDelay = delay
	return c
}

func (c *Config) WithJitter(jitter time.Duration) *Config {
	c.jitter = jitter
	return c
}

func (c *Config) WithRandomSeed(seed int64) *Config {
	c.randomSeed = seed
	return c
}

func (c *Config) WithMaxAttempt(attempts int) *Config {
	c.maxAttempt = attempts
	return c
}

func (c *Config) WithBackoffInitialDuration(duration time.Duration) *Config {
	c.backoffInitialDuration = duration
	return c
}

func (c *Config) WithBackoffMultiplier(multiplier float64) *Config {
	c.backoffMultiplier = multiplier
	return c
}

func (c *Config) WithBackoffMaxDuration(duration time.Duration) *Config {
	c.backoffMaxDuration = duration
	return c
}

func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.timeout = timeout
	return c
}

func (c *Config) WithUserAgent(agent string) *Config {
	c.userAgent = agent
	return c
}

func (c *Config) WithOutputDir(outputDir string) *Config {
	c.outputDir = outputDir
	return c
}

func (c *Config) WithDryRun(dryRun bool) *Config {
	c.dryRun = dryRun
	return c
}

func (c *Config) WithBodySpecificityBias(bias float64) *Config {
	c.bodySpecificityBias = bias
	return c
}

func (c *Config) WithLinkDensityThreshold(threshold float64) *Config {
	c.linkDensityThreshold = threshold
	return c
}

func (c *Config) WithScoreMultiplierNonWhitespaceDivisor(divisor float64) *Config {
	c.scoreMultiplierNonWhitespaceDivisor = divisor
	return c
}

func (c *Config) WithScoreMultiplierParagraphs(multiplier float64) *Config {
	c.scoreMultiplierParagraphs = multiplier
	return c
}

func (c *Config) WithScoreMultiplierHeadings(multiplier float64) *Config {
	c.scoreMultiplierHeadings = multiplier
	return c
}

func (c *Config) WithScoreMultiplierCodeBlocks(multiplier float64) *Config {
	c.scoreMultiplierCodeBlocks = multiplier
	return c
}

func (c *Config) WithScoreMultiplierListItems(multiplier float64) *Config {
	c.scoreMultiplierListItems = multiplier
	return c
}

func (c *Config) WithThresholdMinNonWhitespace(min int) *Config {
	c.thresholdMinNonWhitespace = min
	return c
}

func (c *Config) WithThresholdMinHeadings(min int) *Config {
	c.thresholdMinHeadings = min
	return c
}

func (c *Config) WithThresholdMinParagraphsOrCode(min int) *Config {
	c.thresholdMinParagraphsOrCode = min
	return c
}

func (c *Config) WithThresholdMaxLinkDensity(max float64) *Config {
	c.thresholdMaxLinkDensity = max
	return c
}

func (c *Config) WithCrawlID(id string) *Config {
	c.crawlID = id
	return c
}

func (c *Config) WithSitemapURLs(urls []url.URL) *Config {
	c.sitemapURLs = urls
	return c
}

func (c *Config) WithSitemapDiscoveryDisabled(disabled bool) *Config {
	c.sitemapDiscoveryDisabled = disabled
	return c
}

func (c *Config) WithThreadsPerCrawl(n int) *Config {
	c.threadsPerCrawl = n
	return c
}

func (c *Config) WithMaxDuration(d time.Duration) *Config {
	c.maxDuration = d
	return c
}

func (c *Config) WithStatsDumpInterval(d time.Duration) *Config {
	c.statsDumpInterval = d
	return c
}

func (c *Config) WithMaxUniqueURLCount(n int) *Config {
	c.maxUniqueURLCount = n
	return c
}

func (c *Config) WithMaxURLLength(n int) *Config {
	c.urlLimits.MaxURLLength = n
	return c
}

func (c *Config) WithMaxURLSegments(n int) *Config {
	c.urlLimits.MaxURLSegments = n
	return c
}

func (c *Config) WithMaxURLParams(n int) *Config {
	c.urlLimits.MaxURLParams = n
	return c
}

func (c *Config) WithURLQueueBackend(backend string) *Config {
	c.urlQueueBackend = backend
	return c
}

func (c *Config) WithURLQueueSizeLimit(n int) *Config {
	c.urlQueueSizeLimit = n
	return c
}

func (c *Config) WithFetchOptions(opts fetcher.Options) *Config {
	c.fetchOptions = opts
	return c
}

func (c *Config) WithResolverPolicy(policy resolver.Policy) *Config {
	c.resolverPolicy = policy
	return c
}

func (c *Config) WithHTTPAuthAllowed(allowed bool) *Config {
	c.httpAuthAllowed = allowed
	return c
}

func (c *Config) WithHostAuth(auth map[string]HostCredentials) *Config {
	c.hostAuth = auth
	return c
}

func (c *Config) WithOutputSink(sink string) *Config {
	c.outputSink = sink
	return c
}

func (c *Config) WithFieldLimits(limits extractor.FieldLimits) *Config {
	c.fieldLimits = limits
	return c
}

func (c *Config) WithContentExtractionEnabled(enabled bool) *Config {
	c.contentExtractionEnabled = enabled
	return c
}

func (c *Config) WithContentExtractionMimeTypes(mimeTypes []string) *Config {
	c.contentExtractionMimeTypes = mimeTypes
	return c
}

func (c *Config) WithDefaultEncoding(encoding string) *Config {
	c.defaultEncoding = encoding
	return c
}

func (c *Config) WithDomainsExtractionRules(rules map[string]DomainExtractionRules) *Config {
	c.domainsExtractionRules = rules
	return c
}

func (c *Config) Build() (Config, error) {
	if len(c.seedURLs) == 0 {
		return Config{}, fmt.Errorf("%w: seedUrls cannot be empty", ErrInvalidConfig)
	}

	// If allowedHosts is empty, default to seed URLs hostnames
	if len(c.allowedHosts) == 0 {
		c.allowedHosts = make(map[string]struct{})
		for _, u := range c.seedURLs {
			if u.Host != "" {
				c.allowedHosts[u.Host] = struct{}{}
			}
		}
	}

	return *c, nil
}

func (c Config) SeedURLs() []url.URL {
	urls := make([]url.URL, len(c.seedURLs))
	copy(urls, c.seedURLs)
	return urls
}

func (c Config) AllowedHosts() map[string]struct{} {
	hosts := make(map[string]struct{})
	for k, v := range c.allowedHosts {
		hosts[k] = v
	}
	return hosts
}

func (c Config) AllowedPathPrefix() []string {
	prefixes := make([]string, len(c.allowedPathPrefix))
	copy(prefixes, c.allowedPathPrefix)
	return prefixes
}

func (c Config) MaxDepth() int {
	return c.maxDepth
}

func (c Config) MaxPages() int {
	return c.maxPages
}

func (c Config) Concurrency() int {
	return c.concurrency
}

func (c Config) BaseDelay() time.Duration {
	return c.baseDelay
}

func (c Config) Jitter() time.Duration {
	return c.jitter
}

func (c Config) RandomSeed() int64 {
	return c.randomSeed
}

func (c Config) Timeout() time.Duration {
	return c.timeout
}

func (c Config) UserAgent() string {
	return c.userAgent
}

func (c Config) OutputDir() string {
	return c.outputDir
}

func (c Config) DryRun() bool {
	return c.dryRun
}

func (c Config) MaxAttempt() int {
	return c.maxAttempt
}

func (c Config) BackoffInitialDuration() time.Duration {
	return c.backoffInitialDuration
}

func (c Config) BackoffMultiplier() float64 {
	return c.backoffMultiplier
}

func (c Config) BackoffMaxDuration() time.Duration {
	return c.backoffMaxDuration
}

func (c Config) BodySpecificityBias() float64 {
	return c.bodySpecificityBias
}

func (c Config) LinkDensityThreshold() float64 {
	return c.linkDensityThreshold
}

func (c Config) ScoreMultiplierNonWhitespaceDivisor() float64 {
	return c.scoreMultiplierNonWhitespaceDivisor
}

func (c Config) ScoreMultiplierParagraphs() float64 {
	return c.scoreMultiplierParagraphs
}

func (c Config) ScoreMultiplierHeadings() float64 {
	return c.scoreMultiplierHeadings
}

func (c Config) ScoreMultiplierCodeBlocks() float64 {
	return c.scoreMultiplierCodeBlocks
}

func (c Config) ScoreMultiplierListItems() float64 {
	return c.scoreMultiplierListItems
}

func (c Config) ThresholdMinNonWhitespace() int {
	return c.thresholdMinNonWhitespace
}

func (c Config) ThresholdMinHeadings() int {
	return c.thresholdMinHeadings
}

func (c Config) ThresholdMinParagraphsOrCode() int {
	return c.thresholdMinParagraphsOrCode
}

func (c Config) ThresholdMaxLinkDensity() float64 {
	return c.thresholdMaxLinkDensity
}

func (c Config) CrawlID() string {
	return c.crawlID
}

func (c Config) SitemapURLs() []url.URL {
	urls := make([]url.URL, len(c.sitemapURLs))
	copy(urls, c.sitemapURLs)
	return urls
}

func (c Config) SitemapDiscoveryDisabled() bool {
	return c.sitemapDiscoveryDisabled
}

func (c Config) ThreadsPerCrawl() int {
	return c.threadsPerCrawl
}

func (c Config) MaxDuration() time.Duration {
	return c.maxDuration
}

func (c Config) StatsDumpInterval() time.Duration {
	return c.statsDumpInterval
}

func (c Config) MaxUniqueURLCount() int {
	return c.maxUniqueURLCount
}

func (c Config) MaxURLLength() int {
	return c.urlLimits.MaxURLLength
}

func (c Config) MaxURLSegments() int {
	return c.urlLimits.MaxURLSegments
}

func (c Config) MaxURLParams() int {
	return c.urlLimits.MaxURLParams
}

func (c Config) URLQueueBackend() string {
	return c.urlQueueBackend
}

func (c Config) URLQueueSizeLimit() int {
	return c.urlQueueSizeLimit
}

func (c Config) FetchOptions() fetcher.Options {
	return c.fetchOptions
}

func (c Config) ResolverPolicy() resolver.Policy {
	return c.resolverPolicy
}

func (c Config) HTTPAuthAllowed() bool {
	return c.httpAuthAllowed
}

func (c Config) HostAuth() map[string]HostCredentials {
	auth := make(map[string]HostCredentials, len(c.hostAuth))
	for k, v := range c.hostAuth {
		auth[k] = v
	}
	return auth
}

func (c Config) OutputSink() string {
	return c.outputSink
}

func (c Config) FieldLimits() extractor.FieldLimits {
	return c.fieldLimits
}

func (c Config) ContentExtractionEnabled() bool {
	return c.contentExtractionEnabled
}

func (c Config) ContentExtractionMimeTypes() []string {
	types := make([]string, len(c.contentExtractionMimeTypes))
	copy(types, c.contentExtractionMimeTypes)
	return types
}

func (c Config) DefaultEncoding() string {
	return c.defaultEncoding
}

func (c Config) DomainsExtractionRules() map[string]DomainExtractionRules {
	rules := make(map[string]DomainExtractionRules, len(c.domainsExtractionRules))
	for k, v := range c.domainsExtractionRules {
		rules[k] = v
	}
	return rules
}
