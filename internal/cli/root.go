package cmd

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crawlkit/engine/internal/config"
	"github.com/crawlkit/engine/internal/metadata"
	"github.com/crawlkit/engine/internal/scheduler"
	"github.com/spf13/cobra"
)

var (
	cfgFile           string
	seedURLs          []string
	maxDepth          int
	concurrency       int
	outputDir         string
	dryRun            bool
	maxPages          int
	userAgent         string
	timeout           time.Duration
	baseDelay         time.Duration
	jitter            time.Duration
	randomSeed        int64
	allowedHosts      []string
	allowedPathPrefix []string

	crawlID              string
	threadsPerCrawl      int
	maxDuration          time.Duration
	maxUniqueURLCount    int
	statsDumpInterval    time.Duration
	urlQueueBackend      string
	urlQueueSizeLimit    int
	outputSink           string
	sitemapURLs          []string
	disableSitemapScan   bool
)

// parseStringSliceToSet converts a string slice to a map[string]struct{} set
func parseStringSliceToSet(strings []string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, s := range strings {
		if s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}

// parseSeedURLs converts a string slice of URLs to []url.URL
func parseSeedURLs(urlStrings []string) ([]url.URL, error) {
	if len(urlStrings) == 0 {
		return nil, fmt.Errorf("seed URLs cannot be empty")
	}

	var urls []url.URL
	for _, urlStr := range urlStrings {
		parsedURL, err := url.Parse(urlStr)
		if err != nil {
			return nil, fmt.Errorf("error parsing seed URL %s: %w", urlStr, err)
		}
		urls = append(urls, *parsedURL)
	}
	return urls, nil
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "docs-crawler",
	Short: "A local-only documentation crawler.",
	Long: `docs-crawler is a CLI application that crawls static documentation
websites within allowlist, depth and budget limits, respecting robots.txt.

Each fetched page yields one crawl result record (URL, title, headings,
body text and links) written to the configured output sink, and a summary
line is printed when the crawl ends.`,
	Run: func(cmd *cobra.Command, args []string) {
		// Check if seed URLs are provided
		if len(seedURLs) == 0 {
			fmt.Fprintf(os.Stderr, "Error: --seed-url is required. Please provide at least one seed URL to start crawling.\n")
			cmd.Usage()
			os.Exit(2)
		}

		// Parse seed URLs
		parsedURLs, err := parseSeedURLs(seedURLs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(2)
		}

		cfg, err := InitConfigWithError(parsedURLs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(2)
		}

		eventSink := metadata.NewJSONLineEventSink(os.Stderr)
		defer eventSink.Close()
		metadataSink := metadata.NewRecorder(eventSink)

		sched, err := scheduler.NewScheduler(cfg, metadataSink, os.Stdout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(2)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		summary, err := sched.ExecuteCrawl(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Crawl failed: %s\n", err)
			os.Exit(3)
		}

		fmt.Printf(
			"Crawl %s finished: reason=%s pages=%d errors=%d assets=%d duration=%s\n",
			summary.CrawlID, summary.Reason, summary.PagesVisited,
			summary.TotalErrors, summary.TotalAssets, summary.Duration,
		)

		if summary.Reason == scheduler.ReasonExternalStop && ctx.Err() != nil {
			os.Exit(4)
		}
		os.Exit(0)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Here you will define your flags and configuration settings.
	// Cobra supports persistent flags, which, if defined here,
	// will be available to all subcommands in the docs-crawler application.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "config file path (e.g., /home/myuser/config.json)")
	rootCmd.PersistentFlags().StringArrayVar(&seedURLs, "seed-url", []string{}, "one or more starting URLs (can be repeated)")
	rootCmd.PersistentFlags().IntVar(&maxDepth, "max-depth", 5, "maximum link depth from seed URL")
	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 3, "number of concurrent fetch workers")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output-dir", "output", "root output directory for crawled content")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "crawl without writing output")
	rootCmd.PersistentFlags().IntVar(&maxPages, "max-pages", 0, "maximum number of pages to fetch (0 keeps the default of 100)")
	rootCmd.PersistentFlags().StringVar(&userAgent, "user-agent", "", "user agent string for HTTP requests")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "timeout for HTTP requests")
	rootCmd.PersistentFlags().DurationVar(&baseDelay, "base-delay", 0, "base delay between HTTP requests to the same host")
	rootCmd.PersistentFlags().DurationVar(&jitter, "jitter", 0, "random jitter added to base delay")
	rootCmd.PersistentFlags().Int64Var(&randomSeed, "random-seed", 0, "seed for random number generation (0 for current time)")
	rootCmd.PersistentFlags().StringArrayVar(&allowedHosts, "allowed-host", []string{}, "explicit hostname allowlist (defaults to seed host)")
	rootCmd.PersistentFlags().StringArrayVar(&allowedPathPrefix, "allowed-path-prefix", []string{}, "restrict crawl to paths like `/docs`, `/guide`")

	rootCmd.PersistentFlags().StringVar(&crawlID, "crawl-id", "", "identifier for this crawl run (defaults to a generated id)")
	rootCmd.PersistentFlags().IntVar(&threadsPerCrawl, "threads-per-crawl", 0, "number of worker goroutines fetching concurrently")
	rootCmd.PersistentFlags().DurationVar(&maxDuration, "max-duration", 0, "maximum wall-clock duration for the crawl (0 keeps the default of 24h)")
	rootCmd.PersistentFlags().IntVar(&maxUniqueURLCount, "max-unique-url-count", 0, "maximum number of distinct URLs to visit (0 keeps the default of 100000)")
	rootCmd.PersistentFlags().DurationVar(&statsDumpInterval, "stats-dump-interval", 0, "interval between periodic crawl stats snapshots")
	rootCmd.PersistentFlags().StringVar(&urlQueueBackend, "url-queue-backend", "", "visited-set backend for the frontier (memory_only or file_backed)")
	rootCmd.PersistentFlags().IntVar(&urlQueueSizeLimit, "url-queue-size-limit", 0, "maximum number of URLs held in the frontier queue (0 for unlimited)")
	rootCmd.PersistentFlags().StringVar(&outputSink, "output-sink", "", "output sink kind (e.g. file, console)")
	rootCmd.PersistentFlags().StringArrayVar(&sitemapURLs, "sitemap-url", []string{}, "explicit sitemap URL to seed (can be repeated)")
	rootCmd.PersistentFlags().BoolVar(&disableSitemapScan, "disable-sitemap-scan", false, "disable sitemap discovery via robots.txt")
}

// InitConfig reads in config file and ENV variables if set.
// seedUrls is a mandatory parameter and must contain at least one valid URL.
func InitConfig(seedUrls []url.URL) config.Config {
	cfg, err := InitConfigWithError(seedUrls)
	if err != nil {
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	}
	return cfg
}

// InitConfigWithError reads in config file and ENV variables if set, returning any errors.
// seedUrls is a mandatory parameter and must contain at least one valid URL.
// This makes it easier to test error cases.
func InitConfigWithError(seedUrls []url.URL) (config.Config, error) {
	if len(seedUrls) == 0 {
		return config.Config{}, fmt.Errorf("%w: seedUrls cannot be empty", config.ErrInvalidConfig)
	}

	if cfgFile != "" {
		fmt.Printf("Initializing config from file: %s\n", cfgFile)
		cfg, err := config.WithConfigFile(cfgFile)
		if err != nil {
			return cfg, fmt.Errorf("error initializing config from file: %w", err)
		}
		return cfg, nil
	}

	// Build config from CLI flags using the With... functions with method chaining
	fmt.Println("No config file specified. Using default flag values or environment variables")

	// Start with default config using provided seed URLs and apply overrides using method chaining
	configBuilder := config.WithDefault(seedUrls)

	// Override with CLI flag values where provided
	if maxDepth > 0 {
		configBuilder = configBuilder.WithMaxDepth(maxDepth)
	}

	if concurrency > 0 {
		configBuilder = configBuilder.WithConcurrency(concurrency)
	}

	if outputDir != "" && outputDir != "output" {
		configBuilder = configBuilder.WithOutputDir(outputDir)
	}

	if dryRun {
		configBuilder = configBuilder.WithDryRun(dryRun)
	}

	if maxPages > 0 {
		configBuilder = configBuilder.WithMaxPages(maxPages)
	}

	if userAgent != "" {
		configBuilder = configBuilder.WithUserAgent(userAgent)
	}

	if timeout > 0 {
		configBuilder = configBuilder.WithTimeout(timeout)
	}

	if baseDelay > 0 {
		configBuilder = configBuilder.WithBaseDelay(baseDelay)
	}

	if jitter > 0 {
		configBuilder = configBuilder.WithJitter(jitter)
	}

	if randomSeed != 0 {
		configBuilder = configBuilder.WithRandomSeed(randomSeed)
	}

	if len(allowedHosts) > 0 {
		configBuilder = configBuilder.WithAllowedHosts(parseStringSliceToSet(allowedHosts))
	}

	if len(allowedPathPrefix) > 0 {
		configBuilder = configBuilder.WithAllowedPathPrefix(allowedPathPrefix)
	}

	if crawlID != "" {
		configBuilder = configBuilder.WithCrawlID(crawlID)
	}

	if threadsPerCrawl > 0 {
		configBuilder = configBuilder.WithThreadsPerCrawl(threadsPerCrawl)
	}

	if maxDuration > 0 {
		configBuilder = configBuilder.WithMaxDuration(maxDuration)
	}

	if maxUniqueURLCount > 0 {
		configBuilder = configBuilder.WithMaxUniqueURLCount(maxUniqueURLCount)
	}

	if statsDumpInterval > 0 {
		configBuilder = configBuilder.WithStatsDumpInterval(statsDumpInterval)
	}

	if urlQueueBackend != "" {
		configBuilder = configBuilder.WithURLQueueBackend(urlQueueBackend)
	}

	if urlQueueSizeLimit > 0 {
		configBuilder = configBuilder.WithURLQueueSizeLimit(urlQueueSizeLimit)
	}

	if outputSink != "" {
		configBuilder = configBuilder.WithOutputSink(outputSink)
	}

	if len(sitemapURLs) > 0 {
		parsedSitemapURLs, err := parseSeedURLs(sitemapURLs)
		if err != nil {
			return config.Config{}, fmt.Errorf("error parsing sitemap URL: %w", err)
		}
		configBuilder = configBuilder.WithSitemapURLs(parsedSitemapURLs)
	}

	if disableSitemapScan {
		configBuilder = configBuilder.WithSitemapDiscoveryDisabled(true)
	}

	cfg, err := configBuilder.Build()
	if err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func ResetFlags() {
	cfgFile = ""
	seedURLs = []string{}
	maxDepth = 0
	concurrency = 0
	outputDir = ""
	dryRun = false
	maxPages = 0
	userAgent = ""
	timeout = 0
	baseDelay = 0
	jitter = 0
	randomSeed = 0
	allowedHosts = []string{}
	allowedPathPrefix = []string{}

	crawlID = ""
	threadsPerCrawl = 0
	maxDuration = 0
	maxUniqueURLCount = 0
	statsDumpInterval = 0
	urlQueueBackend = ""
	urlQueueSizeLimit = 0
	outputSink = ""
	sitemapURLs = []string{}
	disableSitemapScan = false
}

// Test helper functions to set flag values from tests
func SetConfigFileForTest(path string) {
	cfgFile = path
}

func SetSeedURLsForTest(urls []string) {
	seedURLs = urls
}

func SetMaxDepthForTest(depth int) {
	maxDepth = depth
}

func SetConcurrencyForTest(conc int) {
	concurrency = conc
}

func SetOutputDirForTest(dir string) {
	outputDir = dir
}

func SetDryRunForTest(dry bool) {
	dryRun = dry
}

func SetMaxPagesForTest(pages int) {
	maxPages = pages
}

func SetUserAgentForTest(agent string) {
	userAgent = agent
}

func SetTimeoutForTest(t time.Duration) {
	timeout = t
}

func SetBaseDelayForTest(delay time.Duration) {
	baseDelay = delay
}

func SetJitterForTest(j time.Duration) {
	jitter = j
}

func SetRandomSeedForTest(seed int64) {
	randomSeed = seed
}

func SetAllowedHostsForTest(hosts []string) {
	allowedHosts = hosts
}

func SetAllowedPathPrefixForTest(prefixes []string) {
	allowedPathPrefix = prefixes
}

func SetCrawlIDForTest(id string) {
	crawlID = id
}

func SetThreadsPerCrawlForTest(n int) {
	threadsPerCrawl = n
}

func SetMaxDurationForTest(d time.Duration) {
	maxDuration = d
}

func SetMaxUniqueURLCountForTest(n int) {
	maxUniqueURLCount = n
}

func SetStatsDumpIntervalForTest(d time.Duration) {
	statsDumpInterval = d
}

func SetURLQueueBackendForTest(backend string) {
	urlQueueBackend = backend
}

func SetURLQueueSizeLimitForTest(n int) {
	urlQueueSizeLimit = n
}

func SetOutputSinkForTest(sink string) {
	outputSink = sink
}

func SetSitemapURLsForTest(urls []string) {
	sitemapURLs = urls
}

func SetDisableSitemapScanForTest(disabled bool) {
	disableSitemapScan = disabled
}
