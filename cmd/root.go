// Package cmd implements the retriever CLI surface from spec §6, one
// cobra.Command with its full flag set bound via pflag, grounded on
// theaidguild-kirk-ai/cmd's single-rootCmd-plus-init() convention.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/lukemcguire/retriever/engine"
	"github.com/lukemcguire/retriever/fsnames"
	"github.com/lukemcguire/retriever/policy"
	"github.com/lukemcguire/retriever/tui"
	"github.com/lukemcguire/retriever/urlutil"
	"github.com/lukemcguire/retriever/wireproto"
	"github.com/lukemcguire/retriever/worker"
)

var opts struct {
	// Recursion / scope (spec §6 recursion group)
	recursive      bool
	level          int
	noParent       bool
	spanHosts      bool
	httpsOnly      bool
	pageRequisites bool
	acceptDomains  []string
	rejectDomains  []string
	acceptNames    []string
	rejectNames    []string
	ignoreCase     bool

	// Naming (spec §6 naming group)
	directoryPrefix  string
	noDirectories    bool
	protocolDirs     bool
	noHostDirs       bool
	cutDirs          int
	restrictFileName string

	// Protocol / request shaping (spec §6 protocol group)
	userAgent    string
	referer      string
	headers      []string
	httpUser     string
	httpPassword string
	postData     string
	postFile     string
	keepAlive    bool
	noCache      bool

	// Write policy / retry (spec §6 write-policy group)
	tries       int
	waitRetry   time.Duration
	wait        time.Duration
	randomWait  bool
	maxRedirect int
	spider      bool

	// Policy (spec §6 policy group)
	robots bool

	// Runtime
	concurrency int
	rateRPS     int
	targetRTT   time.Duration
	quotaBytes  int64
	memoryMB    int64
	cookieFile  string
	hstsFile    string
	useBloom    bool

	httpProxies  []string
	httpsProxies []string
}

var rootCmd = &cobra.Command{
	Use:   "retriever [flags] <url>...",
	Short: "Recursively download a site over HTTP/HTTPS",
	Long: `retriever is a recursive HTTP/HTTPS downloader: it fetches one or more
start URLs, extracts links from HTML/CSS/sitemap/feed bodies, and follows
them under a configurable recursion, naming, and write policy.`,
	Args: cobra.MinimumNArgs(1),
	RunE: run,
}

// Execute runs the root command. It is called once from main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.Flags()

	f.BoolVarP(&opts.recursive, "recursive", "r", false, "turn on recursive retrieving")
	f.IntVar(&opts.level, "level", 5, "maximum recursion depth (-1 = infinite)")
	f.BoolVar(&opts.noParent, "parent", false, "allow ascending to the parent directory (off by default, which gives --no-parent behavior)")
	f.BoolVar(&opts.spanHosts, "span-hosts", false, "go to foreign hosts when recursive")
	f.BoolVar(&opts.httpsOnly, "https-only", false, "only follow https:// links")
	f.BoolVar(&opts.pageRequisites, "page-requisites", false, "get all images/css/js needed to display the page")
	f.StringSliceVar(&opts.acceptDomains, "domains", nil, "comma-separated list of accepted domains (glob patterns allowed)")
	f.StringSliceVar(&opts.rejectDomains, "exclude-domains", nil, "comma-separated list of rejected domains (glob patterns allowed)")
	f.StringSliceVar(&opts.acceptNames, "accept", nil, "comma-separated list of accepted filename suffixes/patterns")
	f.StringSliceVar(&opts.rejectNames, "reject", nil, "comma-separated list of rejected filename suffixes/patterns")
	f.BoolVar(&opts.ignoreCase, "ignore-case", false, "ignore case when matching --accept/--reject patterns (--domains/--exclude-domains always ignore case)")

	f.StringVarP(&opts.directoryPrefix, "directory-prefix", "P", ".", "save files under this prefix")
	f.BoolVar(&opts.noDirectories, "no-directories", false, "don't create a hierarchy of directories")
	f.BoolVar(&opts.protocolDirs, "protocol-directories", false, "prepend the protocol to directory names")
	f.BoolVar(&opts.noHostDirs, "no-host-directories", false, "don't create host directories")
	f.IntVar(&opts.cutDirs, "cut-dirs", 0, "ignore this many remote directory components")
	f.StringVar(&opts.restrictFileName, "restrict-file-names", "unix", "restrict characters in filenames (unix, windows, nocontrol, ascii, uppercase, lowercase)")

	f.StringVarP(&opts.userAgent, "user-agent", "U", "retriever/1.0", "identify as this user agent")
	f.StringVar(&opts.referer, "referer", "", "include Referer header")
	f.StringArrayVar(&opts.headers, "header", nil, "additional request header, \"Name: Value\"")
	f.StringVar(&opts.httpUser, "http-user", "", "HTTP authentication username")
	f.StringVar(&opts.httpPassword, "http-password", "", "HTTP authentication password")
	f.StringVar(&opts.postData, "post-data", "", "send a POST request with the given data")
	f.StringVar(&opts.postFile, "post-file", "", "send a POST request with the contents of this file")
	f.BoolVar(&opts.keepAlive, "keep-alive", true, "use HTTP keep-alive connections")
	f.BoolVar(&opts.noCache, "no-cache", false, "disallow server-cached responses")

	f.IntVarP(&opts.tries, "tries", "t", 20, "number of attempts per request (0 or 1 = a single attempt, no retry)")
	f.DurationVar(&opts.waitRetry, "waitretry", 10*time.Second, "upper bound on the backoff between retries (1s per retry, capped at this)")
	f.DurationVarP(&opts.wait, "wait", "w", 0, "wait between requests")
	f.BoolVar(&opts.randomWait, "random-wait", false, "randomize the wait between 0.5x and 1.5x --wait")
	f.IntVar(&opts.maxRedirect, "max-redirect", 20, "maximum redirects to follow per job")
	f.BoolVar(&opts.spider, "spider", false, "don't download anything, just check existence")

	f.BoolVar(&opts.robots, "robots", true, "obey robots.txt")

	f.IntVarP(&opts.concurrency, "jobs", "j", 4, "number of concurrent workers")
	f.IntVar(&opts.rateRPS, "limit-rate-initial", 4, "starting requests/sec per host before rate adaptation")
	f.DurationVar(&opts.targetRTT, "target-rtt", 500*time.Millisecond, "target round-trip time the adaptive limiter aims for")
	f.Int64Var(&opts.quotaBytes, "quota", 0, "stop after downloading this many bytes total (0 = unlimited)")
	f.Int64Var(&opts.memoryMB, "memory-limit", 0, "soft heap limit in MB before throttling (0 = unlimited)")
	f.StringVar(&opts.cookieFile, "load-cookies", "", "Netscape-format cookie file to load and persist")
	f.StringVar(&opts.hstsFile, "hsts-file", "", "HSTS database file to load and persist")
	f.BoolVar(&opts.useBloom, "mirror-scale", false, "use a bloom-filter-backed dedup set for very large crawls")

	f.StringSliceVar(&opts.httpProxies, "http-proxy", nil, "HTTP proxy URLs, round-robined")
	f.StringSliceVar(&opts.httpsProxies, "https-proxy", nil, "HTTPS proxy URLs, round-robined")
}

func run(cmd *cobra.Command, args []string) error {
	headers := wireproto.Params{}
	for _, h := range opts.headers {
		if kv, ok := splitHeader(h); ok {
			headers.Set(kv[0], kv[1])
		}
	}

	maxDepth := -1
	if opts.recursive {
		maxDepth = opts.level
	} else if opts.pageRequisites {
		maxDepth = 1
	} else {
		maxDepth = 0
	}

	cfg := engine.Config{
		StartURLs: args,

		Policy: policy.Config{
			HTTPSOnly:      opts.httpsOnly,
			NoParent:       !opts.noParent,
			SpanHosts:      opts.spanHosts,
			AcceptDomains:  urlutil.NewGlobSet(opts.acceptDomains, true),
			RejectDomains:  urlutil.NewGlobSet(opts.rejectDomains, true),
			AcceptNames:    urlutil.NewGlobSet(opts.acceptNames, opts.ignoreCase),
			RejectNames:    urlutil.NewGlobSet(opts.rejectNames, opts.ignoreCase),
			MaxRedirect:    opts.maxRedirect,
			MaxDepth:       maxDepth,
			PageRequisites: opts.pageRequisites,
			UserAgent:      opts.userAgent,
		},

		Naming: fsnames.Config{
			DirectoryPrefix: opts.directoryPrefix,
			NoDirectories:   opts.noDirectories,
			PrependProtocol: opts.protocolDirs,
			PrependHost:     !opts.noHostDirs,
			CutDirs:         opts.cutDirs,
			Restrict:        parseRestrict(opts.restrictFileName),
			Spider:          opts.spider,
		},

		Worker: worker.Config{
			Tries:       opts.tries,
			WaitRetry:   opts.waitRetry,
			Wait:        opts.wait,
			RandomWait:  opts.randomWait,
			UserAgent:   opts.userAgent,
			Referer:     opts.referer,
			KeepAlive:   opts.keepAlive,
			NoCache:     opts.noCache,
			Headers:     headers,
			PostData:    opts.postData,
			PostFile:    opts.postFile,
			MaxRedirect: opts.maxRedirect,
			HTTPUser:     opts.httpUser,
			HTTPPassword: opts.httpPassword,
			Spider:       opts.spider,
			RequestTimeout: 30 * time.Second,
		},

		RobotsEnabled: opts.robots,
		Concurrency:   opts.concurrency,

		UseBloom: opts.useBloom,

		CookieFile: opts.cookieFile,
		HSTSFile:   opts.hstsFile,

		QuotaBytes:    opts.quotaBytes,
		MemoryLimitMB: opts.memoryMB,

		RateInitialRPS: opts.rateRPS,
		RateTargetRTT:  opts.targetRTT,

		HTTPProxies:  opts.httpProxies,
		HTTPSProxies: opts.httpsProxies,
	}

	eng, err := engine.New(cfg)
	if err != nil {
		return fmt.Errorf("initialize engine: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	model := tui.NewModel(ctx, cancel, eng)
	program := tea.NewProgram(model)

	finalModel, err := program.Run()
	if err != nil {
		return fmt.Errorf("run dashboard: %w", err)
	}

	final := finalModel.(tui.Model)
	if code := final.ExitCode(); code != 0 {
		os.Exit(code)
	}
	return nil
}

func splitHeader(h string) ([2]string, bool) {
	for i := 0; i < len(h); i++ {
		if h[i] == ':' {
			name := h[:i]
			value := h[i+1:]
			for len(value) > 0 && value[0] == ' ' {
				value = value[1:]
			}
			return [2]string{name, value}, true
		}
	}
	return [2]string{}, false
}

func parseRestrict(name string) fsnames.RestrictPolicy {
	switch name {
	case "windows":
		return fsnames.RestrictWindows
	case "nocontrol":
		return fsnames.RestrictNoControl
	case "ascii":
		return fsnames.RestrictASCII
	case "uppercase":
		return fsnames.RestrictUppercase
	case "lowercase":
		return fsnames.RestrictLowercase
	default:
		return fsnames.RestrictUnix
	}
}
