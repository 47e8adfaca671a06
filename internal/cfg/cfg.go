package cfg

import (
	"errors"
	"flag"
	"fmt"
)

// Config adds vendorwatch-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string

	DatabaseURL string

	NATSURL   string
	FeedQueue string

	TenantDefaultsFile string

	ScanTickSeconds   int
	CorrelateWorkers  int
	SideEffectSeconds int
	VendorCacheTTL    int

	TaskAPIURL       string
	AssessmentAPIURL string
	WorkflowAPIURL   string
	DirectoryAPIURL  string
	PlatformAPIToken string

	SlackWebhookURL string
	TeamsWebhookURL string
	SMTPAddr        string
	SMTPFrom        string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on API requests (empty = no auth)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.StringVar(&c.NATSURL, "nats-url", "", "NATS server URL for the incident feed (empty = feed consumer disabled)")
	fs.StringVar(&c.FeedQueue, "feed-queue", "vendorwatch", "NATS queue group for the incident feed")
	fs.StringVar(&c.TenantDefaultsFile, "tenant-defaults-file", "", "YAML file overriding built-in tenant monitoring defaults")
	fs.IntVar(&c.ScanTickSeconds, "scan-tick-seconds", 900, "how often the scheduler checks tenants for a due scan (1..86400)")
	fs.IntVar(&c.CorrelateWorkers, "correlate-workers", 0, "matching worker pool size (0 = derive from CPU count)")
	fs.IntVar(&c.SideEffectSeconds, "side-effect-seconds", 30, "per-action timeout for automation side effects (1..300)")
	fs.IntVar(&c.VendorCacheTTL, "vendor-cache-ttl-seconds", 300, "vendor roster cache TTL (0 = no caching)")
	fs.StringVar(&c.TaskAPIURL, "task-api-url", "", "platform task service base URL (empty = task automation disabled)")
	fs.StringVar(&c.AssessmentAPIURL, "assessment-api-url", "", "platform assessment service base URL (empty = assessment automation disabled)")
	fs.StringVar(&c.WorkflowAPIURL, "workflow-api-url", "", "platform workflow service base URL (empty = workflow automation disabled)")
	fs.StringVar(&c.DirectoryAPIURL, "directory-api-url", "", "platform member directory base URL (empty = default assignees disabled)")
	fs.StringVar(&c.PlatformAPIToken, "platform-api-token", "", "bearer token for platform service calls")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for vendor alerts")
	fs.StringVar(&c.TeamsWebhookURL, "teams-webhook-url", "", "Microsoft Teams webhook URL for vendor alerts")
	fs.StringVar(&c.SMTPAddr, "smtp-addr", "", "SMTP host:port for email alerts (empty = email channel disabled)")
	fs.StringVar(&c.SMTPFrom, "smtp-from", "", "From address for email alerts")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.ScanTickSeconds <= 0 || c.ScanTickSeconds > 86400 {
		errs = append(errs, fmt.Errorf("invalid SCAN_TICK_SECONDS %d (must be 1..86400)", c.ScanTickSeconds))
	}
	if c.CorrelateWorkers < 0 {
		errs = append(errs, fmt.Errorf("invalid CORRELATE_WORKERS %d (must be >= 0)", c.CorrelateWorkers))
	}
	if c.SideEffectSeconds <= 0 || c.SideEffectSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SIDE_EFFECT_SECONDS %d (must be 1..300)", c.SideEffectSeconds))
	}
	if c.VendorCacheTTL < 0 {
		errs = append(errs, fmt.Errorf("invalid VENDOR_CACHE_TTL_SECONDS %d (must be >= 0)", c.VendorCacheTTL))
	}

	// Email needs both ends configured
	if (c.SMTPAddr == "") != (c.SMTPFrom == "") {
		errs = append(errs, errors.New("SMTP_ADDR and SMTP_FROM must be set together"))
	}

	// Platform clients authenticate with a shared token
	if c.PlatformAPIToken == "" &&
		(c.TaskAPIURL != "" || c.AssessmentAPIURL != "" || c.WorkflowAPIURL != "" || c.DirectoryAPIURL != "") {
		errs = append(errs, errors.New("PLATFORM_API_TOKEN is required when a platform service URL is set"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
