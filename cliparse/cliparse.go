package cliparse

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Run modes
const (
	ModeServer = "server"
	ModeWorker = "worker"
)

type Config struct {
	Mode         string
	Port         int
	DatabaseURL  string
	DatabaseType string
	RedisURL     string
	AdminKeySalt string
	LogLevel     string
	LogFormat    string

	// Slack
	SlackBotToken       string
	SlackSigningSecret  string
	SlackBotUserID      string
	SlackAdminChannelID string

	// Twilio
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioCallbackURL string
	PublicBaseURL     string

	// Helpline behavior
	ClientOrganization string
	RequireDisclaimer  bool
	DemoGatewayNumbers []string
	DemoVoterNumbers   []string
	// gateway number -> region, for PUSH numbers
	PushNumberRegions map[string]string
	PushInterval      time.Duration

	// Background work
	LambdaTaskFunction string
	SentryDSN          string
}

// ParseFlags validates flags and builds the configuration
func ParseFlags(args []string) (Config, error) {
	var cfg Config
	var envFile, demoGateways, demoVoters, pushRegions, requireDisclaimer, pushInterval string

	fs := flag.NewFlagSet("helpline-router", flag.ContinueOnError)

	fs.StringVar(&envFile, "env-file", ".env", "Optional dotenv file")
	fs.StringVar(&cfg.Mode, "mode", "", "Run mode (server or worker)")

	// Network config (can be CLI args or env)
	fs.IntVar(&cfg.Port, "p", 0, "Server port")
	fs.StringVar(&cfg.DatabaseURL, "d", "", "Database URL")
	fs.StringVar(&cfg.DatabaseType, "t", "", "Database type (sqlite or postgres)")
	fs.StringVar(&cfg.RedisURL, "r", "", "Redis URL (empty uses in-memory cache)")

	// Secrets (prefer env variables, but allow CLI for dev)
	fs.StringVar(&cfg.AdminKeySalt, "admin-salt", "", "Admin key salt (prefer env)")
	fs.StringVar(&cfg.SlackBotToken, "slack-token", "", "Slack bot token (prefer env)")
	fs.StringVar(&cfg.SlackSigningSecret, "slack-secret", "", "Slack signing secret (prefer env)")
	fs.StringVar(&cfg.TwilioAuthToken, "twilio-token", "", "Twilio auth token (prefer env)")

	fs.StringVar(&requireDisclaimer, "require-disclaimer", "", "Require voters to agree to the disclaimer (true/false)")
	fs.StringVar(&demoGateways, "demo-gateways", "", "Comma-separated demo gateway numbers")
	fs.StringVar(&demoVoters, "demo-voters", "", "Comma-separated demo tester numbers")
	fs.StringVar(&pushRegions, "push-regions", "", "Comma-separated number=Region pairs for PUSH numbers")
	fs.StringVar(&pushInterval, "push-interval", "", "Delay between outreach texts")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	// A missing .env is normal outside local development
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	// Fall back to environment variables
	cfg.Mode = firstNonEmpty(cfg.Mode, os.Getenv("RUN_MODE"), ModeServer)
	if cfg.Mode != ModeServer && cfg.Mode != ModeWorker {
		return Config{}, fmt.Errorf("invalid run mode %q", cfg.Mode)
	}

	if cfg.Port == 0 {
		if portStr := os.Getenv("PORT"); portStr != "" {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return Config{}, errors.New("invalid PORT env variable")
			}
			cfg.Port = port
		} else {
			cfg.Port = 8080 // default
		}
	}

	cfg.DatabaseURL = firstNonEmpty(cfg.DatabaseURL, os.Getenv("DATABASE_URL"))
	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("database URL required (use -d or DATABASE_URL env)")
	}
	cfg.DatabaseType = firstNonEmpty(cfg.DatabaseType, os.Getenv("DATABASE_TYPE"), "postgres")
	if cfg.DatabaseType != "postgres" && cfg.DatabaseType != "sqlite" {
		return Config{}, fmt.Errorf("invalid database type %q", cfg.DatabaseType)
	}
	cfg.RedisURL = firstNonEmpty(cfg.RedisURL, os.Getenv("REDISCLOUD_URL"), os.Getenv("REDIS_URL"))
	cfg.LogLevel = firstNonEmpty(os.Getenv("LOG_LEVEL"), "info")
	cfg.LogFormat = firstNonEmpty(os.Getenv("LOG_FORMAT"), "text")

	// Secrets - MUST be provided
	cfg.AdminKeySalt = firstNonEmpty(cfg.AdminKeySalt, os.Getenv("ADMIN_KEY_SALT"))
	if cfg.AdminKeySalt == "" {
		return Config{}, errors.New("ADMIN_KEY_SALT required")
	}
	cfg.SlackBotToken = firstNonEmpty(cfg.SlackBotToken, os.Getenv("SLACK_BOT_ACCESS_TOKEN"))
	if cfg.SlackBotToken == "" {
		return Config{}, errors.New("SLACK_BOT_ACCESS_TOKEN required")
	}
	cfg.SlackSigningSecret = firstNonEmpty(cfg.SlackSigningSecret, os.Getenv("SLACK_SIGNING_SECRET"))
	if cfg.SlackSigningSecret == "" {
		return Config{}, errors.New("SLACK_SIGNING_SECRET required")
	}
	cfg.TwilioAuthToken = firstNonEmpty(cfg.TwilioAuthToken, os.Getenv("TWILIO_AUTH_TOKEN"))
	cfg.TwilioAccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	if cfg.TwilioAuthToken == "" || cfg.TwilioAccountSID == "" {
		return Config{}, errors.New("TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN required")
	}

	cfg.SlackBotUserID = os.Getenv("SLACK_BOT_USER_ID")
	cfg.SlackAdminChannelID = os.Getenv("ADMIN_CONTROL_ROOM_SLACK_CHANNEL_ID")
	cfg.PublicBaseURL = strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/")
	cfg.TwilioCallbackURL = firstNonEmpty(os.Getenv("TWILIO_CALLBACK_URL"), cfg.PublicBaseURL+"/twilio-callback")
	cfg.ClientOrganization = os.Getenv("CLIENT_ORGANIZATION")
	cfg.LambdaTaskFunction = os.Getenv("LAMBDA_BACKGROUND_TASK_FUNCTION")
	cfg.SentryDSN = os.Getenv("SENTRY_DSN")

	requireDisclaimer = firstNonEmpty(requireDisclaimer, os.Getenv("REQUIRE_DISCLAIMER"), "true")
	required, err := strconv.ParseBool(requireDisclaimer)
	if err != nil {
		return Config{}, fmt.Errorf("invalid require-disclaimer value %q", requireDisclaimer)
	}
	cfg.RequireDisclaimer = required

	cfg.DemoGatewayNumbers = splitList(firstNonEmpty(demoGateways, os.Getenv("DEMO_GATEWAY_NUMBERS")))
	cfg.DemoVoterNumbers = splitList(firstNonEmpty(demoVoters, os.Getenv("DEMO_VOTER_NUMBERS")))

	regions, err := parseRegions(firstNonEmpty(pushRegions, os.Getenv("PUSH_NUMBER_REGIONS")))
	if err != nil {
		return Config{}, err
	}
	cfg.PushNumberRegions = regions

	pushInterval = firstNonEmpty(pushInterval, os.Getenv("PUSH_INTERVAL"), "2s")
	interval, err := time.ParseDuration(pushInterval)
	if err != nil {
		return Config{}, fmt.Errorf("invalid push interval %q: %w", pushInterval, err)
	}
	cfg.PushInterval = interval

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseRegions reads "+15555550100=Florida,+15555550101=Ohio"
func parseRegions(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range splitList(s) {
		number, region, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(number) == "" || strings.TrimSpace(region) == "" {
			return nil, fmt.Errorf("invalid push region pair %q", pair)
		}
		out[strings.TrimSpace(number)] = strings.TrimSpace(region)
	}
	return out, nil
}
