package config

import (
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	// GitHub Actions context
	Workspace      string // shared volume with the checkout and build output
	ProjectName    string // OSS-Fuzz project name
	RepoName       string // basename of GITHUB_REPOSITORY
	CommitSHA      string
	PullRequestRef string
	EventName      string // "push" or "pull_request"
	DryRun         bool   // failures are logged but do not fail the CI step

	// Fuzzing
	FuzzSeconds  int    // total budget divided across discovered targets
	FuzzEngine   string // engine key for the fuzzer registry
	Sanitizer    string
	Architecture string
	Parallelism  int // worker pool size; 1 keeps runs strictly sequential

	OSSFuzzRoot string // local OSS-Fuzz checkout, used for project validation

	// Optional crash sinks
	DatabaseURL        string
	RabbitMQURL        string
	RedisURL           string
	RedisSentinelHosts string
	RedisMasterName    string

	LogLevel     string
	ServiceName  string
	OTelEndpoint string
}

func LoadConfig() *AppConfig {
	godotenv.Load()

	config := &AppConfig{
		Workspace:      os.Getenv("GITHUB_WORKSPACE"),
		ProjectName:    os.Getenv("PROJECT_NAME"),
		RepoName:       repoBasename(os.Getenv("GITHUB_REPOSITORY")),
		CommitSHA:      os.Getenv("GITHUB_SHA"),
		PullRequestRef: os.Getenv("GITHUB_REF"),
		EventName:      os.Getenv("GITHUB_EVENT_NAME"),
		DryRun:         parseBool(os.Getenv("DRY_RUN"), false),

		FuzzSeconds:  parseInt(os.Getenv("FUZZ_SECONDS"), 0),
		FuzzEngine:   os.Getenv("FUZZING_ENGINE"),
		Sanitizer:    os.Getenv("SANITIZER"),
		Architecture: os.Getenv("ARCHITECTURE"),
		Parallelism:  parseInt(os.Getenv("FUZZ_PARALLELISM"), 1),

		OSSFuzzRoot: os.Getenv("OSS_FUZZ_ROOT"),

		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RabbitMQURL:        os.Getenv("RABBITMQ_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		RedisSentinelHosts: os.Getenv("REDIS_SENTINEL_HOSTS"),
		RedisMasterName:    os.Getenv("REDIS_MASTER"),

		LogLevel:     os.Getenv("LOG_LEVEL"),
		ServiceName:  os.Getenv("SERVICE_NAME"),
		OTelEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if config.FuzzEngine == "" {
		config.FuzzEngine = "libfuzzer"
	}
	if config.Sanitizer == "" {
		config.Sanitizer = "address"
	}
	if config.Architecture == "" {
		config.Architecture = "x86_64"
	}
	if config.Parallelism < 1 {
		config.Parallelism = 1
	}
	if config.OSSFuzzRoot == "" {
		config.OSSFuzzRoot = "/opt/oss-fuzz"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info" // Set default log level
	}
	if config.ServiceName == "" {
		config.ServiceName = "cifuzz" // Default service name
	}

	return config
}

// repoBasename turns an owner/name repository slug into its name part.
func repoBasename(repository string) string {
	if repository == "" {
		return ""
	}
	return path.Base(repository)
}

func parseInt(val string, defaultVal int) int {
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

func parseBool(val string, defaultVal bool) bool {
	if val == "" {
		return defaultVal
	}
	return strings.EqualFold(val, "true")
}
