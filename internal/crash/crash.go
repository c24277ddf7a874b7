package crash

import (
	"cifuzz/config"
	"cifuzz/internal/types"
	"cifuzz/internal/utils"
	"cifuzz/pkg/database"
	"cifuzz/pkg/mq"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// TestCaseFileName is the fixed name the reproducing input is archived
	// under in the artifact directory. A later crash overwrites it.
	TestCaseFileName = "test_case"

	// CrashQueueName is the queue crash events are published to when a
	// RabbitMQ broker is configured.
	CrashQueueName = "crash_events"

	// dedupKeyTTL bounds how long a crash digest suppresses duplicate
	// sink notifications across CI runs.
	dedupKeyTTL = 14 * 24 * time.Hour
)

// Manager archives crashing inputs and fans the crash event out to the
// configured sinks. All sinks are optional; with none configured the manager
// still produces the on-disk artifacts CI consumes.
type Manager struct {
	logger    *zap.Logger
	extractor *Extractor
	cfg       *config.AppConfig

	db          *gorm.DB
	redisClient *redis.Client
	rabbitMQ    mq.RabbitMQ

	mu sync.Mutex
}

type ManagerParams struct {
	fx.In

	Logger    *zap.Logger
	Extractor *Extractor
	Config    *config.AppConfig

	DB          *gorm.DB      `optional:"true"`
	RedisClient *redis.Client `optional:"true"`
	RabbitMQ    mq.RabbitMQ   `optional:"true"`
}

func NewManager(p ManagerParams) *Manager {
	return &Manager{
		logger:      p.Logger,
		extractor:   p.Extractor,
		cfg:         p.Config,
		db:          p.DB,
		redisClient: p.RedisClient,
		rabbitMQ:    p.RabbitMQ,
	}
}

// HandleCrash moves the reproducing input into the artifact directory,
// appends the extracted summary next to it and notifies the configured
// sinks. Calls are serialized so concurrent fuzzers cannot interleave writes
// to the artifact files. Sink failures are logged and swallowed: by the time
// they run the crash is already preserved on disk.
func (m *Manager) HandleCrash(ctx context.Context, target *types.FuzzTarget, outcome *types.RunOutcome, artifactDir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(artifactDir, 0755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	testCasePath := filepath.Join(artifactDir, TestCaseFileName)
	if err := utils.MoveFile(outcome.TestCase, testCasePath); err != nil {
		return fmt.Errorf("failed to archive test case: %w", err)
	}
	m.logger.Info("archived crashing test case",
		zap.String("target", target.Name),
		zap.String("test_case", testCasePath))

	summary, err := m.extractor.Extract(outcome.Output, artifactDir)
	if err != nil {
		// The test case is already archived. A summary write failure
		// must not hide the crash from the caller.
		m.logger.Error("failed to write crash summary", zap.Error(err))
	}

	digest, err := fileDigest(testCasePath)
	if err != nil {
		m.logger.Error("failed to digest test case", zap.Error(err))
	}

	event := &types.CrashEvent{
		EventID:   uuid.New().String(),
		Project:   m.cfg.ProjectName,
		CommitSHA: m.cfg.CommitSHA,
		Target:    target.Name,
		Sanitizer: m.cfg.Sanitizer,
		Engine:    m.cfg.FuzzEngine,
		TestCase:  testCasePath,
		Summary:   summary,
		Digest:    digest,
	}
	m.dispatch(ctx, event)

	return nil
}

// dispatch forwards the event to every configured sink, deduplicating by
// test case digest first so a known crash does not renotify on every run.
func (m *Manager) dispatch(ctx context.Context, event *types.CrashEvent) {
	if m.isDuplicate(ctx, event.Digest) {
		m.logger.Info("crash already reported, skipping sink notifications",
			zap.String("digest", event.Digest))
		return
	}

	if m.db != nil {
		record := database.NewCrash(event, m.cfg.Architecture)
		if err := database.AddCrash(ctx, m.db, record); err != nil {
			m.logger.Warn("failed to record crash in database", zap.Error(err))
		}
	}

	if m.rabbitMQ != nil {
		if err := m.publishEvent(ctx, event); err != nil {
			m.logger.Warn("failed to publish crash event", zap.Error(err))
		}
	}
}

// isDuplicate claims the digest in Redis. The first claimant wins; everyone
// else is a duplicate. Without Redis, or when Redis misbehaves, every crash
// counts as new.
func (m *Manager) isDuplicate(ctx context.Context, digest string) bool {
	if m.redisClient == nil || digest == "" {
		return false
	}

	key := "cifuzz:crash:" + digest
	claimed, err := m.redisClient.SetNX(ctx, key, m.cfg.CommitSHA, dedupKeyTTL).Result()
	if err != nil {
		m.logger.Warn("crash dedup lookup failed", zap.Error(err))
		return false
	}
	return !claimed
}

func (m *Manager) publishEvent(ctx context.Context, event *types.CrashEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal crash event: %w", err)
	}

	channel := m.rabbitMQ.GetChannel()
	if channel == nil {
		return fmt.Errorf("failed to get RabbitMQ channel")
	}
	defer channel.Close()
	if _, err := channel.QueueDeclare(
		CrashQueueName,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare crash queue: %w", err)
	}

	return channel.PublishWithContext(
		ctx,
		"",
		CrashQueueName,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

func fileDigest(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read test case: %w", err)
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}
