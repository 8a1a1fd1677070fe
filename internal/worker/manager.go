package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"dealership_backend/internal/queue"
)

const (
	// DefaultWorkerCount is the default number of worker goroutines
	DefaultWorkerCount = 2

	// DefaultBatchSize is the number of messages to read per batch
	DefaultBatchSize = 10

	// DefaultBlockTimeout is how long to block waiting for new messages
	DefaultBlockTimeout = 5 * time.Second
)

// EventHandler processes one stream event.
type EventHandler interface {
	HandleEvent(ctx context.Context, event queue.NotificationEvent) error
}

// Manager orchestrates worker goroutines that consume from Redis Streams.
type Manager struct {
	consumer    queue.Consumer
	handler     EventHandler
	workerCount int
	batchSize   int64
	blockTime   time.Duration
	logger      *zap.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// ManagerConfig holds configuration for the worker manager.
type ManagerConfig struct {
	WorkerCount  int           // Number of worker goroutines
	BatchSize    int64         // Messages per read
	BlockTimeout time.Duration // Block time for XREADGROUP
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		WorkerCount:  DefaultWorkerCount,
		BatchSize:    DefaultBatchSize,
		BlockTimeout: DefaultBlockTimeout,
	}
}

// NewManager creates a new worker manager.
func NewManager(consumer queue.Consumer, handler EventHandler, cfg ManagerConfig, logger *zap.Logger) *Manager {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultWorkerCount
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = DefaultBlockTimeout
	}

	return &Manager{
		consumer:    consumer,
		handler:     handler,
		workerCount: cfg.WorkerCount,
		batchSize:   cfg.BatchSize,
		blockTime:   cfg.BlockTimeout,
		logger:      logger.Named("event_workers"),
	}
}

// Start begins the worker goroutines.
// Call Stop() to gracefully shut down.
func (m *Manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	if err := m.consumer.EnsureGroup(m.ctx, queue.StreamNotifications, queue.ConsumerGroupNotifications); err != nil {
		m.cancel()
		return err
	}

	for i := 0; i < m.workerCount; i++ {
		workerID := i + 1
		m.wg.Add(1)
		go m.runWorker(workerID, consumerNameForWorker(workerID))
	}

	m.logger.Info("event workers started",
		zap.Int("workers", m.workerCount),
		zap.String("stream", queue.StreamNotifications),
		zap.String("group", queue.ConsumerGroupNotifications))
	return nil
}

// Stop gracefully shuts down all workers.
// Blocks until all workers have finished.
func (m *Manager) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	m.wg.Wait()
	m.logger.Info("event workers stopped")
}

// runWorker is the main loop for a single worker goroutine.
func (m *Manager) runWorker(workerID int, consumerName string) {
	defer m.wg.Done()

	// First, process any pending messages from previous runs (crash recovery)
	m.processPending(workerID, consumerName)

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
			m.processMessages(workerID, consumerName)
		}
	}
}

// processPending handles messages that were delivered but not acknowledged.
func (m *Manager) processPending(workerID int, consumerName string) {
	for {
		messages, err := m.consumer.ReadPending(m.ctx, queue.StreamNotifications, queue.ConsumerGroupNotifications, consumerName, m.batchSize)
		if err != nil {
			m.logger.Warn("read pending failed", zap.Int("worker", workerID), zap.Error(err))
			return
		}
		if len(messages) == 0 {
			return
		}

		m.logger.Info("recovering pending messages", zap.Int("worker", workerID), zap.Int("count", len(messages)))
		m.handleMessages(workerID, messages)
	}
}

// processMessages reads and handles a batch of messages.
func (m *Manager) processMessages(workerID int, consumerName string) {
	messages, err := m.consumer.Read(
		m.ctx,
		queue.StreamNotifications,
		queue.ConsumerGroupNotifications,
		consumerName,
		m.batchSize,
		m.blockTime,
	)
	if err != nil {
		if m.ctx.Err() != nil {
			return
		}
		m.logger.Warn("read failed", zap.Int("worker", workerID), zap.Error(err))
		// Back off on error
		select {
		case <-m.ctx.Done():
		case <-time.After(time.Second):
		}
		return
	}

	m.handleMessages(workerID, messages)
}

// handleMessages processes a batch of messages and acknowledges them.
func (m *Manager) handleMessages(workerID int, messages []queue.Message) {
	for _, msg := range messages {
		if err := m.handleOne(msg); err != nil {
			// Still ACK: delivery is best-effort and a poisoned message must not loop
			m.logger.Warn("handler error",
				zap.Int("worker", workerID),
				zap.String("msg_id", msg.ID),
				zap.String("type", msg.Event.Type),
				zap.Error(err))
		}

		if err := m.consumer.Ack(m.ctx, queue.StreamNotifications, queue.ConsumerGroupNotifications, msg.ID); err != nil {
			m.logger.Warn("ack failed", zap.Int("worker", workerID), zap.String("msg_id", msg.ID), zap.Error(err))
		}
	}
}

func (m *Manager) handleOne(msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return m.handler.HandleEvent(m.ctx, msg.Event)
}

// consumerNameForWorker is stable across restarts so ReadPending finds the
// messages this worker left unacknowledged.
func consumerNameForWorker(workerID int) string {
	return fmt.Sprintf("worker-%d", workerID)
}
