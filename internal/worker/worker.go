// Package worker provides async dataset analysis for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-welfare/shikra/internal/domain"
	"github.com/opensource-welfare/shikra/internal/scoring"
)

// Worker scores uploaded datasets asynchronously from the EventBus.
type Worker struct {
	bus    domain.EventBus
	repo   domain.Repository
	cache  domain.Cache
	engine *scoring.Engine

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// ReportTTL is how long completed reports stay in cache.
	ReportTTL time.Duration
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, cache domain.Cache, engine *scoring.Engine) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		repo:   repo,
		cache:  cache,
		engine: engine,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the dataset ingested topic and begins processing.
func (w *Worker) Start(cfg Config) error {
	if cfg.ReportTTL == 0 {
		cfg.ReportTTL = time.Hour
	}

	sub, err := w.bus.Subscribe(w.ctx, domain.TopicDatasetIngested, func(ctx context.Context, msg *domain.Message) error {
		return w.processDataset(ctx, msg, cfg.ReportTTL)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("analysis worker started",
		"topic", domain.TopicDatasetIngested,
	)

	return nil
}

// DatasetMessage is the message payload for dataset analysis.
type DatasetMessage struct {
	FileID   string `json:"fileId"`
	Filename string `json:"filename,omitempty"`
	RowCount int    `json:"rowCount,omitempty"`
}

// AnalysisMessage is the message payload published when analysis completes.
type AnalysisMessage struct {
	FileID         string  `json:"fileId"`
	TotalRecords   int     `json:"totalRecords"`
	FlaggedCount   int     `json:"flaggedCount"`
	LeakagePercent float64 `json:"leakagePercent"`
	DurationMs     int64   `json:"durationMs"`
}

// processDataset runs the full scoring pipeline for one dataset.
func (w *Worker) processDataset(ctx context.Context, msg *domain.Message, reportTTL time.Duration) error {
	start := time.Now()

	var dsMsg DatasetMessage
	if err := json.Unmarshal(msg.Payload, &dsMsg); err != nil {
		slog.Error("failed to parse dataset message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	slog.Debug("processing dataset",
		"file_id", dsMsg.FileID,
	)

	// 1. Load records
	ds, err := w.repo.GetDataset(ctx, dsMsg.FileID)
	if err != nil {
		slog.Error("failed to load dataset",
			"file_id", dsMsg.FileID,
			"error", err,
		)
		return err
	}

	// 2. Score
	report, err := w.engine.Score(ctx, ds.Records)
	if err != nil {
		slog.Error("scoring failed",
			"file_id", dsMsg.FileID,
			"error", err,
		)
		return err
	}
	report.FileID = dsMsg.FileID

	// 3. Persist report
	if err := w.repo.SaveReport(ctx, report); err != nil {
		slog.Error("failed to save report",
			"file_id", dsMsg.FileID,
			"error", err,
		)
		return err
	}

	// 4. Cache for fast result reads
	if w.cache != nil {
		if err := w.cache.SetReport(ctx, dsMsg.FileID, report, reportTTL); err != nil {
			slog.Warn("failed to cache report",
				"file_id", dsMsg.FileID,
				"error", err,
			)
		}
	}

	// 5. Publish completion
	resultPayload, _ := json.Marshal(AnalysisMessage{
		FileID:         dsMsg.FileID,
		TotalRecords:   report.TotalRecords,
		FlaggedCount:   report.FlaggedCount,
		LeakagePercent: report.LeakagePercent,
		DurationMs:     time.Since(start).Milliseconds(),
	})
	if err := w.bus.Publish(ctx, domain.TopicAnalysisCompleted, resultPayload); err != nil {
		slog.Error("failed to publish analysis result",
			"file_id", dsMsg.FileID,
			"error", err,
		)
	}

	// 6. Alert when fraud was detected
	if report.FlaggedCount > 0 {
		if err := w.bus.Publish(ctx, domain.TopicAlert, resultPayload); err != nil {
			slog.Error("failed to publish alert",
				"file_id", dsMsg.FileID,
				"error", err,
			)
		}
	}

	slog.Info("dataset processed",
		"file_id", dsMsg.FileID,
		"total_records", report.TotalRecords,
		"flagged_count", report.FlaggedCount,
		"leakage_percent", report.LeakagePercent,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
