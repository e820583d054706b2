// Package scoring orchestrates the fraud-scoring pipeline: rule evaluation,
// feature construction, anomaly scoring, score fusion, classification,
// explanation and report aggregation. The engine is a pure batch transform:
// one dataset in, one report out, no I/O.
package scoring

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/opensource-welfare/shikra/internal/domain"
	"github.com/opensource-welfare/shikra/internal/features"
	"github.com/opensource-welfare/shikra/internal/iforest"
	"github.com/opensource-welfare/shikra/internal/rules"
)

var tracer = otel.Tracer("shikra-scoring")

// Fusion weights and thresholds for combining rule and anomaly signals.
const (
	ruleWeight    = 0.6
	anomalyWeight = 0.4

	// fraudThreshold is the fused score above which a record is flagged.
	fraudThreshold = 0.5

	// ruleCountThreshold flags a record outright when this many rules hit,
	// regardless of the fused score. Multi-signal cases are always caught
	// even if the anomaly model dilutes the average.
	ruleCountThreshold = 2

	// anomalyReasonThreshold adds an explicit anomaly explanation when the
	// fused score exceeds it.
	anomalyReasonThreshold = 0.7

	ruleCount = 5
)

// Engine runs scoring over claim datasets.
type Engine struct {
	bank   *rules.Bank
	screen *rules.ScreenEngine
	cfg    domain.ScoringConfig
}

// New creates a scoring engine. The screening engine is optional; when nil no
// screening annotations are produced.
func New(cfg domain.ScoringConfig, screen *rules.ScreenEngine) *Engine {
	bank := rules.NewBank()
	if cfg.HighIncomeThreshold > 0 {
		bank.HighIncomeThreshold = cfg.HighIncomeThreshold
	}
	if cfg.ExcessiveMultiplier > 0 {
		bank.ExcessiveMultiplier = cfg.ExcessiveMultiplier
	}
	if cfg.Trees <= 0 {
		cfg.Trees = 100
	}
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}

	return &Engine{
		bank:   bank,
		screen: screen,
		cfg:    cfg,
	}
}

// scored carries the fused per-record result through explanation and
// aggregation.
type scored struct {
	flags          domain.RuleFlags
	rulesTriggered int
	anomalyScore   float64
	fraudScore     float64
	isFraud        bool
}

// Score runs the full pipeline over a dataset and returns its report. The
// input is snapshotted so caller-side mutation during scoring cannot be
// observed. A run either fully succeeds or fails atomically; any record
// violating the input invariants aborts with ErrInvalidRecord.
func (e *Engine) Score(ctx context.Context, records []domain.ClaimRecord) (*domain.Report, error) {
	ctx, span := tracer.Start(ctx, "scoring.run")
	defer span.End()
	span.SetAttributes(attribute.Int("dataset.records", len(records)))

	snapshot := make([]domain.ClaimRecord, len(records))
	copy(snapshot, records)

	for i := range snapshot {
		if err := snapshot[i].Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}

	if len(snapshot) == 0 {
		return buildReport(nil, nil, time.Now().UTC()), nil
	}

	// Rule bank and feature builder both run over the same immutable
	// snapshot and are independent of each other.
	var (
		flags  []domain.RuleFlags
		matrix [][]float64
	)

	_, ruleSpan := tracer.Start(ctx, "scoring.rules")
	flags = e.bank.Evaluate(snapshot)
	ruleSpan.End()

	_, featSpan := tracer.Start(ctx, "scoring.features")
	matrix, _ = features.Encode(snapshot)
	featSpan.End()

	_, forestSpan := tracer.Start(ctx, "scoring.forest")
	anomaly := iforest.Score(matrix, iforest.Options{
		Trees:         e.cfg.Trees,
		SampleSize:    e.cfg.SampleSize,
		Contamination: e.cfg.Contamination,
		Seed:          e.cfg.Seed,
		Workers:       e.cfg.Workers,
	})
	forestSpan.End()

	results := make([]scored, len(snapshot))
	for i := range snapshot {
		count := flags[i].Count()
		fused := clip(ruleWeight*float64(count)/ruleCount + anomalyWeight*anomaly[i])

		results[i] = scored{
			flags:          flags[i],
			rulesTriggered: count,
			anomalyScore:   anomaly[i],
			fraudScore:     fused,
			isFraud:        fused > fraudThreshold || count >= ruleCountThreshold,
		}
	}

	return buildReport(snapshot, e.explain(snapshot, matrix, results), time.Now().UTC()), nil
}

// explain attaches flags, scores and reasons to every record.
func (e *Engine) explain(records []domain.ClaimRecord, matrix [][]float64, results []scored) []domain.FlaggedRecord {
	out := make([]domain.FlaggedRecord, len(records))
	for i, rec := range records {
		res := results[i]

		reasons := ruleReasons(rec, res.flags, res.fraudScore)
		if e.screen != nil {
			reasons = append(reasons, e.screen.Annotate(&rules.ScreenInput{
				Record:         rec,
				ClaimFrequency: int(matrix[i][5]),
				RulesTriggered: res.rulesTriggered,
				AnomalyScore:   res.anomalyScore,
				FraudScore:     res.fraudScore,
			})...)
		}

		out[i] = domain.FlaggedRecord{
			ClaimRecord:    rec,
			RuleFlags:      res.flags,
			RulesTriggered: res.rulesTriggered,
			AnomalyScore:   res.anomalyScore,
			FraudScore:     res.fraudScore,
			IsFraud:        res.isFraud,
			Reasons:        reasons,
		}
	}
	return out
}

func clip(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
