package rules

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-welfare/shikra/internal/domain"
)

// ScreenEngine evaluates operator-configured CEL screening rules against
// scored records. Screening is purely explanatory: a triggered rule appends
// its reason string to the record, it never changes scores or verdicts.
type ScreenEngine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string]*CompiledScreenRule
}

// CompiledScreenRule holds a pre-compiled CEL program.
type CompiledScreenRule struct {
	Config  *domain.ScreenRuleConfig
	Program cel.Program
}

// NewScreenEngine creates a screening engine with the record variables bound.
func NewScreenEngine() (*ScreenEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("beneficiary_id", cel.StringType),
		cel.Variable("aadhaar", cel.StringType),
		cel.Variable("income", cel.DoubleType),
		cel.Variable("state", cel.StringType),
		cel.Variable("subsidy_type", cel.StringType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("distributor_id", cel.StringType),
		cel.Variable("claim_frequency", cel.IntType),
		cel.Variable("rules_triggered", cel.IntType),
		cel.Variable("anomaly_score", cel.DoubleType),
		cel.Variable("fraud_score", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &ScreenEngine{
		env:      env,
		compiled: make(map[string]*CompiledScreenRule),
	}, nil
}

// ValidateRule compiles a rule without mutating loaded engine rules.
func (e *ScreenEngine) ValidateRule(cfg *domain.ScreenRuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("screening rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *ScreenEngine) LoadRule(cfg *domain.ScreenRuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiled[cfg.ID] = compiled
	return nil
}

// LoadRules compiles and loads all enabled rules.
func (e *ScreenEngine) LoadRules(configs []*domain.ScreenRuleConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules clears all existing rules and loads new ones. This enables
// hot-reloading of screening rules from the database.
func (e *ScreenEngine) ReloadRules(configs []*domain.ScreenRuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledScreenRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiled = newRules
	return nil
}

// RulesCount returns the number of loaded screening rules.
func (e *ScreenEngine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *ScreenEngine) GetLoadedRules() []*domain.ScreenRuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.ScreenRuleConfig, 0, len(e.compiled))
	for _, compiled := range e.compiled {
		rules = append(rules, compiled.Config)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules
}

// ScreenInput holds the scored record data a screening rule can reference.
type ScreenInput struct {
	Record         domain.ClaimRecord
	ClaimFrequency int
	RulesTriggered int
	AnomalyScore   float64
	FraudScore     float64
}

// Annotate evaluates all loaded rules against one scored record and returns
// the reasons of the rules that triggered, ordered by rule ID so output is
// deterministic. Evaluation errors skip the rule rather than failing the run.
func (e *ScreenEngine) Annotate(input *ScreenInput) []string {
	e.mu.RLock()
	rules := make([]*CompiledScreenRule, 0, len(e.compiled))
	for _, rule := range e.compiled {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil
	}

	sort.Slice(rules, func(i, j int) bool { return rules[i].Config.ID < rules[j].Config.ID })

	activation := map[string]any{
		"beneficiary_id":  input.Record.BeneficiaryID,
		"aadhaar":         input.Record.Aadhaar,
		"income":          input.Record.Income,
		"state":           input.Record.LocationState,
		"subsidy_type":    input.Record.SubsidyType,
		"amount":          input.Record.Amount,
		"distributor_id":  input.Record.DistributorID,
		"claim_frequency": int64(input.ClaimFrequency),
		"rules_triggered": int64(input.RulesTriggered),
		"anomaly_score":   input.AnomalyScore,
		"fraud_score":     input.FraudScore,
	}

	var reasons []string
	for _, rule := range rules {
		out, _, err := rule.Program.Eval(activation)
		if err != nil {
			continue
		}
		if hit, ok := out.(types.Bool); ok && bool(hit) {
			reasons = append(reasons, rule.Config.Reason)
		}
	}
	return reasons
}

// Close cleans up the engine.
func (e *ScreenEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = make(map[string]*CompiledScreenRule)
	return nil
}

func (e *ScreenEngine) compileRule(cfg *domain.ScreenRuleConfig) (*CompiledScreenRule, error) {
	if cfg.Reason == "" {
		return nil, fmt.Errorf("screening rule %s: reason is required", cfg.ID)
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile screening rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("screening rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for screening rule %s: %w", cfg.ID, err)
	}

	return &CompiledScreenRule{
		Config:  cfg,
		Program: program,
	}, nil
}
