package alerts

import (
	"fmt"
	"math"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-finance/finch/internal/domain"
)

// CustomEngine evaluates user-configured CEL rules against recent
// transactions. Rules compile once at load time; evaluation is
// lock-free apart from the rule-map read lock, so the engine is safe
// for concurrent orchestration passes.
type CustomEngine struct {
	mu         sync.RWMutex
	env        *cel.Env
	compiled   map[string]*compiledRule
	maxWorkers int
}

type compiledRule struct {
	config  *domain.AlertRuleConfig
	program cel.Program
}

// NewCustomEngine creates the CEL environment with the transaction
// activation variables custom rules may reference.
func NewCustomEngine(maxWorkers int) (*CustomEngine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("category", cel.StringType),
		cel.Variable("description", cel.StringType),
		cel.Variable("tx_type", cel.StringType),
		cel.Variable("account_balance", cel.DoubleType),
		cel.Variable("month_income", cel.DoubleType),
		cel.Variable("month_expenses", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &CustomEngine{
		env:        env,
		compiled:   make(map[string]*compiledRule),
		maxWorkers: maxWorkers,
	}, nil
}

// Validate compiles a rule without loading it.
func (e *CustomEngine) Validate(cfg *domain.AlertRuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: rule config is required", domain.ErrInvalidInput)
	}
	if cfg.Expression == "" {
		return fmt.Errorf("%w: rule expression is required", domain.ErrInvalidInput)
	}
	if len(cfg.Bands) == 0 {
		return fmt.Errorf("%w: rule needs at least one severity band", domain.ErrInvalidInput)
	}
	for _, band := range cfg.Bands {
		switch band.Severity {
		case domain.SeverityInfo, domain.SeverityWarning, domain.SeverityCritical:
		default:
			return fmt.Errorf("%w: unknown band severity %q", domain.ErrInvalidInput, band.Severity)
		}
	}
	_, err := e.compile(cfg)
	return err
}

// Load compiles and loads a single rule, replacing any prior version.
func (e *CustomEngine) Load(cfg *domain.AlertRuleConfig) error {
	compiled, err := e.compile(cfg)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled[cfg.ID] = compiled
	return nil
}

// Unload removes a rule from the engine.
func (e *CustomEngine) Unload(ruleID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.compiled, ruleID)
}

// Reload atomically replaces all loaded rules. Disabled rules are
// skipped. A compile failure leaves the previous rule set in place.
func (e *CustomEngine) Reload(configs []*domain.AlertRuleConfig) error {
	next := make(map[string]*compiledRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compile(cfg)
		if err != nil {
			return err
		}
		next[cfg.ID] = compiled
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = next
	return nil
}

// RulesCount returns the number of loaded rules.
func (e *CustomEngine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// LoadedRules returns the currently loaded rule configurations.
func (e *CustomEngine) LoadedRules() []*domain.AlertRuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rules := make([]*domain.AlertRuleConfig, 0, len(e.compiled))
	for _, c := range e.compiled {
		rules = append(rules, c.config)
	}
	return rules
}

// Evaluate runs every loaded rule owned by the snapshot's user (or the
// global owner) against the snapshot's transactions. Rules run in
// parallel under a worker cap; a rule's evaluation error skips that
// rule, never the pass.
func (e *CustomEngine) Evaluate(snap *Snapshot) []domain.AlertDraft {
	e.mu.RLock()
	rules := make([]*compiledRule, 0, len(e.compiled))
	for _, r := range e.compiled {
		if r.config.UserID == snap.UserID || r.config.UserID == domain.GlobalRuleOwner {
			rules = append(rules, r)
		}
	}
	e.mu.RUnlock()

	if len(rules) == 0 || len(snap.Transactions) == 0 {
		return nil
	}

	monthIncome := snap.MonthIncome()
	monthExpenses := snap.MonthExpenses()

	var (
		mu     sync.Mutex
		drafts []domain.AlertDraft
		wg     sync.WaitGroup
	)
	sem := make(chan struct{}, e.maxWorkers)

	for _, rule := range rules {
		wg.Add(1)
		go func(r *compiledRule) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			out := e.evaluateRule(r, snap, monthIncome, monthExpenses)
			if len(out) > 0 {
				mu.Lock()
				drafts = append(drafts, out...)
				mu.Unlock()
			}
		}(rule)
	}
	wg.Wait()

	return drafts
}

func (e *CustomEngine) evaluateRule(rule *compiledRule, snap *Snapshot, monthIncome, monthExpenses float64) []domain.AlertDraft {
	var drafts []domain.AlertDraft
	for _, tx := range snap.Transactions {
		balance := 0.0
		if acct := snap.AccountByID(tx.AccountID); acct != nil {
			balance = acct.Balance
		}

		activation := map[string]any{
			"amount":          tx.Amount,
			"category":        tx.Category,
			"description":     tx.Description,
			"tx_type":         string(tx.Type),
			"account_balance": balance,
			"month_income":    monthIncome,
			"month_expenses":  monthExpenses,
		}

		out, _, err := rule.program.Eval(activation)
		if err != nil {
			// A bad rule must not poison the pass; skip the rule entirely.
			return nil
		}

		severity, reason := matchBand(toScore(out), rule.config.Bands)
		if severity == "" {
			continue
		}

		drafts = append(drafts, domain.AlertDraft{
			Type:       domain.AlertSystem,
			Title:      rule.config.Name,
			Message:    reason,
			Severity:   severity,
			EntityType: domain.EntityTransaction,
			EntityID:   tx.ID,
			Amount:     floatPtr(math.Abs(tx.Amount)),
			EntityData: map[string]any{"rule_id": rule.config.ID, "category": tx.Category},
		})
	}
	return drafts
}

// toScore converts a CEL result to a numeric score.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

// matchBand finds the severity band containing the score. Lower bound
// inclusive, upper exclusive; a nil upper limit means unbounded. An
// empty severity means no alert.
func matchBand(score float64, bands []domain.SeverityBand) (string, string) {
	for _, band := range bands {
		lower := 0.0
		if band.LowerLimit != nil {
			lower = *band.LowerLimit
		}
		if score < lower {
			continue
		}
		if band.UpperLimit != nil && score >= *band.UpperLimit {
			continue
		}
		return band.Severity, band.Reason
	}
	return "", ""
}

func (e *CustomEngine) compile(cfg *domain.AlertRuleConfig) (*compiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", cfg.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &compiledRule{config: cfg, program: program}, nil
}
