// Package rules provides the CEL-Go based clinical alert engine.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-health/materna/internal/domain"
)

// Engine evaluates configured alert rules against finished
// predictions. Rules compile once at load time; evaluation is
// read-only and safe for concurrent use.
type Engine struct {
	mu    sync.RWMutex
	env   *cel.Env
	rules []compiledRule
}

type compiledRule struct {
	cfg     domain.AlertRule
	program cel.Program
}

// NewEngine creates an alert engine with the clinical evaluation
// environment. Expressions see the patient facts, the per-risk
// probabilities and the summary counts.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("age", cel.IntType),
		cel.Variable("parity", cel.IntType),
		cel.Variable("prenatal_visits", cel.IntType),
		cel.Variable("gestational_weeks", cel.DoubleType),
		cel.Variable("prior_hypertension", cel.IntType),
		cel.Variable("gestational_diabetes", cel.IntType),
		cel.Variable("prior_cesarean", cel.IntType),
		cel.Variable("multiple_pregnancy", cel.IntType),
		cel.Variable("p_sepsis", cel.DoubleType),
		cel.Variable("p_hipertension", cel.DoubleType),
		cel.Variable("p_hemorragia", cel.DoubleType),
		cel.Variable("alto_count", cel.IntType),
		cel.Variable("moderado_count", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{env: env}, nil
}

// ValidateRule compiles a rule without loading it.
func (e *Engine) ValidateRule(cfg domain.AlertRule) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, err := e.compile(cfg)
	return err
}

// LoadRules compiles and installs the enabled rules, replacing any
// previously loaded set. A single invalid expression fails the whole
// load; this is meant to run at startup where it aborts the process.
func (e *Engine) LoadRules(configs []domain.AlertRule) error {
	compiled := make([]compiledRule, 0, len(configs))
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		c, err := e.compile(cfg)
		if err != nil {
			return fmt.Errorf("alert rule %q: %w", cfg.ID, err)
		}
		compiled = append(compiled, c)
	}

	e.mu.Lock()
	e.rules = compiled
	e.mu.Unlock()

	return nil
}

// LoadedRules returns the configurations of the currently loaded rules
// in evaluation order.
func (e *Engine) LoadedRules() []domain.AlertRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]domain.AlertRule, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, r.cfg)
	}
	return out
}

func (e *Engine) compile(cfg domain.AlertRule) (compiledRule, error) {
	if cfg.Expression == "" {
		return compiledRule{}, fmt.Errorf("expression is required")
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return compiledRule{}, fmt.Errorf("compile error: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return compiledRule{}, fmt.Errorf("expression must evaluate to bool, got %s", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return compiledRule{}, fmt.Errorf("program error: %w", err)
	}

	return compiledRule{cfg: cfg, program: program}, nil
}

// Evaluate runs every loaded rule against one prediction and returns
// the alerts that fired. A rule that fails at evaluation time is
// logged and skipped; alerts never fail a prediction.
func (e *Engine) Evaluate(ctx context.Context, patient domain.PatientRecord, outcomes []domain.RiskOutcome, summary domain.PatientSummary) []domain.Alert {
	e.mu.RLock()
	rules := e.rules
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil
	}

	activation := map[string]any{
		"age":                  patient.MaternalAge,
		"parity":               patient.Parity,
		"prenatal_visits":      patient.PrenatalVisits,
		"gestational_weeks":    patient.GestationalWeeks,
		"prior_hypertension":   patient.PriorHypertension,
		"gestational_diabetes": patient.GestationalDiabetes,
		"prior_cesarean":       patient.PriorCesarean,
		"multiple_pregnancy":   patient.MultiplePregnancy,
		"p_sepsis":             0.0,
		"p_hipertension":       0.0,
		"p_hemorragia":         0.0,
		"alto_count":           summary.HighRiskCount,
		"moderado_count":       summary.ModerateRiskCount,
	}
	for _, out := range outcomes {
		switch out.RiskType {
		case domain.RiskSepsis:
			activation["p_sepsis"] = out.Probability
		case domain.RiskHypertension:
			activation["p_hipertension"] = out.Probability
		case domain.RiskHemorrhage:
			activation["p_hemorragia"] = out.Probability
		}
	}

	var alerts []domain.Alert
	for _, rule := range rules {
		out, _, err := rule.program.Eval(activation)
		if err != nil {
			slog.Warn("alert rule evaluation failed",
				"rule_id", rule.cfg.ID,
				"error", err,
			)
			continue
		}

		fired, ok := out.(types.Bool)
		if !ok {
			slog.Warn("alert rule returned non-bool", "rule_id", rule.cfg.ID)
			continue
		}
		if bool(fired) {
			alerts = append(alerts, domain.Alert{
				RuleID:   rule.cfg.ID,
				Message:  rule.cfg.Message,
				Severity: rule.cfg.Severity,
			})
		}
	}
	return alerts
}
