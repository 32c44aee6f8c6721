package infrastructure

import (
	"context"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"cinemoa/internal/service/funding/domain"
)

// Default threshold expressions. A campaign without its own rule succeeds
// on full seat count, or on the collected amount when it is amount-based.
const (
	defaultSeatRule   = "filled_seats >= target_seats"
	defaultAmountRule = "collected_amount >= target_amount"
)

// CELOutcomePolicy evaluates the success threshold of a campaign as a CEL
// expression, so the policy (seat count vs. amount, full vs. partial goal)
// stays deployment configuration instead of code. Compiled programs are
// cached per expression.
type CELOutcomePolicy struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

func NewCELOutcomePolicy() (*CELOutcomePolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("filled_seats", cel.IntType),
		cel.Variable("target_seats", cel.IntType),
		cel.Variable("collected_amount", cel.DoubleType),
		cel.Variable("target_amount", cel.DoubleType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cel environment")
	}
	return &CELOutcomePolicy{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

func (p *CELOutcomePolicy) Succeeded(ctx context.Context, campaign *domain.Campaign, filledSeats int64, collected decimal.Decimal) (bool, error) {
	rule := campaign.OutcomeRule
	if rule == "" {
		if campaign.AmountBased() {
			rule = defaultAmountRule
		} else {
			rule = defaultSeatRule
		}
	}

	prg, err := p.program(rule)
	if err != nil {
		return false, err
	}

	collectedF, _ := collected.Float64()
	targetF, _ := campaign.TargetAmount.Float64()
	out, _, err := prg.Eval(map[string]interface{}{
		"filled_seats":     filledSeats,
		"target_seats":     campaign.TargetSeats,
		"collected_amount": collectedF,
		"target_amount":    targetF,
	})
	if err != nil {
		return false, errors.Wrapf(err, "evaluate outcome rule %q", rule)
	}
	succeeded, ok := out.Value().(bool)
	if !ok {
		return false, errors.Errorf("outcome rule %q did not evaluate to a boolean", rule)
	}
	return succeeded, nil
}

func (p *CELOutcomePolicy) program(rule string) (cel.Program, error) {
	p.mu.RLock()
	prg, ok := p.programs[rule]
	p.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := p.env.Compile(rule)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrapf(issues.Err(), "compile outcome rule %q", rule)
	}
	prg, err := p.env.Program(ast)
	if err != nil {
		return nil, errors.Wrapf(err, "build program for rule %q", rule)
	}

	p.mu.Lock()
	p.programs[rule] = prg
	p.mu.Unlock()
	return prg, nil
}
