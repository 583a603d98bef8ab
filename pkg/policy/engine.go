package policy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/ironstrap/ironstrap/pkg/profile"
)

// Engine evaluates Rego policies against installation profiles.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*Policy
	logger   zerolog.Logger
}

// NewEngine creates a policy engine with the built-in policies loaded.
func NewEngine(logger zerolog.Logger) *Engine {
	e := &Engine{
		policies: make(map[string]*Policy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}

	builtins := BuiltinPolicies()
	for i := range builtins {
		e.policies[builtins[i].Name] = &builtins[i]
	}

	return e
}

// AddPolicy registers an additional policy, replacing any policy of the
// same name.
func (e *Engine) AddPolicy(p Policy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies[p.Name] = &p
}

// Evaluate runs every enabled policy against the profile. The result is not
// allowed when any error-severity violation is found.
func (e *Engine) Evaluate(ctx context.Context, p *profile.Profile, uefi bool) (*Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	input := &Input{Profile: p, UEFI: uefi}

	var violations []Violation
	evaluated := make([]string, 0, len(e.policies))

	for _, pol := range e.policies {
		if !pol.Enabled {
			continue
		}
		evaluated = append(evaluated, pol.Name)

		vs, err := e.evaluatePolicy(ctx, pol, input)
		if err != nil {
			return nil, fmt.Errorf("policy %s evaluation failed: %w", pol.Name, err)
		}
		violations = append(violations, vs...)
	}

	allowed := true
	for i := range violations {
		if violations[i].Severity == SeverityError {
			allowed = false
			break
		}
	}

	e.logger.Debug().
		Int("policies", len(evaluated)).
		Int("violations", len(violations)).
		Bool("allowed", allowed).
		Msg("profile policy evaluation completed")

	return &Result{
		Allowed:           allowed,
		Violations:        violations,
		EvaluatedPolicies: evaluated,
		EvaluatedAt:       time.Now(),
	}, nil
}

// evaluatePolicy queries the deny set of a single policy.
func (e *Engine) evaluatePolicy(ctx context.Context, pol *Policy, input *Input) ([]Violation, error) {
	query := fmt.Sprintf("data.%s.deny", extractPackageName(pol.Rego))

	r := rego.New(
		rego.Module(pol.Name, pol.Rego),
		rego.Query(query),
		rego.Input(input),
	)

	results, err := r.Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		for _, expr := range result.Expressions {
			denySet, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range denySet {
				violations = append(violations, makeViolation(pol, d))
			}
		}
	}

	return violations, nil
}

func makeViolation(pol *Policy, result interface{}) Violation {
	v := Violation{
		Policy:   pol.Name,
		Severity: pol.Severity,
	}

	fields, ok := result.(map[string]interface{})
	if !ok {
		v.Message = fmt.Sprintf("%v", result)
		return v
	}

	if msg, ok := fields["message"].(string); ok {
		v.Message = msg
	}
	if sev, ok := fields["severity"].(string); ok {
		v.Severity = Severity(sev)
	}
	if rem, ok := fields["remediation"].(string); ok {
		v.Remediation = rem
	}

	return v
}

func extractPackageName(code string) string {
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			parts := strings.Fields(trimmed)
			if len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	return "ironstrap.policies"
}
