// Package policy lets an operator override the garbage collector's default
// per-app eligibility rule (ts+TxTimeout<now) with a compiled CEL boolean
// expression, evaluated against the application ID and the transaction's
// age.
package policy

import (
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
)

// GCPolicy implements gc.Policy by evaluating a CEL expression. The
// expression sees three variables: "app" (string), "age_seconds" (int),
// and "tx_timeout_seconds" (int, the configured default), and must
// evaluate to a bool.
type GCPolicy struct {
	expression string
	timeout    time.Duration
	program    cel.Program
}

// New compiles expression into a GCPolicy. timeout is exposed to the
// expression as "tx_timeout_seconds" so an override can still reference the
// configured default (e.g. `age_seconds > tx_timeout_seconds * 2`).
func New(expression string, timeout time.Duration) (*GCPolicy, error) {
	if expression == "" {
		return nil, fmt.Errorf("policy: expression can't be empty")
	}

	env, err := cel.NewEnv(
		cel.Variable("app", cel.StringType),
		cel.Variable("age_seconds", cel.IntType),
		cel.Variable("tx_timeout_seconds", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("policy: creating CEL environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("policy: compiling expression: %w", issues.Err())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("policy: building program: %w", err)
	}

	return &GCPolicy{expression: expression, timeout: timeout, program: program}, nil
}

// Eligible evaluates the compiled expression for app and the transaction's
// age. A false second return falls back to the collector's default rule --
// this happens only if evaluation itself errors or returns a non-bool,
// since a well-formed expression always has an opinion.
func (p *GCPolicy) Eligible(app string, createdAt, now time.Time) (eligible, ok bool) {
	age := now.Sub(createdAt)
	out, _, err := p.program.Eval(map[string]any{
		"app":                app,
		"age_seconds":        int64(age.Seconds()),
		"tx_timeout_seconds": int64(p.timeout.Seconds()),
	})
	if err != nil {
		return false, false
	}
	b, isBool := out.Value().(bool)
	if !isBool {
		return false, false
	}
	return b, true
}
