package tool

import (
	"strings"

	"github.com/wyrmspire/agentcore/pkg/sdk"
)

// Violation describes why a rule denied a proposal.
type Violation struct {
	RuleName string
	Reason   string
	Severity string
}

// Rule evaluates a proposed tool call before execution. Rules are pure and
// fast: they inspect name and arguments only. A non-nil violation is a deny
// vote.
type Rule interface {
	Name() string
	Evaluate(call sdk.ToolCall) *Violation
}

// SubstringRule denies any proposal whose name or string arguments contain a
// forbidden pattern.
type SubstringRule struct {
	RuleName  string
	Forbidden []string
	Severity  string
}

// Name implements Rule.
func (r *SubstringRule) Name() string { return r.RuleName }

// Evaluate implements Rule.
func (r *SubstringRule) Evaluate(call sdk.ToolCall) *Violation {
	check := func(s string) *Violation {
		for _, pattern := range r.Forbidden {
			if strings.Contains(s, pattern) {
				severity := r.Severity
				if severity == "" {
					severity = "critical"
				}
				return &Violation{
					RuleName: r.RuleName,
					Reason:   "matches forbidden pattern " + pattern,
					Severity: severity,
				}
			}
		}
		return nil
	}

	if v := check(call.Name); v != nil {
		return v
	}
	for _, arg := range call.Arguments {
		if s, ok := arg.(string); ok {
			if v := check(s); v != nil {
				return v
			}
		}
	}
	return nil
}

// AllowlistRule denies tools outside an allowed set. "*" allows everything.
type AllowlistRule struct {
	RuleName string
	Allowed  []string
}

// Name implements Rule.
func (r *AllowlistRule) Name() string { return r.RuleName }

// Evaluate implements Rule.
func (r *AllowlistRule) Evaluate(call sdk.ToolCall) *Violation {
	for _, name := range r.Allowed {
		if name == "*" || name == call.Name {
			return nil
		}
	}
	return &Violation{
		RuleName: r.RuleName,
		Reason:   "tool is not authorized",
		Severity: "error",
	}
}

// Engine evaluates a rule list against proposals.
type Engine struct {
	rules []Rule
}

// NewEngine creates a rule engine.
func NewEngine(rules ...Rule) *Engine {
	return &Engine{rules: rules}
}

// AddRule appends a rule.
func (e *Engine) AddRule(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Evaluate runs every rule; any violation denies the proposal.
func (e *Engine) Evaluate(call sdk.ToolCall) (bool, []Violation) {
	var violations []Violation
	for _, rule := range e.rules {
		if v := rule.Evaluate(call); v != nil {
			violations = append(violations, *v)
		}
	}
	return len(violations) == 0, violations
}

// DefaultEngine returns the engine with the baseline safety rules.
func DefaultEngine() *Engine {
	return NewEngine(
		&SubstringRule{
			RuleName: "no_dangerous_commands",
			Forbidden: []string{
				"rm -rf /",
				"dd if=",
				"mkfs",
				"> /dev/",
			},
		},
		&SubstringRule{
			RuleName: "no_sensitive_files",
			Forbidden: []string{
				"/etc/passwd",
				"/etc/shadow",
				".ssh/id_rsa",
				".env",
			},
		},
	)
}
