package tool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyrmspire/agentcore/pkg/sdk"
)

func TestSubstringRule(t *testing.T) {
	rule := &SubstringRule{RuleName: "no_rm", Forbidden: []string{"rm -rf /"}}

	v := rule.Evaluate(sdk.ToolCall{Name: "shell", Arguments: map[string]any{"command": "rm -rf / tmp"}})
	require.NotNil(t, v)
	assert.Equal(t, "no_rm", v.RuleName)

	assert.Nil(t, rule.Evaluate(sdk.ToolCall{Name: "shell", Arguments: map[string]any{"command": "ls"}}))
}

func TestAllowlistRule(t *testing.T) {
	rule := &AllowlistRule{RuleName: "allowed", Allowed: []string{"read_file"}}

	assert.Nil(t, rule.Evaluate(sdk.ToolCall{Name: "read_file"}))
	assert.NotNil(t, rule.Evaluate(sdk.ToolCall{Name: "shell"}))

	wildcard := &AllowlistRule{RuleName: "open", Allowed: []string{"*"}}
	assert.Nil(t, wildcard.Evaluate(sdk.ToolCall{Name: "anything"}))
}

func TestEngine_AnyDenyVoteBlocks(t *testing.T) {
	engine := NewEngine(
		&SubstringRule{RuleName: "a", Forbidden: []string{"xxx"}},
		&SubstringRule{RuleName: "b", Forbidden: []string{"yyy"}},
	)

	allowed, violations := engine.Evaluate(sdk.ToolCall{Name: "t", Arguments: map[string]any{"v": "has yyy inside"}})
	assert.False(t, allowed)
	require.Len(t, violations, 1)
	assert.Equal(t, "b", violations[0].RuleName)

	allowed, violations = engine.Evaluate(sdk.ToolCall{Name: "t", Arguments: map[string]any{"v": "clean"}})
	assert.True(t, allowed)
	assert.Empty(t, violations)
}

func TestDefaultEngine_BlocksSensitiveTargets(t *testing.T) {
	engine := DefaultEngine()

	tests := []string{"/etc/passwd", "cat ~/.ssh/id_rsa", "read .env please", "dd if=/dev/zero"}
	for _, bad := range tests {
		allowed, _ := engine.Evaluate(sdk.ToolCall{Name: "shell", Arguments: map[string]any{"command": bad}})
		assert.False(t, allowed, "should block %q", bad)
	}

	allowed, _ := engine.Evaluate(sdk.ToolCall{Name: "shell", Arguments: map[string]any{"command": "echo hi"}})
	assert.True(t, allowed)
}
