package builtin

import (
	"context"
	"fmt"

	"github.com/wyrmspire/agentcore/pkg/patch"
	"github.com/wyrmspire/agentcore/pkg/sdk"
	"github.com/wyrmspire/agentcore/pkg/tool"
)

// ProposePatch creates a patch artifact (plan.md, patch.diff, tests.md)
// under workspace/patches instead of editing project files directly.
type ProposePatch struct {
	Patches *patch.Manager
}

// Name implements tool.Handler.
func (t *ProposePatch) Name() string { return "propose_patch" }

// Description implements tool.Handler.
func (t *ProposePatch) Description() string {
	return "Propose a change to project or cloned source as a patch artifact: a plan, a unified diff, and test instructions. Never edit project files directly."
}

// Parameters implements tool.Handler.
func (t *ProposePatch) Parameters() map[string]any {
	return tool.ObjectSchema(map[string]any{
		"title":        tool.StringProp("Short patch title"),
		"description":  tool.StringProp("What the patch does and why"),
		"target_files": tool.StringArrayProp("Files the diff touches"),
		"plan":         tool.StringProp("Markdown plan for the change"),
		"diff":         tool.StringProp("Unified diff of the change"),
		"tests":        tool.StringProp("Markdown instructions for testing the change"),
	}, "title", "description", "target_files", "plan", "diff", "tests")
}

// Execute implements tool.Handler.
func (t *ProposePatch) Execute(ctx context.Context, args map[string]any) (*sdk.ToolResult, error) {
	title, _ := args["title"].(string)
	description, _ := args["description"].(string)
	plan, _ := args["plan"].(string)
	diff, _ := args["diff"].(string)
	tests, _ := args["tests"].(string)

	var targets []string
	if raw, ok := args["target_files"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				targets = append(targets, s)
			}
		}
	}

	meta, err := t.Patches.Create(title, description, targets, plan, diff, tests)
	if err != nil {
		return nil, err
	}
	return tool.OK(fmt.Sprintf("Patch %s proposed (status: %s).\nPlan: %s\nDiff: %s\nTests: %s",
		meta.PatchID, meta.Status, meta.PlanFile, meta.DiffFile, meta.TestsFile)), nil
}
