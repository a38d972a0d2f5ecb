package runtime

import (
	"slices"
	"strings"

	"github.com/user/thinkstream/internal/classify"
	"github.com/user/thinkstream/internal/runtime/tools"
	"github.com/user/thinkstream/pkg/llm"
)

// AllTools enables every available tool.
const AllTools = "all"

// noFunctionToolModels are model prefixes that reject locally executed
// function tools.
var noFunctionToolModels = []string{
	"o1-pro",
	"o3-deep-research",
	"o4-mini-deep-research",
	"gpt-5-pro",
}

// SupportsFunctionTools reports whether model accepts function tool
// declarations.
func SupportsFunctionTools(model string) bool {
	for _, p := range noFunctionToolModels {
		if strings.HasPrefix(model, p) {
			return false
		}
	}
	return true
}

func requested(enabled []string, name string) bool {
	return slices.Contains(enabled, name) || slices.Contains(enabled, AllTools)
}

// EnabledTools resolves which tools a sub-turn may use. Function tools come
// from the registry in name order; the hosted web search tool is last.
func EnabledTools(reg *tools.Registry, enabled []string, model string, effort llm.Effort) []string {
	var out []string
	if SupportsFunctionTools(model) {
		for _, name := range reg.Names() {
			if requested(enabled, name) {
				out = append(out, name)
			}
		}
	}
	if requested(enabled, classify.WebSearchTool) && effort != llm.EffortMinimal {
		out = append(out, classify.WebSearchTool)
	}
	return out
}

// declarations builds the upstream tool list for the enabled names.
func declarations(reg *tools.Registry, names []string) []llm.ToolDecl {
	decls := reg.Declarations(names)
	if slices.Contains(names, classify.WebSearchTool) {
		decls = append(decls, llm.ToolDecl{Kind: llm.ToolHosted, Name: classify.WebSearchTool})
	}
	return decls
}
