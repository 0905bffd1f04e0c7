package config

import "strings"

// DefaultModel is the model requested when none is configured.
const DefaultModel = "anthropic/claude-3.7-sonnet"

// Model is a selectable tutor model.
type Model struct {
	Alias string
	ID    string
	Label string
}

// Models lists the models offered in the setup screen.
var Models = []Model{
	{Alias: "claude", ID: DefaultModel, Label: "Claude 3.7 Sonnet"},
	{Alias: "gpt-4o", ID: "openai/gpt-4o", Label: "GPT-4o"},
	{Alias: "deepseek", ID: "deepseek/deepseek-r1:free", Label: "DeepSeek R1"},
}

// Languages lists the languages offered in the setup screen.
var Languages = []string{"Python", "JavaScript", "Java", "C++", "Go"}

// SkillLevels lists the skill levels offered in the setup screen.
var SkillLevels = []string{"beginner", "intermediate", "advanced"}

// ResolveModel maps an alias to its full model id. Unknown names pass
// through unchanged.
func ResolveModel(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, m := range Models {
		if n == m.Alias {
			return m.ID
		}
	}
	return strings.TrimSpace(name)
}
