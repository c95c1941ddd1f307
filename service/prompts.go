package service

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var promptsYAML []byte

const (
	promptOnboarding     = "onboarding"
	promptJournal        = "journal"
	promptSuggestActions = "suggest_actions"
	promptChat           = "chat"
	promptClarification  = "clarification"
)

type promptDefinition struct {
	Temperature float32 `yaml:"temperature"`
	Template    string  `yaml:"template"`
}

type prompt struct {
	name        string
	temperature float32
	tmpl        *template.Template
}

var promptFuncs = template.FuncMap{
	"score": func(v float64) string {
		return strconv.FormatFloat(v, 'f', -1, 64)
	},
}

// loadPrompts parses the YAML prompt file and compiles every template
func loadPrompts(data []byte) (map[string]*prompt, error) {
	var defs map[string]promptDefinition
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse prompts: %w", err)
	}

	prompts := make(map[string]*prompt, len(defs))
	for name, def := range defs {
		if strings.TrimSpace(def.Template) == "" {
			return nil, fmt.Errorf("prompt %q has no template", name)
		}
		tmpl, err := template.New(name).Funcs(promptFuncs).Option("missingkey=error").Parse(def.Template)
		if err != nil {
			return nil, fmt.Errorf("failed to parse prompt %q: %w", name, err)
		}
		prompts[name] = &prompt{name: name, temperature: def.Temperature, tmpl: tmpl}
	}

	for _, required := range []string{promptOnboarding, promptJournal, promptSuggestActions, promptChat, promptClarification} {
		if _, ok := prompts[required]; !ok {
			return nil, fmt.Errorf("prompt %q missing", required)
		}
	}
	return prompts, nil
}

func (p *prompt) render(data any) (string, error) {
	var sb strings.Builder
	if err := p.tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to render prompt %q: %w", p.name, err)
	}
	return sb.String(), nil
}
