package prompt

import (
	"fmt"
	"strings"

	"bistrobooks/internal/domain"
)

// TaskTransaction is the template task for turning an input into a
// transaction payload. Tasks exist so a modality can grow more than one
// prompt (e.g. a future summarization task) without widening the store key.
const TaskTransaction = "transaction"

// Template is a named, versioned prompt body with declared placeholder
// slots. Templates are immutable once loaded; the store swaps whole
// snapshots on reload.
type Template struct {
	Name         string          `mapstructure:"name" json:"name"`
	Modality     domain.Modality `mapstructure:"modality" json:"modality"`
	Task         string          `mapstructure:"task" json:"task"`
	Version      int             `mapstructure:"version" json:"version"`
	Body         string          `mapstructure:"body" json:"body"`
	Placeholders []string        `mapstructure:"placeholders" json:"placeholders"`
}

// Validate checks the template is renderable: modality and task are set and
// the body contains every declared placeholder. Runs at load time so a bad
// template fails the load, never a request.
func (t *Template) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("template has no name")
	}
	if t.Modality != domain.ModalityText && t.Modality != domain.ModalityImage {
		return fmt.Errorf("template %s: unknown modality %q", t.Name, t.Modality)
	}
	if t.Task == "" {
		return fmt.Errorf("template %s: task is required", t.Name)
	}
	for _, p := range t.Placeholders {
		if !strings.Contains(t.Body, slot(p)) {
			return fmt.Errorf("template %s: body is missing placeholder %s", t.Name, slot(p))
		}
	}
	return nil
}

// Render substitutes every declared placeholder with its value from vars.
// A declared placeholder without a value is an error; undeclared vars are
// ignored.
func (t *Template) Render(vars map[string]string) (string, error) {
	out := t.Body
	for _, p := range t.Placeholders {
		val, ok := vars[p]
		if !ok {
			return "", fmt.Errorf("template %s: no value for placeholder %s", t.Name, slot(p))
		}
		out = strings.ReplaceAll(out, slot(p), val)
	}
	return out, nil
}

func slot(name string) string {
	return "{" + name + "}"
}
