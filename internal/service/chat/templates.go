package chat

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultTemplates []byte

const (
	namePlaceholder = "{user_Name}"
	fallbackName    = "Cliente"
)

// Templates is the agent quick-reply phrase set.
type Templates []string

// LoadTemplates reads the phrase set from path, or the built-in set when path
// is empty.
func LoadTemplates(path string) (Templates, error) {
	raw := defaultTemplates
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read chat templates: %w", err)
		}
		raw = b
	}
	var doc struct {
		Templates []string `yaml:"templates"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse chat templates: %w", err)
	}
	if len(doc.Templates) == 0 {
		return nil, fmt.Errorf("parse chat templates: no templates defined")
	}
	return Templates(doc.Templates), nil
}

// Render substitutes the customer name, falling back to a generic greeting.
func Render(template, customerName string) string {
	name := strings.TrimSpace(customerName)
	if name == "" {
		name = fallbackName
	}
	return strings.ReplaceAll(template, namePlaceholder, name)
}
