package cards

import (
	"embed"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/teamsbots/teamsbots/internal/schema"
)

//go:embed templates/*.json
var templateFS embed.FS

// Embedded template names.
const (
	UserMentionTemplate     = "user_mention.json"
	ImmersiveReaderTemplate = "immersive_reader.json"
)

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_.]*)\}`)

// Template is a JSON card with ${name} placeholders.
type Template struct {
	name string
	root any
}

// ParseTemplate parses raw JSON into a template.
func ParseTemplate(name string, raw []byte) (*Template, error) {
	var root any
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	return &Template{name: name, root: root}, nil
}

// LoadTemplate parses one of the embedded templates by file name.
func LoadTemplate(name string) (*Template, error) {
	raw, err := templateFS.ReadFile("templates/" + name)
	if err != nil {
		return nil, fmt.Errorf("load template %s: %w", name, err)
	}
	return ParseTemplate(name, raw)
}

// MustLoadTemplate is LoadTemplate for package level variables.
func MustLoadTemplate(name string) *Template {
	t, err := LoadTemplate(name)
	if err != nil {
		panic(err)
	}
	return t
}

// Expand returns a deep copy of the template with placeholders replaced by
// values from data. Placeholders without a value are left untouched.
func (t *Template) Expand(data map[string]string) map[string]any {
	out, _ := expand(t.root, data).(map[string]any)
	return out
}

// Attachment expands the template and wraps it as an Adaptive Card.
func (t *Template) Attachment(data map[string]string) schema.Attachment {
	return schema.Attachment{ContentType: schema.ContentTypeAdaptiveCard, Content: t.Expand(data)}
}

func expand(v any, data map[string]string) any {
	switch n := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(n))
		for k, child := range n {
			m[k] = expand(child, data)
		}
		return m
	case []any:
		s := make([]any, len(n))
		for i, child := range n {
			s[i] = expand(child, data)
		}
		return s
	case string:
		return placeholder.ReplaceAllStringFunc(n, func(match string) string {
			key := placeholder.FindStringSubmatch(match)[1]
			if val, ok := data[key]; ok {
				return val
			}
			return match
		})
	default:
		return v
	}
}
