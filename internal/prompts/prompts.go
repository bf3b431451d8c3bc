package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

const (
	Grounded = "grounded"
	General  = "general"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

type yamlPromptFile struct {
	Version   int                     `yaml:"version"`
	Templates map[string]yamlTemplate `yaml:"templates"`
}

type yamlTemplate struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// Vars are the values a user template may reference.
type Vars struct {
	Query   string
	Context string
}

type Rendered struct {
	System string
	User   string
}

type entry struct {
	system string
	user   *template.Template
}

// Set holds the parsed grounded and general templates.
type Set struct {
	entries map[string]entry
}

// Load parses path, or the embedded defaults when path is empty.
func Load(path string) (*Set, error) {
	data := defaultPromptsYAML
	if p := strings.TrimSpace(path); p != "" {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read prompts %q: %w", p, err)
		}
		data = b
	}
	return Parse(data)
}

// Default returns the embedded templates and panics if they are malformed.
func Default() *Set {
	s, err := Parse(defaultPromptsYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded prompts: %v", err))
	}
	return s
}

func Parse(data []byte) (*Set, error) {
	var f yamlPromptFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	s := &Set{entries: map[string]entry{}}
	for _, name := range []string{Grounded, General} {
		t, ok := f.Templates[name]
		if !ok || strings.TrimSpace(t.System) == "" || strings.TrimSpace(t.User) == "" {
			return nil, fmt.Errorf("prompts: template %q needs system and user text", name)
		}
		ut, err := template.New(name).Option("missingkey=error").Parse(t.User)
		if err != nil {
			return nil, fmt.Errorf("prompts: template %q: %w", name, err)
		}
		s.entries[name] = entry{system: strings.TrimSpace(t.System), user: ut}
	}
	return s, nil
}

func (s *Set) Render(name string, v Vars) (Rendered, error) {
	e, ok := s.entries[name]
	if !ok {
		return Rendered{}, fmt.Errorf("prompts: unknown template %q", name)
	}
	var b strings.Builder
	if err := e.user.Execute(&b, v); err != nil {
		return Rendered{}, fmt.Errorf("prompts: render %q: %w", name, err)
	}
	return Rendered{System: e.system, User: b.String()}, nil
}
