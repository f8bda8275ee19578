// Package prompts loads the system prompts and the context-note templates
// used by the intent router.
package prompts

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/nikolalohinski/gonja"
	"github.com/nikolalohinski/gonja/exec"
	"gopkg.in/yaml.v3"
)

// System prompt names.
const (
	Analyzer    = "analyzer"
	Personality = "personality"
)

// Context-note template names.
const (
	NoteCreateEmpty    = "create_task_empty"
	NoteCreateDone     = "create_task_done"
	NoteQueryEmpty     = "query_empty"
	NoteQueryTasks     = "query_tasks"
	NoteUpdateNoID     = "update_no_id"
	NoteUpdateNotFound = "update_not_found"
	NoteUpdateDone     = "update_done"
	NoteUpdateUnknown  = "update_unknown"
)

//go:embed system/*.yaml templates/*.j2
var embedded embed.FS

// ErrNotFound is returned for an unknown prompt or template name.
var ErrNotFound = errors.New("prompt not found")

type promptFile struct {
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
	SystemPrompt string `yaml:"system_prompt"`
}

// Set is an immutable collection of prompts. It is safe for concurrent use.
type Set struct {
	system    map[string]string
	templates map[string]*exec.Template
}

// Load reads the embedded prompts, then lets files under dir override them:
// dir/system/<name>.yaml and dir/templates/<name>.j2. An empty dir uses the
// embedded prompts only.
func Load(dir string) (*Set, error) {
	s := &Set{
		system:    make(map[string]string),
		templates: make(map[string]*exec.Template),
	}
	if err := s.loadFS(embedded); err != nil {
		return nil, fmt.Errorf("load embedded prompts: %w", err)
	}
	if dir == "" {
		return s, nil
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("prompts dir: %w", err)
	}
	if err := s.loadFS(os.DirFS(filepath.Clean(dir))); err != nil {
		return nil, fmt.Errorf("load prompts from %s: %w", dir, err)
	}
	return s, nil
}

// MustLoad is Load("") for callers that cannot recover.
func MustLoad() *Set {
	s, err := Load("")
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Set) loadFS(fsys fs.FS) error {
	yamls, err := fs.Glob(fsys, "system/*.yaml")
	if err != nil {
		return err
	}
	for _, p := range yamls {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		var pf promptFile
		if err := yaml.Unmarshal(data, &pf); err != nil {
			return fmt.Errorf("parse %s: %w", p, err)
		}
		if strings.TrimSpace(pf.SystemPrompt) == "" {
			return fmt.Errorf("%s: system_prompt is empty", p)
		}
		s.system[strings.TrimSuffix(path.Base(p), ".yaml")] = strings.TrimRight(pf.SystemPrompt, "\n")
	}

	tpls, err := fs.Glob(fsys, "templates/*.j2")
	if err != nil {
		return err
	}
	for _, p := range tpls {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		tpl, err := gonja.FromString(string(data))
		if err != nil {
			return fmt.Errorf("parse %s: %w", p, err)
		}
		s.templates[strings.TrimSuffix(path.Base(p), ".j2")] = tpl
	}
	return nil
}

// System returns the named system prompt.
func (s *Set) System(name string) (string, error) {
	text, ok := s.system[name]
	if !ok {
		return "", fmt.Errorf("system prompt %q: %w", name, ErrNotFound)
	}
	return text, nil
}

// Render executes the named template with data.
func (s *Set) Render(name string, data map[string]any) (string, error) {
	tpl, ok := s.templates[name]
	if !ok {
		return "", fmt.Errorf("template %q: %w", name, ErrNotFound)
	}
	out, err := tpl.Execute(gonja.Context(data))
	if err != nil {
		return "", fmt.Errorf("render %q: %w", name, err)
	}
	return strings.TrimRight(out, "\n"), nil
}
