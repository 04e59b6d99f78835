package prompt

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/valyala/fasttemplate"
	"gopkg.in/yaml.v3"

	"raglab/internal/domain"
)

const customSuffix = ".yaml"

// Template is a system prompt with {context}, {history} and {question}
// style slots plus the human prompt that carries the question.
type Template struct {
	Name           string
	System         string
	Human          string
	InputVariables []string
}

// RenderSystem substitutes slots in the system part. Unknown slots are kept.
func (t Template) RenderSystem(slots map[string]string) string { return render(t.System, slots) }

// RenderHuman substitutes slots in the human part.
func (t Template) RenderHuman(slots map[string]string) string { return render(t.Human, slots) }

// render substitutes {name} slots in s.
func render(s string, slots map[string]string) string {
	m := make(map[string]any, len(slots))
	for k, v := range slots {
		m[k] = v
	}
	return fasttemplate.ExecuteStringStd(s, "{", "}", m)
}

// CustomPrompt is the on-disk form of a user prompt file.
type CustomPrompt struct {
	Type           string   `yaml:"_type"`
	InputVariables []string `yaml:"input_variables"`
	Template       string   `yaml:"template"`
}

var slotPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Validate checks the required fields and that every declared variable
// appears as a slot in the template.
func (c CustomPrompt) Validate() error {
	if c.Type != "prompt" {
		return fmt.Errorf("_type must be %q, got %q", "prompt", c.Type)
	}
	if len(c.InputVariables) == 0 {
		return errors.New("input_variables is required")
	}
	if strings.TrimSpace(c.Template) == "" {
		return errors.New("template is required")
	}
	present := map[string]bool{}
	for _, m := range slotPattern.FindAllStringSubmatch(c.Template, -1) {
		present[m[1]] = true
	}
	for _, v := range c.InputVariables {
		if !present[v] {
			return fmt.Errorf("input variable %q does not appear in template", v)
		}
	}
	return nil
}

// Registry resolves prompt names to templates. Custom prompt files are
// read once and then served from memory.
type Registry struct {
	dir string
	log *slog.Logger

	mu     sync.Mutex
	loaded map[string]Template
}

// NewRegistry creates a registry reading custom prompts from dir.
func NewRegistry(dir string, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{dir: dir, log: log, loaded: map[string]Template{}}
}

// Resolve returns the template for name. The empty name is the default prompt.
func (r *Registry) Resolve(name string) (Template, error) {
	if name == "" {
		name = DefaultName
	}
	if t, ok := builtins[name]; ok {
		return t, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.loaded[name]; ok {
		return t, nil
	}
	t, err := r.load(name)
	if err != nil {
		return Template{}, err
	}
	r.loaded[name] = t
	return t, nil
}

func (r *Registry) load(name string) (Template, error) {
	if name != filepath.Base(name) {
		return Template{}, domain.Errorf(domain.KindUnknownPrompt, name, "prompt names may not contain a path")
	}
	path := filepath.Join(r.dir, name)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Template{}, domain.NewError(domain.KindUnknownPrompt, name, "prompt is neither built-in nor a custom prompt file", err)
	}
	if err != nil {
		return Template{}, domain.NewError(domain.KindInvalidTemplateFormat, name, "cannot read prompt file", err)
	}
	if filepath.Ext(name) != customSuffix {
		return Template{}, domain.Errorf(domain.KindInvalidTemplateFormat, name, "expected a file with %s suffix, got %q", customSuffix, filepath.Ext(name))
	}
	var c CustomPrompt
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Template{}, domain.NewError(domain.KindInvalidTemplateFormat, name, "prompt file is not valid YAML", err)
	}
	if err := c.Validate(); err != nil {
		return Template{}, domain.NewError(domain.KindInvalidTemplateFormat, name, "malformed prompt file", err)
	}
	r.log.Debug("loaded custom prompt", "prompt", name, "variables", c.InputVariables)
	return Template{Name: name, System: c.Template, Human: customHuman, InputVariables: c.InputVariables}, nil
}

// Names lists built-in prompts followed by the custom prompt files in the directory.
func (r *Registry) Names() ([]string, error) {
	names := slices.Sorted(maps.Keys(builtins))
	entries, err := os.ReadDir(r.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return names, nil
	}
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == customSuffix {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// SaveCustom validates and writes a custom prompt file, replacing any
// cached copy.
func (r *Registry) SaveCustom(file string, c CustomPrompt) error {
	if file != filepath.Base(file) || filepath.Ext(file) != customSuffix {
		return domain.Errorf(domain.KindInvalidTemplateFormat, file, "custom prompts are saved as %s files in the prompt directory", customSuffix)
	}
	if _, ok := builtins[file]; ok {
		return domain.Errorf(domain.KindInvalidArgument, file, "name is taken by a built-in prompt")
	}
	if err := c.Validate(); err != nil {
		return domain.NewError(domain.KindInvalidTemplateFormat, file, "malformed prompt", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(r.dir, file), data, 0o644); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.loaded, file)
	r.mu.Unlock()
	return nil
}
