package msgcat

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"text/template"

	yaml "gopkg.in/yaml.v3"
)

//go:embed messages.ko.yaml
var defaultFiles embed.FS

// Catalog holds the message templates shown to a participant. Templates are
// parsed once at load time; Render fails on missing data keys.
type Catalog struct {
	mu    sync.RWMutex
	tpls  map[string]*template.Template
	files map[string]string // key -> file it came from
}

// New loads the embedded defaults, then every *.yaml in overrideDir if set.
func New(overrideDir string) (*Catalog, error) {
	c := &Catalog{tpls: make(map[string]*template.Template), files: make(map[string]string)}
	if err := c.load(defaultFiles, "messages.ko.yaml", false); err != nil {
		return nil, err
	}
	if strings.TrimSpace(overrideDir) != "" {
		if err := c.loadDir(os.DirFS(overrideDir)); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) loadDir(fsys fs.FS) error {
	names, err := fs.Glob(fsys, "*.y*ml")
	if err != nil {
		return fmt.Errorf("list overrides: %w", err)
	}
	sort.Strings(names)
	for _, name := range names {
		if ext := path.Ext(name); ext != ".yaml" && ext != ".yml" {
			continue
		}
		if err := c.load(fsys, name, true); err != nil {
			return err
		}
	}
	return nil
}

// load parses one file. Two override files may not define the same key.
func (c *Catalog) load(fsys fs.FS, name string, override bool) error {
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	flat := make(map[string]string)
	if err := flatten(tree, "", flat); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, text := range flat {
		if prev, ok := c.files[key]; ok && override && prev != "" {
			return fmt.Errorf("duplicate override key %q in %s and %s", key, prev, name)
		}
		tpl, err := template.New(key).Option("missingkey=error").Parse(text)
		if err != nil {
			return fmt.Errorf("%s: key %s: %w", name, key, err)
		}
		c.tpls[key] = tpl
		if override {
			c.files[key] = name
		} else {
			c.files[key] = ""
		}
	}
	return nil
}

func flatten(src any, prefix string, out map[string]string) error {
	switch v := src.(type) {
	case map[string]any:
		for k, vv := range v {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if err := flatten(vv, key, out); err != nil {
				return err
			}
		}
		return nil
	case string:
		if prefix == "" {
			return errors.New("string value without key")
		}
		out[prefix] = v
		return nil
	case nil:
		return nil
	default:
		return fmt.Errorf("unsupported value at %s: %T", prefix, v)
	}
}

// Render executes the template stored under key.
func (c *Catalog) Render(key string, data any) (string, error) {
	c.mu.RLock()
	tpl, ok := c.tpls[strings.TrimSpace(key)]
	c.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("template not found: %s", key)
	}
	var b strings.Builder
	if err := tpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Require fails unless every key has a template.
func (c *Catalog) Require(keys ...string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var missing []string
	for _, k := range keys {
		if _, ok := c.tpls[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing message keys: %s", strings.Join(missing, ", "))
	}
	return nil
}
