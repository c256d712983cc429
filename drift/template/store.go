package template

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

// templateSchema constrains the on-disk template format. Structural checks
// the schema cannot express (turn ordering) live in Template.Validate.
const templateSchema = `{
  "type": "object",
  "required": ["template_id", "initial_setup", "turns"],
  "properties": {
    "template_id": {"type": "string", "minLength": 1},
    "initial_setup": {
      "type": "object",
      "required": ["original_goal", "hard_constraints"],
      "properties": {
        "original_goal": {"type": "string", "minLength": 1},
        "hard_constraints": {"type": "array", "items": {"type": "string"}},
        "system_prompt": {"type": "string"}
      }
    },
    "turns": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["turn_id", "role", "content"],
        "properties": {
          "turn_id": {"type": "integer"},
          "role": {"type": "string", "enum": ["user", "assistant"]},
          "content": {"type": "string"},
          "is_compression_point": {"type": "boolean"}
        }
      }
    }
  }
}`

// Store loads versioned conversation templates from a directory of JSON
// files, one template per <template_id>.json. Loaded templates are cached;
// an optional directory watcher invalidates the cache when a file changes.
type Store struct {
	dir    string
	schema *gojsonschema.Schema
	logger zerolog.Logger

	mu      sync.RWMutex
	cache   map[string]*Template
	watcher *fsnotify.Watcher
}

// NewStore creates a template store rooted at dir.
func NewStore(dir string, logger zerolog.Logger) (*Store, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(templateSchema))
	if err != nil {
		return nil, fmt.Errorf("compile template schema: %w", err)
	}
	return &Store{
		dir:    dir,
		schema: schema,
		logger: logger,
		cache:  make(map[string]*Template),
	}, nil
}

// Load returns the template with the given id, reading and validating it on
// first access. Malformed templates fail fast here, before any trial starts.
func (s *Store) Load(templateID string) (*Template, error) {
	s.mu.RLock()
	if cached, ok := s.cache[templateID]; ok {
		s.mu.RUnlock()
		return cached, nil
	}
	s.mu.RUnlock()

	path := filepath.Join(s.dir, templateID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template %q: %w", templateID, err)
	}

	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, &ValidationError{TemplateID: templateID, Reason: err.Error()}
	}
	if !result.Valid() {
		return nil, &ValidationError{TemplateID: templateID, Reason: result.Errors()[0].String()}
	}

	var tmpl Template
	if err := json.Unmarshal(data, &tmpl); err != nil {
		return nil, &ValidationError{TemplateID: templateID, Reason: err.Error()}
	}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[templateID] = &tmpl
	s.mu.Unlock()

	s.logger.Debug().Str("template_id", templateID).Int("turns", len(tmpl.Turns)).Msg("template loaded")
	return &tmpl, nil
}

// List returns the ids of all templates present in the store directory.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		ids = append(ids, entry.Name()[:len(entry.Name())-len(".json")])
	}
	return ids, nil
}

// Watch invalidates cached templates when their files change on disk. Returns
// a stop function.
func (s *Store) Watch() (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("start template watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", s.dir, err)
	}
	s.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if filepath.Ext(event.Name) != ".json" {
					continue
				}
				id := filepath.Base(event.Name)
				id = id[:len(id)-len(".json")]
				s.mu.Lock()
				delete(s.cache, id)
				s.mu.Unlock()
				s.logger.Debug().Str("template_id", id).Msg("template cache invalidated")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn().Err(err).Msg("template watcher error")
			}
		}
	}()

	return func() { watcher.Close() }, nil
}
