// Package patterns provides a centralized pattern registry for HTTP attack
// signature detection. All regex patterns are compiled once at package init
// and shared across all scorers.
//
// Design principles:
// - COMPILE ONCE: All patterns compiled at init, not per-request
// - DRY: Single source of truth for all signature indicators
// - CATEGORIZED: Patterns organized by attack class for targeted scoring
// - EXTENSIBLE: Extra indicators can be loaded from YAML without code changes
package patterns

import (
	"fmt"
	"os"
	"regexp"
	"sync"

	"gopkg.in/yaml.v3"
)

// Category represents an attack signature category
type Category string

const (
	CategorySQLInjection  Category = "sql_injection"
	CategoryXSS           Category = "xss"
	CategoryPathTraversal Category = "path_traversal"
)

// Pattern holds a compiled regex with metadata
type Pattern struct {
	Name        string         // Human-readable name for logging
	Regex       *regexp.Regexp // Compiled regex (never nil after init)
	Category    Category       // Attack category
	Description string         // What this pattern detects
}

// Registry holds all compiled patterns, organized by category
type Registry struct {
	mu         sync.RWMutex
	byCategory map[Category][]*Pattern
}

// global singleton - initialized once at package load
var (
	globalRegistry *Registry
	initOnce       sync.Once
)

// Get returns the global pattern registry (singleton).
// Thread-safe and guaranteed to be initialized.
func Get() *Registry {
	initOnce.Do(func() {
		globalRegistry = newRegistry()
	})
	return globalRegistry
}

// newRegistry creates and populates the pattern registry
func newRegistry() *Registry {
	r := &Registry{
		byCategory: make(map[Category][]*Pattern),
	}

	r.registerSQLInjectionPatterns()
	r.registerXSSPatterns()
	r.registerPathTraversalPatterns()

	return r
}

// register adds a pattern to the registry (internal use only)
func (r *Registry) register(name, pattern string, category Category, description string) {
	p := &Pattern{
		Name:        name,
		Regex:       regexp.MustCompile(pattern),
		Category:    category,
		Description: description,
	}
	r.byCategory[category] = append(r.byCategory[category], p)
}

// GetByCategory returns all patterns for a specific category.
// Returns empty slice if category not found (never nil).
func (r *Registry) GetByCategory(cat Category) []*Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if ps, ok := r.byCategory[cat]; ok {
		return ps
	}
	return []*Pattern{}
}

// MatchCount returns the number of distinct patterns in a category that
// match the given text. Each pattern counts once regardless of how many
// times it occurs.
func (r *Registry) MatchCount(text string, cat Category) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, p := range r.byCategory[cat] {
		if p.Regex.MatchString(text) {
			count++
		}
	}
	return count
}

// TotalPatterns returns the total number of registered patterns
func (r *Registry) TotalPatterns() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, ps := range r.byCategory {
		total += len(ps)
	}
	return total
}

// detectionConfig mirrors the YAML structure for indicator overrides
type detectionConfig struct {
	Indicators map[string][]string `yaml:"indicators"`
}

// LoadFromYAML registers additional indicator regexes from a YAML file of
// the form:
//
//	indicators:
//	  sql_injection:
//	    - 'benchmark\s*\('
//	  xss:
//	    - '<svg[^>]+onload'
//
// Invalid regexes are skipped with an error so one bad entry does not take
// down the whole file. Built-in patterns are never removed.
func (r *Registry) LoadFromYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read detection config: %w", err)
	}

	var cfg detectionConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse detection config: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for category, exprs := range cfg.Indicators {
		cat := Category(category)
		for i, expr := range exprs {
			compiled, err := regexp.Compile(expr)
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("compile %s indicator %d: %w", category, i, err)
				}
				continue
			}
			r.byCategory[cat] = append(r.byCategory[cat], &Pattern{
				Name:        fmt.Sprintf("%s_custom_%d", category, i),
				Regex:       compiled,
				Category:    cat,
				Description: "custom indicator loaded from config",
			})
		}
	}
	return firstErr
}
