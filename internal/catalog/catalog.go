// Package catalog holds the immutable exercise catalog shared by every component.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Exercise describes one trackable activity with its goal threshold.
type Exercise struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
	Unit    string   `yaml:"unit"`
	Goal    int64    `yaml:"goal"`
}

// Catalog is a read-only lookup over the configured exercises.
// Built once at startup and passed by reference; never mutated afterwards.
type Catalog struct {
	ordered []Exercise
	byID    map[string]int
	byAlias map[string]string
}

// ErrEmptyCatalog indicates the catalog source contained no exercises.
var ErrEmptyCatalog = errors.New("exercise catalog is empty")

// New validates the definitions and builds the alias index.
// Aliases must be disjoint across exercises after lowercase normalization.
func New(defs []Exercise) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, ErrEmptyCatalog
	}

	c := &Catalog{
		ordered: make([]Exercise, 0, len(defs)),
		byID:    make(map[string]int, len(defs)),
		byAlias: make(map[string]string),
	}

	for _, def := range defs {
		if strings.TrimSpace(def.ID) == "" {
			return nil, fmt.Errorf("exercise with empty id (name=%q)", def.Name)
		}
		if strings.TrimSpace(def.Name) == "" {
			return nil, fmt.Errorf("exercise %q has no display name", def.ID)
		}
		if def.Goal <= 0 {
			return nil, fmt.Errorf("exercise %q has non-positive goal %d", def.ID, def.Goal)
		}
		if len(def.Aliases) == 0 {
			return nil, fmt.Errorf("exercise %q has no aliases", def.ID)
		}
		if _, exists := c.byID[def.ID]; exists {
			return nil, fmt.Errorf("duplicate exercise id %q", def.ID)
		}

		for _, alias := range def.Aliases {
			normalized := strings.ToLower(strings.TrimSpace(alias))
			if normalized == "" {
				return nil, fmt.Errorf("exercise %q has an empty alias", def.ID)
			}
			if owner, taken := c.byAlias[normalized]; taken {
				return nil, fmt.Errorf("alias %q claimed by both %q and %q", normalized, owner, def.ID)
			}
			c.byAlias[normalized] = def.ID
		}

		c.byID[def.ID] = len(c.ordered)
		c.ordered = append(c.ordered, def)
	}

	return c, nil
}

// Load reads exercise definitions from a YAML file and builds a catalog.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	var file struct {
		Exercises []Exercise `yaml:"exercises"`
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}
	return New(file.Exercises)
}

// Default returns the built-in exercise set used when no catalog file is configured.
func Default() *Catalog {
	c, err := New([]Exercise{
		{ID: "plank", Name: "Plank (Seconds)", Aliases: []string{"plk"}, Unit: "seconds", Goal: 300},
		{ID: "rope", Name: "Rope Skipping (Mins)", Aliases: []string{"rop"}, Unit: "minutes", Goal: 60},
		{ID: "pushup", Name: "Push-Ups", Aliases: []string{"psh"}, Unit: "reps", Goal: 500},
		{ID: "squat", Name: "Squats", Aliases: []string{"sqt"}, Unit: "reps", Goal: 1000},
		{ID: "abs", Name: "Abs Circuit (Reps)", Aliases: []string{"abs"}, Unit: "reps", Goal: 1000},
		{ID: "jab", Name: "Jabs", Aliases: []string{"jab"}, Unit: "reps", Goal: 2000},
		{ID: "uppercut", Name: "Uppercuts", Aliases: []string{"upc"}, Unit: "reps", Goal: 1000},
		{ID: "straight", Name: "Straights", Aliases: []string{"str"}, Unit: "reps", Goal: 2000},
	})
	if err != nil {
		panic(err)
	}
	return c
}

// Resolve maps a command alias to its exercise. Matching is
// case-insensitive and exact; no fuzzy matching.
func (c *Catalog) Resolve(alias string) (Exercise, bool) {
	id, ok := c.byAlias[strings.ToLower(strings.TrimSpace(alias))]
	if !ok {
		return Exercise{}, false
	}
	return c.ordered[c.byID[id]], true
}

// Get returns the exercise with the given identifier.
func (c *Catalog) Get(id string) (Exercise, bool) {
	idx, ok := c.byID[id]
	if !ok {
		return Exercise{}, false
	}
	return c.ordered[idx], true
}

// Exercises returns all exercises in declaration order.
func (c *Catalog) Exercises() []Exercise {
	out := make([]Exercise, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// IDs returns exercise identifiers in declaration order.
func (c *Catalog) IDs() []string {
	out := make([]string, len(c.ordered))
	for i, ex := range c.ordered {
		out[i] = ex.ID
	}
	return out
}

// Len reports the number of exercises.
func (c *Catalog) Len() int {
	return len(c.ordered)
}
