// internal/sequence/catalog.go
//
// Catalog loading.
//
// Initialization behavior (Load):
//  1. If a path is given, parse that YAML file.
//  2. Otherwise fall back to the embedded assets/catalog.yaml.
//
// A catalog is rejected when it has no items, repeats an item name, or
// declares a level whose sequence length does not fit the item list.

package sequence

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/robalobadob/mejikuhibiniu/assets"
)

// Catalog is the ordered item list plus the difficulty table.
type Catalog struct {
	Default Difficulty           `yaml:"default" json:"default"`
	Items   []Template           `yaml:"items" json:"items"`
	Levels  map[Difficulty]Level `yaml:"levels" json:"levels"`
}

// Load reads a catalog from path, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	var (
		raw []byte
		err error
	)
	if path != "" {
		raw, err = os.ReadFile(path)
	} else {
		raw, err = assets.Catalog()
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates a YAML catalog.
func Parse(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if c.Default == "" {
		c.Default = Medium
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Default returns the built-in catalog. It panics if the embedded file is broken.
func Default() *Catalog {
	c, err := Load("")
	if err != nil {
		panic(err)
	}
	return c
}

// Validate checks the catalog invariants.
func (c *Catalog) Validate() error {
	if len(c.Items) == 0 {
		return errors.New("catalog: no items")
	}
	seen := make(map[string]struct{}, len(c.Items))
	for _, it := range c.Items {
		if it.Name == "" {
			return errors.New("catalog: item without name")
		}
		if _, dup := seen[it.Name]; dup {
			return fmt.Errorf("catalog: duplicate item %q", it.Name)
		}
		seen[it.Name] = struct{}{}
	}
	if len(c.Levels) == 0 {
		return errors.New("catalog: no difficulty levels")
	}
	for d, lv := range c.Levels {
		if lv.SequenceLength < 1 || lv.SequenceLength > len(c.Items) {
			return fmt.Errorf("catalog: level %s sequence length %d outside 1..%d", d, lv.SequenceLength, len(c.Items))
		}
		if lv.TimerSeconds < 0 {
			return fmt.Errorf("catalog: level %s has negative timer", d)
		}
	}
	if _, ok := c.Levels[c.Default]; !ok {
		return fmt.Errorf("catalog: default difficulty %s not in levels", c.Default)
	}
	return nil
}

// Level looks up a difficulty.
func (c *Catalog) Level(d Difficulty) (Level, bool) {
	lv, ok := c.Levels[d]
	return lv, ok
}

// Difficulties lists the keys ordered by sequence length, then name.
func (c *Catalog) Difficulties() []Difficulty {
	out := make([]Difficulty, 0, len(c.Levels))
	for d := range c.Levels {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		li, lj := c.Levels[out[i]], c.Levels[out[j]]
		if li.SequenceLength != lj.SequenceLength {
			return li.SequenceLength < lj.SequenceLength
		}
		return out[i] < out[j]
	})
	return out
}
