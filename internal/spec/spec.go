// Package spec holds the declarative description of the tables replicated
// from the Gateway: which collection each table reads, the fields it
// extracts, and the filters applied on the Gateway side.
package spec

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrConfig reports an invalid or unreadable extraction config.
var ErrConfig = errors.New("invalid extraction config")

// Kind is the semantic type of an extracted field. It selects both the
// Gateway-side formatting expression and the local coercion applied to the
// decoded value.
type Kind string

const (
	KindText     Kind = "text"
	KindLogical  Kind = "logical"
	KindDate     Kind = "date"
	KindNumber   Kind = "number"
	KindAmount   Kind = "amount"
	KindQuantity Kind = "quantity"
	KindRate     Kind = "rate"
)

var validKinds = map[Kind]bool{
	KindText:     true,
	KindLogical:  true,
	KindDate:     true,
	KindNumber:   true,
	KindAmount:   true,
	KindQuantity: true,
	KindRate:     true,
}

// Field is one extracted column: a destination column name, a Gateway
// expression, and the kind controlling formatting and coercion.
type Field struct {
	Name string `yaml:"name"`
	Expr string `yaml:"field"`
	Kind Kind   `yaml:"type"`
}

// Cascade names a child table whose rows are removed when a parent row is
// deleted, joined through the child column holding the parent guid.
type Cascade struct {
	Table  string `yaml:"table"`
	Column string `yaml:"field"`
}

// Table describes one replicated table.
type Table struct {
	Name       string    `yaml:"name"`
	Collection string    `yaml:"collection"`
	Nature     string    `yaml:"nature"` // "Primary" or "Secondary"
	Fields     []Field   `yaml:"fields"`
	Fetch      []string  `yaml:"fetch"`
	Filters    []string  `yaml:"filters"`
	Cascades   []Cascade `yaml:"cascade_delete"`
}

// Primary reports whether the table is independently diffable: it has its
// own guid and alter-id on the Gateway side. Secondary tables are only ever
// removed through a parent cascade.
func (t Table) Primary() bool { return t.Nature == "Primary" }

// Config is the full extraction config: the master tables synced first and
// the transaction tables synced after them.
type Config struct {
	Master      []Table `yaml:"master"`
	Transaction []Table `yaml:"transaction"`
}

// All returns master tables followed by transaction tables, the order in
// which they are synced.
func (c *Config) All() []Table {
	out := make([]Table, 0, len(c.Master)+len(c.Transaction))
	out = append(out, c.Master...)
	out = append(out, c.Transaction...)
	return out
}

// TableNames returns the names of every replicated table in sync order.
func (c *Config) TableNames() []string {
	all := c.All()
	names := make([]string, len(all))
	for i, t := range all {
		names[i] = t.Name
	}
	return names
}

// Find returns the table with the given name.
func (c *Config) Find(name string) (Table, bool) {
	for _, t := range c.All() {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// Load reads the extraction config from path. When path does not exist the
// embedded default config is used, so a fresh checkout works without any
// external files. incremental selects the incremental variant of the
// embedded default.
func Load(path string, incremental bool) (*Config, error) {
	var data []byte
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			data = b
		case os.IsNotExist(err):
			// fall through to embedded default
		default:
			return nil, fmt.Errorf("%w: read %s: %v", ErrConfig, path, err)
		}
	}
	if data == nil {
		if incremental {
			data = []byte(defaultIncrementalYAML)
		} else {
			data = []byte(defaultFullYAML)
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse yaml: %v", ErrConfig, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Master) == 0 && len(c.Transaction) == 0 {
		return fmt.Errorf("%w: no tables defined", ErrConfig)
	}
	seen := make(map[string]bool)
	for _, t := range c.All() {
		if t.Name == "" {
			return fmt.Errorf("%w: table with empty name", ErrConfig)
		}
		if seen[t.Name] {
			return fmt.Errorf("%w: duplicate table %q", ErrConfig, t.Name)
		}
		seen[t.Name] = true
		if t.Collection == "" {
			return fmt.Errorf("%w: table %q has no collection", ErrConfig, t.Name)
		}
		if t.Nature != "" && t.Nature != "Primary" && t.Nature != "Secondary" {
			return fmt.Errorf("%w: table %q has nature %q", ErrConfig, t.Name, t.Nature)
		}
		if len(t.Fields) == 0 {
			return fmt.Errorf("%w: table %q has no fields", ErrConfig, t.Name)
		}
		for _, f := range t.Fields {
			if f.Name == "" {
				return fmt.Errorf("%w: table %q: field with empty name", ErrConfig, t.Name)
			}
			if !validKinds[f.Kind] {
				return fmt.Errorf("%w: table %q field %q: unknown type %q", ErrConfig, t.Name, f.Name, f.Kind)
			}
		}
	}
	return nil
}
