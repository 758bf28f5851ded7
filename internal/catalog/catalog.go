// Package catalog holds the whitelist of warehouse tables the assistant can
// read, their columns, relations and tenant keys.
package catalog

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/amcassist/amcassist/internal/warehouse"
)

//go:embed schema.yaml
var schemaYAML []byte

type TenantKind string

const (
	// TenantInstance tables carry the instance id directly.
	TenantInstance TenantKind = "instance"
	// TenantAdvertiser tables carry an advertiser id mapped from instances.
	TenantAdvertiser TenantKind = "advertiser"
	// TenantExecution tables are reached through amc_executions.
	TenantExecution TenantKind = "execution"
)

type Column struct {
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type" json:"type"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

type RelationDef struct {
	Name    string `yaml:"name"`
	Table   string `yaml:"table"`
	Local   string `yaml:"local"`
	Foreign string `yaml:"foreign"`
}

type TenantKey struct {
	Kind   TenantKind `yaml:"kind"`
	Column string     `yaml:"column"`
}

type WindowColumns struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

type TableDef struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	ReportType  string        `yaml:"report_type,omitempty"`
	Tenant      TenantKey     `yaml:"tenant"`
	DateColumn  string        `yaml:"date_column,omitempty"`
	Window      WindowColumns `yaml:"window,omitempty"`
	Columns     []Column      `yaml:"columns"`
	Relations   []RelationDef `yaml:"relations,omitempty"`
}

func (t TableDef) HasColumn(name string) bool {
	for _, column := range t.Columns {
		if column.Name == name {
			return true
		}
	}
	return false
}

func (t TableDef) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, column := range t.Columns {
		names = append(names, column.Name)
	}
	return names
}

func (t TableDef) relation(name string) (RelationDef, bool) {
	for _, rel := range t.Relations {
		if rel.Name == name {
			return rel, true
		}
	}
	return RelationDef{}, false
}

type Catalog struct {
	tables []TableDef
	byName map[string]TableDef
}

type document struct {
	Tables []TableDef `yaml:"tables"`
}

func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(doc.Tables) == 0 {
		return nil, fmt.Errorf("catalog has no tables")
	}

	c := &Catalog{byName: make(map[string]TableDef, len(doc.Tables))}
	for _, table := range doc.Tables {
		if table.Name == "" {
			return nil, fmt.Errorf("catalog table without name")
		}
		if _, dup := c.byName[table.Name]; dup {
			return nil, fmt.Errorf("duplicate catalog table %q", table.Name)
		}
		if len(table.Columns) == 0 {
			return nil, fmt.Errorf("catalog table %q has no columns", table.Name)
		}
		switch table.Tenant.Kind {
		case TenantInstance, TenantAdvertiser, TenantExecution:
			if !table.HasColumn(table.Tenant.Column) {
				return nil, fmt.Errorf("catalog table %q tenant column %q is not a column", table.Name, table.Tenant.Column)
			}
		default:
			return nil, fmt.Errorf("catalog table %q has invalid tenant kind %q", table.Name, table.Tenant.Kind)
		}
		c.tables = append(c.tables, table)
		c.byName[table.Name] = table
	}

	for _, table := range c.tables {
		for _, rel := range table.Relations {
			target, ok := c.byName[rel.Table]
			if !ok {
				return nil, fmt.Errorf("catalog table %q relation %q targets unknown table %q", table.Name, rel.Name, rel.Table)
			}
			if !table.HasColumn(rel.Local) || !target.HasColumn(rel.Foreign) {
				return nil, fmt.Errorf("catalog table %q relation %q has unknown join columns", table.Name, rel.Name)
			}
		}
	}
	return c, nil
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the embedded warehouse catalog.
func Default() *Catalog {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = Parse(schemaYAML)
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("embedded catalog is invalid: %v", defaultErr))
	}
	return defaultCatalog
}

func (c *Catalog) Table(name string) (TableDef, bool) {
	table, ok := c.byName[name]
	return table, ok
}

func (c *Catalog) Tables() []TableDef {
	out := make([]TableDef, len(c.tables))
	copy(out, c.tables)
	return out
}

func (c *Catalog) TableNames() []string {
	names := make([]string, 0, len(c.tables))
	for _, table := range c.tables {
		names = append(names, table.Name)
	}
	sort.Strings(names)
	return names
}

// Relation implements warehouse.Relations.
func (c *Catalog) Relation(table, name string) (warehouse.Relation, bool) {
	def, ok := c.byName[table]
	if !ok {
		return warehouse.Relation{}, false
	}
	rel, ok := def.relation(name)
	if !ok {
		return warehouse.Relation{}, false
	}
	return warehouse.Relation{
		Name:          rel.Name,
		Table:         rel.Table,
		LocalColumn:   rel.Local,
		ForeignColumn: rel.Foreign,
	}, true
}

// HasColumn reports whether column exists on table, following one level of
// "relation.column" projection.
func (c *Catalog) HasColumn(table, column string) bool {
	def, ok := c.byName[table]
	if !ok {
		return false
	}
	relName, name := warehouse.SplitColumn(column)
	if relName == "" {
		return def.HasColumn(name)
	}
	rel, ok := def.relation(relName)
	if !ok {
		return false
	}
	target, ok := c.byName[rel.Table]
	return ok && target.HasColumn(name)
}

// Describe renders the catalog as a plain-text schema reference for model
// prompts.
func (c *Catalog) Describe() string {
	var b strings.Builder
	for i, table := range c.tables {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Table %s: %s\n", table.Name, table.Description)
		for _, column := range table.Columns {
			fmt.Fprintf(&b, "  - %s (%s)", column.Name, column.Type)
			if column.Description != "" {
				fmt.Fprintf(&b, ": %s", column.Description)
			}
			b.WriteString("\n")
		}
		for _, rel := range table.Relations {
			fmt.Fprintf(&b, "  relation %s -> %s (select as %s.<column>)\n", rel.Name, rel.Table, rel.Name)
		}
	}
	return b.String()
}
