package models

import "strings"

// Schema is a named bag of tables loaded from a schema descriptor file.
type Schema struct {
	Name          string  `json:"name" yaml:"name"`
	ConnectionURL string  `json:"connection_url,omitempty" yaml:"connection_url,omitempty"`
	Tables        []Table `json:"tables" yaml:"tables"`
}

// Table describes one relation in a schema descriptor.
type Table struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Columns     []Column `json:"columns" yaml:"columns"`
}

// Column describes one column, including an optional declared foreign key.
type Column struct {
	Name        string      `json:"name" yaml:"name"`
	DataType    string      `json:"data_type" yaml:"data_type"`
	Nullable    bool        `json:"nullable" yaml:"nullable"`
	PrimaryKey  bool        `json:"primary_key,omitempty" yaml:"primary_key,omitempty"`
	ForeignKey  *ForeignKey `json:"foreign_key,omitempty" yaml:"foreign_key,omitempty"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
}

// ForeignKey is a declared reference to another table's column.
type ForeignKey struct {
	TargetTable  string `json:"target_table" yaml:"target_table"`
	TargetColumn string `json:"target_column" yaml:"target_column"`
}

// FindTable returns the table with the given name (case-insensitive), or nil.
func (s *Schema) FindTable(name string) *Table {
	for i := range s.Tables {
		if strings.EqualFold(s.Tables[i].Name, name) {
			return &s.Tables[i]
		}
	}
	return nil
}

// FindColumn returns the column with the given name (case-insensitive), or nil.
func (t *Table) FindColumn(name string) *Column {
	for i := range t.Columns {
		if strings.EqualFold(t.Columns[i].Name, name) {
			return &t.Columns[i]
		}
	}
	return nil
}

// ColumnNames returns the table's column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}
