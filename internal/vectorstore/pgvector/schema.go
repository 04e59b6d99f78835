package pgvector

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"

	"raglab/internal/domain"
)

// DataType is the type of a class property.
type DataType string

const (
	DataText    DataType = "text"
	DataInt     DataType = "int"
	DataNumber  DataType = "number"
	DataBoolean DataType = "boolean"
	DataDate    DataType = "date"
)

var sqlTypes = map[DataType]string{
	DataText:    "text",
	DataInt:     "bigint",
	DataNumber:  "double precision",
	DataBoolean: "boolean",
	DataDate:    "timestamptz",
}

// Columns every class table carries besides its properties.
const (
	idColumn        = "id"
	embeddingColumn = "embedding"
	metadataColumn  = "metadata"
)

var reserved = map[string]bool{idColumn: true, embeddingColumn: true, metadataColumn: true}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Property is one typed field of a class.
type Property struct {
	Name     string   `json:"name"`
	DataType DataType `json:"dataType"`
}

// ClassDefinition is the explicit schema of a collection on this backend.
type ClassDefinition struct {
	Class       string     `json:"class"`
	Description string     `json:"description,omitempty"`
	Properties  []Property `json:"properties"`
}

// Property returns the named property.
func (d ClassDefinition) Property(name string) (Property, bool) {
	for _, p := range d.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// Validate checks identifiers, data types and property uniqueness.
func (d ClassDefinition) Validate() error {
	if err := checkIdent(d.Class); err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, p := range d.Properties {
		if err := checkIdent(p.Name); err != nil {
			return err
		}
		if reserved[strings.ToLower(p.Name)] {
			return domain.Errorf(domain.KindInvalidArgument, p.Name, "property name is reserved")
		}
		if seen[p.Name] {
			return domain.Errorf(domain.KindInvalidArgument, p.Name, "duplicate property")
		}
		seen[p.Name] = true
		if _, ok := sqlTypes[p.DataType]; !ok {
			return domain.Errorf(domain.KindInvalidArgument, string(p.DataType), "unsupported data type for property %s", p.Name)
		}
	}
	return nil
}

func checkIdent(name string) error {
	if !identPattern.MatchString(name) {
		return domain.Errorf(domain.KindInvalidArgument, name, "invalid identifier")
	}
	return nil
}

func createTableSQL(d ClassDefinition) (string, error) {
	if err := d.Validate(); err != nil {
		return "", err
	}
	cols := []string{idColumn + " uuid PRIMARY KEY"}
	for _, p := range d.Properties {
		cols = append(cols, pq.QuoteIdentifier(p.Name)+" "+sqlTypes[p.DataType])
	}
	cols = append(cols,
		metadataColumn+" jsonb NOT NULL DEFAULT '{}'::jsonb",
		embeddingColumn+" vector",
	)
	stmt := fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", pq.QuoteIdentifier(d.Class), strings.Join(cols, ",\n\t"))
	return stmt, nil
}

func commentSQL(d ClassDefinition) string {
	return fmt.Sprintf("COMMENT ON TABLE %s IS %s", pq.QuoteIdentifier(d.Class), pq.QuoteLiteral(d.Description))
}

// dataTypeOf maps an information_schema data_type back to a property type.
func dataTypeOf(sqlType string) (DataType, bool) {
	switch sqlType {
	case "text", "character varying":
		return DataText, true
	case "bigint", "integer", "smallint":
		return DataInt, true
	case "double precision", "real", "numeric":
		return DataNumber, true
	case "boolean":
		return DataBoolean, true
	case "timestamp with time zone", "timestamp without time zone", "date":
		return DataDate, true
	}
	return "", false
}

const (
	codeUndefinedTable = "42P01"
	codeDuplicateTable = "42P07"
)

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}
