// Package yamlload parses the declarative YAML fixture file named in
// spec.md §6 into a schema.Database. It mirrors original_source's
// yaml/parser.rs and yaml/schema.rs: an IndexMap-ordered table/column
// walk (done here with yaml.v3's Node API since Go's yaml.v3 has no
// MapSlice-style ordered-map decoding), type-token parsing with
// modifiers, and per-type value conversion from the loosely-typed YAML
// scalar into a value.Value.
package yamlload

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/yamldb/yamldb/internal/schema"
	"github.com/yamldb/yamldb/internal/value"
	"github.com/yamldb/yamldb/internal/yamlerr"
)

type yamlRoot struct {
	Database yamlDatabaseInfo `yaml:"database"`
	Tables   yaml.Node        `yaml:"tables"`
}

type yamlDatabaseInfo struct {
	Name string    `yaml:"name"`
	Auth *yamlAuth `yaml:"auth"`
}

type yamlAuth struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type yamlTable struct {
	Columns yaml.Node `yaml:"columns"`
	Data    []yaml.Node `yaml:"data"`
}

// Load reads and parses path into a schema.Database, per spec.md §6's
// YAML file layout.
func Load(path string) (*schema.Database, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, yamlerr.Wrap(yamlerr.KindIO, err, "reading %s", path)
	}

	var root yamlRoot
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, yamlerr.Wrap(yamlerr.KindParse, err, "parsing YAML database file")
	}

	db := schema.NewDatabase(root.Database.Name)
	if root.Database.Auth != nil {
		db.Auth = &schema.Auth{Username: root.Database.Auth.Username, Password: root.Database.Auth.Password}
	}

	if root.Tables.Kind != yaml.MappingNode {
		return db, nil
	}

	for i := 0; i+1 < len(root.Tables.Content); i += 2 {
		name := root.Tables.Content[i].Value
		var yt yamlTable
		if err := root.Tables.Content[i+1].Decode(&yt); err != nil {
			return nil, yamlerr.Wrap(yamlerr.KindParse, err, "parsing table %q", name)
		}
		table, err := buildTable(name, &yt)
		if err != nil {
			return nil, err
		}
		if err := db.AddTable(table); err != nil {
			return nil, err
		}
	}
	return db, nil
}

func buildTable(name string, yt *yamlTable) (*schema.Table, error) {
	if yt.Columns.Kind != yaml.MappingNode {
		return nil, yamlerr.New(yamlerr.KindParse, "table %q has no columns", name)
	}

	var columns []schema.Column
	for i := 0; i+1 < len(yt.Columns.Content); i += 2 {
		colName := yt.Columns.Content[i].Value
		typeDef := yt.Columns.Content[i+1].Value
		col, err := parseColumnDef(colName, typeDef)
		if err != nil {
			return nil, yamlerr.Wrap(yamlerr.KindParse, err, "table %q column %q", name, colName)
		}
		columns = append(columns, col)
	}

	table := schema.NewTable(name, columns)

	for _, rowNode := range yt.Data {
		if rowNode.Kind != yaml.MappingNode {
			return nil, yamlerr.New(yamlerr.KindParse, "table %q: row is not a mapping", name)
		}
		row := make([]value.Value, len(columns))
		for ci, col := range columns {
			valNode := lookupMapping(&rowNode, col.Name)
			switch {
			case valNode != nil:
				v, err := parseValue(valNode, col.Type)
				if err != nil {
					return nil, yamlerr.Wrap(yamlerr.KindParse, err, "table %q column %q", name, col.Name)
				}
				row[ci] = v
			case col.Nullable:
				row[ci] = value.NewNull()
			case col.HasDefault:
				v, err := parseDefaultValue(col.Default, col.Type)
				if err != nil {
					return nil, yamlerr.Wrap(yamlerr.KindParse, err, "table %q column %q default", name, col.Name)
				}
				row[ci] = v
			default:
				return nil, yamlerr.New(yamlerr.KindParse, "table %q: non-nullable column %q has no value and no default", name, col.Name)
			}
		}
		if err := table.InsertRow(row); err != nil {
			return nil, err
		}
	}
	return table, nil
}

func lookupMapping(node *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

// parseColumnDef implements YamlColumn::parse + get_base_type from
// original_source/src/yaml/schema.rs: the first whitespace-separated
// token is the base SQL type, the rest are modifiers in any order.
func parseColumnDef(name, typeDef string) (schema.Column, error) {
	upper := strings.ToUpper(strings.TrimSpace(typeDef))
	parts := strings.Fields(upper)
	if len(parts) == 0 {
		return schema.Column{}, yamlerr.New(yamlerr.KindParse, "empty type definition")
	}

	col := schema.Column{Name: name, Nullable: true}

	i := 1
	for i < len(parts) {
		switch {
		case parts[i] == "PRIMARY" && i+1 < len(parts) && parts[i+1] == "KEY":
			col.PrimaryKey = true
			col.Nullable = false
			i += 2
		case parts[i] == "NOT" && i+1 < len(parts) && parts[i+1] == "NULL":
			col.Nullable = false
			i += 2
		case parts[i] == "NULL":
			col.Nullable = true
			i++
		case parts[i] == "UNIQUE":
			col.Unique = true
			i++
		case parts[i] == "DEFAULT" && i+1 < len(parts):
			col.HasDefault = true
			col.Default = parts[i+1]
			i += 2
		case parts[i] == "REFERENCES" && i+1 < len(parts):
			ref := parts[i+1]
			if open := strings.IndexByte(ref, '('); open >= 0 {
				if closeIdx := strings.IndexByte(ref, ')'); closeIdx > open {
					col.References = &schema.ForeignKey{Table: ref[:open], Column: ref[open+1 : closeIdx]}
				}
			}
			i += 2
		default:
			i++
		}
	}

	t, err := parseBaseType(parts[0])
	if err != nil {
		return schema.Column{}, err
	}
	col.Type = t
	return col, nil
}

func parseBaseType(tok string) (value.SqlType, error) {
	switch {
	case tok == "INTEGER" || tok == "INT" || tok == "SMALLINT":
		return value.Integer(), nil
	case tok == "BIGINT":
		return value.BigInt(), nil
	case strings.HasPrefix(tok, "VARCHAR"):
		return value.Varchar(extractSize(tok, 255)), nil
	case strings.HasPrefix(tok, "CHAR"):
		return value.Char(extractSize(tok, 1)), nil
	case tok == "TEXT" || tok == "CLOB":
		return value.Text(), nil
	case tok == "TIMESTAMP" || tok == "DATETIME":
		return value.Timestamp(), nil
	case tok == "DATE":
		return value.Date(), nil
	case tok == "TIME":
		return value.Time(), nil
	case tok == "BOOLEAN" || tok == "BOOL":
		return value.Boolean(), nil
	case strings.HasPrefix(tok, "DECIMAL") || strings.HasPrefix(tok, "NUMERIC"):
		p, s := extractDecimalParams(tok, 10, 2)
		return value.Decimal(p, s), nil
	case tok == "FLOAT" || tok == "REAL":
		return value.Float(), nil
	case tok == "DOUBLE":
		return value.Double(), nil
	case tok == "UUID":
		return value.Uuid(), nil
	case tok == "JSON" || tok == "JSONB":
		return value.Json(), nil
	default:
		return value.SqlType{}, yamlerr.New(yamlerr.KindParse, "unknown SQL type %q", tok)
	}
}

func extractSize(tok string, def int) int {
	open := strings.IndexByte(tok, '(')
	closeIdx := strings.IndexByte(tok, ')')
	if open < 0 || closeIdx <= open {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(tok[open+1 : closeIdx]))
	if err != nil {
		return def
	}
	return n
}

func extractDecimalParams(tok string, defP, defS int) (int, int) {
	open := strings.IndexByte(tok, '(')
	closeIdx := strings.IndexByte(tok, ')')
	if open < 0 || closeIdx <= open {
		return defP, defS
	}
	parts := strings.Split(tok[open+1:closeIdx], ",")
	if len(parts) == 2 {
		p, errP := strconv.Atoi(strings.TrimSpace(parts[0]))
		s, errS := strconv.Atoi(strings.TrimSpace(parts[1]))
		if errP == nil && errS == nil {
			return p, s
		}
	} else if len(parts) == 1 {
		if p, err := strconv.Atoi(strings.TrimSpace(parts[0])); err == nil {
			return p, 0
		}
	}
	return defP, defS
}

// parseValue implements yaml/parser.rs's parse_value: convert a raw YAML
// scalar/mapping/sequence node into a value.Value compatible with t.
func parseValue(node *yaml.Node, t value.SqlType) (value.Value, error) {
	if node.Tag == "!!null" {
		return value.NewNull(), nil
	}

	switch t.Kind {
	case value.TBoolean:
		var b bool
		if err := node.Decode(&b); err != nil {
			return value.Value{}, fmt.Errorf("cannot convert %q to boolean", node.Value)
		}
		return value.NewBoolean(b), nil

	case value.TInteger, value.TBigInt:
		if i, err := strconv.ParseInt(strings.TrimSpace(node.Value), 10, 64); err == nil {
			return value.NewInteger(i), nil
		}
		return value.Value{}, fmt.Errorf("cannot convert %q to integer", node.Value)

	case value.TFloat:
		f, err := strconv.ParseFloat(node.Value, 32)
		if err != nil {
			return value.Value{}, fmt.Errorf("cannot convert %q to float", node.Value)
		}
		return value.NewFloat(float32(f)), nil

	case value.TDouble:
		f, err := strconv.ParseFloat(node.Value, 64)
		if err != nil {
			return value.Value{}, fmt.Errorf("cannot convert %q to double", node.Value)
		}
		return value.NewDouble(f), nil

	case value.TDecimal:
		d, err := parseDecimalLiteral(node.Value)
		if err != nil {
			return value.Value{}, fmt.Errorf("cannot convert %q to decimal", node.Value)
		}
		return d, nil

	case value.TChar, value.TVarchar, value.TText:
		return value.NewText(node.Value), nil

	case value.TTimestamp:
		return parseTimestampLiteral(node.Value)

	case value.TDate:
		tm, err := time.Parse("2006-01-02", node.Value)
		if err != nil {
			return value.Value{}, fmt.Errorf("cannot parse date: %s", node.Value)
		}
		return value.NewDate(tm), nil

	case value.TTime:
		tm, err := time.Parse("15:04:05", node.Value)
		if err != nil {
			return value.Value{}, fmt.Errorf("cannot parse time: %s", node.Value)
		}
		return value.NewTime(tm), nil

	case value.TUuid:
		return parseUUIDLiteral(node.Value)

	case value.TJson:
		var generic interface{}
		if err := node.Decode(&generic); err != nil {
			return value.Value{}, fmt.Errorf("cannot decode JSON value: %w", err)
		}
		raw, err := json.Marshal(generic)
		if err != nil {
			return value.Value{}, fmt.Errorf("cannot convert to JSON: %w", err)
		}
		return value.NewJson(json.RawMessage(raw)), nil

	default:
		return value.Value{}, fmt.Errorf("cannot convert %q to %s", node.Value, t)
	}
}

// parseDefaultValue implements parse_default_value: DEFAULT's literal
// token is parsed the same way a loaded value would be, with a few
// named constants (NULL, TRUE, FALSE, CURRENT_TIMESTAMP) handled first.
func parseDefaultValue(lit string, t value.SqlType) (value.Value, error) {
	switch strings.ToUpper(lit) {
	case "NULL":
		return value.NewNull(), nil
	case "TRUE":
		return value.NewBoolean(true), nil
	case "FALSE":
		return value.NewBoolean(false), nil
	case "CURRENT_TIMESTAMP":
		return value.NewTimestamp(time.Now().UTC()), nil
	}
	node := &yaml.Node{Kind: yaml.ScalarNode, Value: lit, Tag: "!!str"}
	return parseValue(node, t)
}

func parseDecimalLiteral(s string) (value.Value, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return value.Value{}, err
	}
	return value.NewDecimal(d), nil
}

// parseTimestampLiteral accepts RFC3339 first, falling back to a plain
// "YYYY-MM-DD HH:MM:SS" form, matching parse_value's Timestamp arm.
func parseTimestampLiteral(s string) (value.Value, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return value.NewTimestamp(t), nil
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return value.NewTimestamp(t), nil
	}
	return value.Value{}, fmt.Errorf("cannot parse timestamp: %s", s)
}

func parseUUIDLiteral(s string) (value.Value, error) {
	u, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return value.Value{}, fmt.Errorf("cannot parse UUID: %s", s)
	}
	return value.NewUUID(u), nil
}
