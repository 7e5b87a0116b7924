package wire

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/corviddb/corvid/internal/vtype"
)

// Node kind discriminators used in the JSON representation.
const (
	kindValues    = "values"
	kindProject   = "project"
	kindFilter    = "filter"
	kindOutput    = "output"
	kindExchange  = "exchange"
	kindTableScan = "tablescan"
	kindSemiJoin  = "semijoin"
	kindMergeJoin = "mergejoin"

	kindConstant = "constant"
	kindColumn   = "column"
	kindCall     = "call"
)

type fragmentEnvelope struct {
	ID                 string            `json:"id"`
	Root               json.RawMessage   `json:"root"`
	OutputPartitioning string            `json:"output_partitioning,omitempty"`
	StageAssignments   map[string]string `json:"stage_assignments,omitempty"`
}

type columnDef struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type nodeEnvelope struct {
	Kind    string      `json:"kind"`
	ID      string      `json:"id"`
	Columns []columnDef `json:"columns"`

	Rows [][]json.RawMessage `json:"rows,omitempty"`

	Source      json.RawMessage   `json:"source,omitempty"`
	Expressions []json.RawMessage `json:"expressions,omitempty"`
	Predicate   json.RawMessage   `json:"predicate,omitempty"`
	ColumnNames []string          `json:"column_names,omitempty"`

	Scope        string            `json:"scope,omitempty"`
	Partitioning string            `json:"partitioning,omitempty"`
	Keys         []string          `json:"keys,omitempty"`
	Sources      []json.RawMessage `json:"sources,omitempty"`

	Table string `json:"table,omitempty"`

	FilteringSource     json.RawMessage `json:"filtering_source,omitempty"`
	SourceJoinColumn    string          `json:"source_join_column,omitempty"`
	FilteringJoinColumn string          `json:"filtering_join_column,omitempty"`
	OutputColumn        string          `json:"output_column,omitempty"`

	Left     json.RawMessage `json:"left,omitempty"`
	Right    json.RawMessage `json:"right,omitempty"`
	Criteria []EquiClause    `json:"criteria,omitempty"`
}

type exprEnvelope struct {
	Kind  string            `json:"kind"`
	Type  string            `json:"type"`
	Value json.RawMessage   `json:"value,omitempty"`
	Name  string            `json:"name,omitempty"`
	Args  []json.RawMessage `json:"args,omitempty"`
}

// Parse deserializes a plan fragment document.
//
// Structural defects fail with *ParseError; declared column types outside
// the engine's type system fail with *SchemaError.
func Parse(data []byte) (*Fragment, error) {
	var env fragmentEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &ParseError{Message: "invalid fragment document", Err: err}
	}
	if env.ID == "" {
		return nil, &ParseError{Message: "fragment is missing an id"}
	}
	if len(env.Root) == 0 {
		return nil, &ParseError{Message: "fragment is missing a root node"}
	}

	root, err := decodeNode(env.Root)
	if err != nil {
		return nil, err
	}

	return &Fragment{
		ID:                 env.ID,
		Root:               root,
		OutputPartitioning: env.OutputPartitioning,
		StageAssignments:   env.StageAssignments,
	}, nil
}

// Serialize renders a fragment back to its JSON document form. Serialize
// is the inverse of Parse: Parse(Serialize(f)) is structurally equal to f.
func Serialize(f *Fragment) ([]byte, error) {
	return f.MarshalJSON()
}

// MarshalJSON implements json.Marshaler.
func (f *Fragment) MarshalJSON() ([]byte, error) {
	root, err := encodeNode(f.Root)
	if err != nil {
		return nil, err
	}
	return json.Marshal(fragmentEnvelope{
		ID:                 f.ID,
		Root:               root,
		OutputPartitioning: f.OutputPartitioning,
		StageAssignments:   f.StageAssignments,
	})
}

func decodeNode(raw json.RawMessage) (PlanNode, error) {
	var env nodeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &ParseError{Message: "invalid plan node", Err: err}
	}
	if env.ID == "" {
		return nil, &ParseError{Message: fmt.Sprintf("%s node is missing an id", env.Kind)}
	}

	schema, err := decodeSchema(env.ID, env.Columns)
	if err != nil {
		return nil, err
	}

	switch env.Kind {
	case kindValues:
		var rows [][]Expr
		if len(env.Rows) > 0 {
			rows = make([][]Expr, len(env.Rows))
		}
		for i, rawRow := range env.Rows {
			if len(rawRow) != len(schema) {
				return nil, &ParseError{
					NodeID:  env.ID,
					Message: fmt.Sprintf("row %d has %d values, schema declares %d columns", i, len(rawRow), len(schema)),
				}
			}
			row := make([]Expr, len(rawRow))
			for j, rawExpr := range rawRow {
				e, err := decodeExpr(env.ID, rawExpr)
				if err != nil {
					return nil, err
				}
				row[j] = e
			}
			rows[i] = row
		}
		return &ValuesNode{ID: env.ID, Schema: schema, Rows: rows}, nil

	case kindProject:
		source, err := decodeChild(env.ID, env.Source)
		if err != nil {
			return nil, err
		}
		if len(env.Expressions) != len(schema) {
			return nil, &ParseError{
				NodeID:  env.ID,
				Message: fmt.Sprintf("project declares %d columns but %d expressions", len(schema), len(env.Expressions)),
			}
		}
		exprs := make([]Expr, len(env.Expressions))
		for i, rawExpr := range env.Expressions {
			e, err := decodeExpr(env.ID, rawExpr)
			if err != nil {
				return nil, err
			}
			exprs[i] = e
		}
		return &ProjectNode{ID: env.ID, Schema: schema, Source: source, Exprs: exprs}, nil

	case kindFilter:
		source, err := decodeChild(env.ID, env.Source)
		if err != nil {
			return nil, err
		}
		if len(env.Predicate) == 0 {
			return nil, &ParseError{NodeID: env.ID, Message: "filter is missing a predicate"}
		}
		pred, err := decodeExpr(env.ID, env.Predicate)
		if err != nil {
			return nil, err
		}
		return &FilterNode{ID: env.ID, Schema: schema, Source: source, Predicate: pred}, nil

	case kindOutput:
		source, err := decodeChild(env.ID, env.Source)
		if err != nil {
			return nil, err
		}
		if len(env.ColumnNames) != len(schema) {
			return nil, &ParseError{
				NodeID:  env.ID,
				Message: fmt.Sprintf("output declares %d columns but %d names", len(schema), len(env.ColumnNames)),
			}
		}
		return &OutputNode{ID: env.ID, Schema: schema, Source: source, ColumnNames: env.ColumnNames}, nil

	case kindExchange:
		scope := ExchangeScope(env.Scope)
		if scope != ExchangeLocal && scope != ExchangeRemote {
			return nil, &ParseError{NodeID: env.ID, Message: fmt.Sprintf("unknown exchange scope %q", env.Scope)}
		}
		part := PartitionKind(env.Partitioning)
		switch part {
		case PartitionGather, PartitionHash, PartitionRoundRobin, PartitionBroadcast:
		default:
			return nil, &ParseError{NodeID: env.ID, Message: fmt.Sprintf("unknown partition function %q", env.Partitioning)}
		}
		if part == PartitionHash && len(env.Keys) == 0 {
			return nil, &ParseError{NodeID: env.ID, Message: "hash exchange requires partitioning keys"}
		}
		if len(env.Sources) == 0 {
			return nil, &ParseError{NodeID: env.ID, Message: "exchange requires at least one source"}
		}
		srcs := make([]PlanNode, len(env.Sources))
		for i, rawSrc := range env.Sources {
			child, err := decodeNode(rawSrc)
			if err != nil {
				return nil, err
			}
			srcs[i] = child
		}
		return &ExchangeNode{
			ID:           env.ID,
			Schema:       schema,
			Scope:        scope,
			Partitioning: part,
			Keys:         env.Keys,
			Srcs:         srcs,
		}, nil

	case kindTableScan:
		if env.Table == "" {
			return nil, &ParseError{NodeID: env.ID, Message: "tablescan is missing a table"}
		}
		return &TableScanNode{ID: env.ID, Schema: schema, Table: env.Table}, nil

	case kindSemiJoin:
		source, err := decodeChild(env.ID, env.Source)
		if err != nil {
			return nil, err
		}
		if len(env.FilteringSource) == 0 {
			return nil, &ParseError{NodeID: env.ID, Message: "semijoin is missing a filtering source"}
		}
		filtering, err := decodeNode(env.FilteringSource)
		if err != nil {
			return nil, err
		}
		if env.SourceJoinColumn == "" || env.FilteringJoinColumn == "" || env.OutputColumn == "" {
			return nil, &ParseError{NodeID: env.ID, Message: "semijoin is missing join or output columns"}
		}
		return &SemiJoinNode{
			ID:                  env.ID,
			Schema:              schema,
			Source:              source,
			FilteringSource:     filtering,
			SourceJoinColumn:    env.SourceJoinColumn,
			FilteringJoinColumn: env.FilteringJoinColumn,
			OutputColumn:        env.OutputColumn,
		}, nil

	case kindMergeJoin:
		if len(env.Left) == 0 || len(env.Right) == 0 {
			return nil, &ParseError{NodeID: env.ID, Message: "mergejoin requires left and right sources"}
		}
		left, err := decodeNode(env.Left)
		if err != nil {
			return nil, err
		}
		right, err := decodeNode(env.Right)
		if err != nil {
			return nil, err
		}
		if len(env.Criteria) == 0 {
			return nil, &ParseError{NodeID: env.ID, Message: "mergejoin requires at least one criterion"}
		}
		return &MergeJoinNode{ID: env.ID, Schema: schema, Left: left, Right: right, Criteria: env.Criteria}, nil

	case "":
		return nil, &ParseError{NodeID: env.ID, Message: "plan node is missing a kind"}
	default:
		return nil, &ParseError{NodeID: env.ID, Message: fmt.Sprintf("unknown plan node kind %q", env.Kind)}
	}
}

func decodeChild(nodeID string, raw json.RawMessage) (PlanNode, error) {
	if len(raw) == 0 {
		return nil, &ParseError{NodeID: nodeID, Message: "node is missing its source"}
	}
	return decodeNode(raw)
}

func decodeSchema(nodeID string, cols []columnDef) (vtype.Schema, error) {
	schema := make(vtype.Schema, len(cols))
	for i, c := range cols {
		t, err := vtype.Parse(c.Type)
		if err != nil {
			return nil, &SchemaError{NodeID: nodeID, Column: c.Name, Descriptor: c.Type, Err: err}
		}
		schema[i] = vtype.Column{Name: c.Name, Type: t}
	}
	return schema, nil
}

func decodeExpr(nodeID string, raw json.RawMessage) (Expr, error) {
	var env exprEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &ParseError{NodeID: nodeID, Message: "invalid expression", Err: err}
	}
	t, err := vtype.Parse(env.Type)
	if err != nil {
		return nil, &ParseError{NodeID: nodeID, Message: fmt.Sprintf("expression declares type %q", env.Type), Err: err}
	}

	switch env.Kind {
	case kindConstant:
		v, err := decodeConstant(t, env.Value)
		if err != nil {
			return nil, &ParseError{NodeID: nodeID, Message: "invalid constant", Err: err}
		}
		return &Constant{Type: t, Value: v}, nil

	case kindColumn:
		if env.Name == "" {
			return nil, &ParseError{NodeID: nodeID, Message: "column reference is missing a name"}
		}
		return &ColumnRef{Name: env.Name, Type: t}, nil

	case kindCall:
		if env.Name == "" {
			return nil, &ParseError{NodeID: nodeID, Message: "call is missing a function name"}
		}
		args := make([]Expr, len(env.Args))
		for i, rawArg := range env.Args {
			a, err := decodeExpr(nodeID, rawArg)
			if err != nil {
				return nil, err
			}
			args[i] = a
		}
		return &Call{Name: env.Name, Type: t, Args: args}, nil

	default:
		return nil, &ParseError{NodeID: nodeID, Message: fmt.Sprintf("unknown expression kind %q", env.Kind)}
	}
}

// decodeConstant decodes a constant's JSON value under its declared type.
// The declared type governs decoding entirely; a value that does not fit
// it is a malformed constant, not a candidate for coercion.
func decodeConstant(t vtype.Type, raw json.RawMessage) (vtype.Value, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return vtype.Null{}, nil
	}

	switch t.Kind {
	case vtype.KindBoolean:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, fmt.Errorf("boolean constant: %w", err)
		}
		return vtype.Bool(b), nil

	case vtype.KindTinyint, vtype.KindSmallint, vtype.KindInteger, vtype.KindBigint,
		vtype.KindDate, vtype.KindTimestamp:
		var num json.Number
		if err := json.Unmarshal(raw, &num); err != nil {
			return nil, fmt.Errorf("%s constant: %w", t, err)
		}
		n, err := strconv.ParseInt(num.String(), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s constant %q is not integral", t, num)
		}
		return vtype.Int(n), nil

	case vtype.KindReal, vtype.KindDouble:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("%s constant: %w", t, err)
		}
		return vtype.Float(f), nil

	case vtype.KindVarchar:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("varchar constant: %w", err)
		}
		return vtype.Str(s), nil

	case vtype.KindVarbinary:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("varbinary constant: %w", err)
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("varbinary constant is not base64: %w", err)
		}
		return vtype.Bytes(b), nil

	default:
		return nil, fmt.Errorf("constants of type %s are not supported", t)
	}
}

func encodeNode(n PlanNode) (json.RawMessage, error) {
	env := nodeEnvelope{
		ID:      n.NodeID(),
		Columns: encodeSchema(n.DeclaredSchema()),
	}

	switch node := n.(type) {
	case *ValuesNode:
		env.Kind = kindValues
		env.Rows = make([][]json.RawMessage, len(node.Rows))
		for i, row := range node.Rows {
			rawRow := make([]json.RawMessage, len(row))
			for j, e := range row {
				raw, err := encodeExpr(e)
				if err != nil {
					return nil, err
				}
				rawRow[j] = raw
			}
			env.Rows[i] = rawRow
		}

	case *ProjectNode:
		env.Kind = kindProject
		raw, err := encodeNode(node.Source)
		if err != nil {
			return nil, err
		}
		env.Source = raw
		env.Expressions = make([]json.RawMessage, len(node.Exprs))
		for i, e := range node.Exprs {
			rawExpr, err := encodeExpr(e)
			if err != nil {
				return nil, err
			}
			env.Expressions[i] = rawExpr
		}

	case *FilterNode:
		env.Kind = kindFilter
		raw, err := encodeNode(node.Source)
		if err != nil {
			return nil, err
		}
		env.Source = raw
		pred, err := encodeExpr(node.Predicate)
		if err != nil {
			return nil, err
		}
		env.Predicate = pred

	case *OutputNode:
		env.Kind = kindOutput
		raw, err := encodeNode(node.Source)
		if err != nil {
			return nil, err
		}
		env.Source = raw
		env.ColumnNames = node.ColumnNames

	case *ExchangeNode:
		env.Kind = kindExchange
		env.Scope = string(node.Scope)
		env.Partitioning = string(node.Partitioning)
		env.Keys = node.Keys
		env.Sources = make([]json.RawMessage, len(node.Srcs))
		for i, src := range node.Srcs {
			raw, err := encodeNode(src)
			if err != nil {
				return nil, err
			}
			env.Sources[i] = raw
		}

	case *TableScanNode:
		env.Kind = kindTableScan
		env.Table = node.Table

	case *SemiJoinNode:
		env.Kind = kindSemiJoin
		src, err := encodeNode(node.Source)
		if err != nil {
			return nil, err
		}
		env.Source = src
		filtering, err := encodeNode(node.FilteringSource)
		if err != nil {
			return nil, err
		}
		env.FilteringSource = filtering
		env.SourceJoinColumn = node.SourceJoinColumn
		env.FilteringJoinColumn = node.FilteringJoinColumn
		env.OutputColumn = node.OutputColumn

	case *MergeJoinNode:
		env.Kind = kindMergeJoin
		left, err := encodeNode(node.Left)
		if err != nil {
			return nil, err
		}
		env.Left = left
		right, err := encodeNode(node.Right)
		if err != nil {
			return nil, err
		}
		env.Right = right
		env.Criteria = node.Criteria

	default:
		return nil, fmt.Errorf("cannot serialize plan node type %T", n)
	}

	return json.Marshal(env)
}

func encodeSchema(s vtype.Schema) []columnDef {
	cols := make([]columnDef, len(s))
	for i, c := range s {
		cols[i] = columnDef{Name: c.Name, Type: c.Type.String()}
	}
	return cols
}

func encodeExpr(e Expr) (json.RawMessage, error) {
	var env exprEnvelope
	env.Type = e.ResultType().String()

	switch expr := e.(type) {
	case *Constant:
		env.Kind = kindConstant
		raw, err := encodeConstant(expr)
		if err != nil {
			return nil, err
		}
		env.Value = raw

	case *ColumnRef:
		env.Kind = kindColumn
		env.Name = expr.Name

	case *Call:
		env.Kind = kindCall
		env.Name = expr.Name
		env.Args = make([]json.RawMessage, len(expr.Args))
		for i, a := range expr.Args {
			raw, err := encodeExpr(a)
			if err != nil {
				return nil, err
			}
			env.Args[i] = raw
		}

	default:
		return nil, fmt.Errorf("cannot serialize expression type %T", e)
	}

	return json.Marshal(env)
}

func encodeConstant(c *Constant) (json.RawMessage, error) {
	switch v := c.Value.(type) {
	case vtype.Null:
		return json.RawMessage("null"), nil
	case vtype.Bool:
		return json.Marshal(bool(v))
	case vtype.Int:
		return json.Marshal(int64(v))
	case vtype.Float:
		return json.Marshal(float64(v))
	case vtype.Str:
		return json.Marshal(string(v))
	case vtype.Bytes:
		return json.Marshal(base64.StdEncoding.EncodeToString(v))
	default:
		return nil, fmt.Errorf("cannot serialize constant value type %T", c.Value)
	}
}
