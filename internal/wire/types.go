package wire

import (
	"github.com/corviddb/corvid/internal/vtype"
)

// Fragment is one deserialized plan fragment: the unit a coordinator hands
// to a worker for lowering and execution.
type Fragment struct {
	// ID identifies the fragment within its query. Opaque.
	ID string

	// Root is the fragment's root plan node.
	Root PlanNode

	// OutputPartitioning describes how the fragment's output is
	// distributed to downstream stages. Passed through uninterpreted
	// by lowering.
	OutputPartitioning string

	// StageAssignments optionally maps node ids to stage labels. The
	// lowering core ignores it; the stage-boundary policy consumes it.
	StageAssignments map[string]string
}

// PlanNode is a sealed interface over the wire plan node kinds.
//
// Node kinds:
//   - ValuesNode: embedded literal rows, no sources
//   - ProjectNode: per-column defining expressions over one source
//   - FilterNode: boolean predicate over one source
//   - OutputNode: externally visible column names over one source
//   - ExchangeNode: row redistribution across one or more sources
//   - TableScanNode: a connector read (parsed, not executable here)
//   - SemiJoinNode: membership-probe join of source and filtering source
//   - MergeJoinNode: sorted equi-join of two sources
//
// Nodes are immutable once deserialized.
type PlanNode interface {
	planNode() // Marker method - seals interface to this package

	// NodeID returns the node's globally unique id within the fragment.
	// Ids are opaque pass-through tokens.
	NodeID() string

	// DeclaredSchema returns the node's declared output schema.
	DeclaredSchema() vtype.Schema

	// Sources returns the node's child nodes in declared order.
	Sources() []PlanNode
}

// ValuesNode carries literal rows. Each row is an ordered list of constant
// expressions, one per declared output column.
type ValuesNode struct {
	ID     string
	Schema vtype.Schema
	Rows   [][]Expr
}

func (*ValuesNode) planNode() {}

// NodeID returns the node id.
func (n *ValuesNode) NodeID() string { return n.ID }

// DeclaredSchema returns the declared output schema.
func (n *ValuesNode) DeclaredSchema() vtype.Schema { return n.Schema }

// Sources returns no children; Values is a leaf.
func (n *ValuesNode) Sources() []PlanNode { return nil }

// ProjectNode computes each declared output column from an expression over
// its single source. Exprs is aligned with Schema by position.
type ProjectNode struct {
	ID     string
	Schema vtype.Schema
	Source PlanNode
	Exprs  []Expr
}

func (*ProjectNode) planNode() {}

// NodeID returns the node id.
func (n *ProjectNode) NodeID() string { return n.ID }

// DeclaredSchema returns the declared output schema.
func (n *ProjectNode) DeclaredSchema() vtype.Schema { return n.Schema }

// Sources returns the single source.
func (n *ProjectNode) Sources() []PlanNode { return []PlanNode{n.Source} }

// FilterNode retains source rows for which Predicate evaluates to true.
type FilterNode struct {
	ID        string
	Schema    vtype.Schema
	Source    PlanNode
	Predicate Expr
}

func (*FilterNode) planNode() {}

// NodeID returns the node id.
func (n *FilterNode) NodeID() string { return n.ID }

// DeclaredSchema returns the declared output schema.
func (n *FilterNode) DeclaredSchema() vtype.Schema { return n.Schema }

// Sources returns the single source.
func (n *FilterNode) Sources() []PlanNode { return []PlanNode{n.Source} }

// OutputNode passes its source through, attaching the externally visible
// column-name list.
type OutputNode struct {
	ID          string
	Schema      vtype.Schema
	Source      PlanNode
	ColumnNames []string
}

func (*OutputNode) planNode() {}

// NodeID returns the node id.
func (n *OutputNode) NodeID() string { return n.ID }

// DeclaredSchema returns the declared output schema.
func (n *OutputNode) DeclaredSchema() vtype.Schema { return n.Schema }

// Sources returns the single source.
func (n *OutputNode) Sources() []PlanNode { return []PlanNode{n.Source} }

// ExchangeScope distinguishes in-process exchanges from cross-worker ones.
type ExchangeScope string

const (
	ExchangeLocal  ExchangeScope = "local"
	ExchangeRemote ExchangeScope = "remote"
)

// PartitionKind names the row redistribution functions.
type PartitionKind string

const (
	PartitionGather     PartitionKind = "gather"
	PartitionHash       PartitionKind = "hash"
	PartitionRoundRobin PartitionKind = "round_robin"
	PartitionBroadcast  PartitionKind = "broadcast"
)

// ExchangeNode redistributes rows from its sources by a declared partition
// function.
type ExchangeNode struct {
	ID           string
	Schema       vtype.Schema
	Scope        ExchangeScope
	Partitioning PartitionKind
	// Keys names the partitioning key columns for hash exchanges.
	Keys []string
	Srcs []PlanNode
}

func (*ExchangeNode) planNode() {}

// NodeID returns the node id.
func (n *ExchangeNode) NodeID() string { return n.ID }

// DeclaredSchema returns the declared output schema.
func (n *ExchangeNode) DeclaredSchema() vtype.Schema { return n.Schema }

// Sources returns the exchange's sources in declared order.
func (n *ExchangeNode) Sources() []PlanNode { return n.Srcs }

// TableScanNode reads a connector table. This worker ships no connectors,
// so the node kind deserializes but lowering rejects it explicitly.
type TableScanNode struct {
	ID     string
	Schema vtype.Schema
	Table  string
}

func (*TableScanNode) planNode() {}

// NodeID returns the node id.
func (n *TableScanNode) NodeID() string { return n.ID }

// DeclaredSchema returns the declared output schema.
func (n *TableScanNode) DeclaredSchema() vtype.Schema { return n.Schema }

// Sources returns no children; TableScan is a leaf.
func (n *TableScanNode) Sources() []PlanNode { return nil }

// SemiJoinNode probes its source rows against the filtering source's join
// column and emits the source columns plus one boolean membership column.
type SemiJoinNode struct {
	ID              string
	Schema          vtype.Schema
	Source          PlanNode
	FilteringSource PlanNode
	// SourceJoinColumn and FilteringJoinColumn name the probe and build
	// key columns in their respective schemas.
	SourceJoinColumn    string
	FilteringJoinColumn string
	// OutputColumn names the appended boolean membership column.
	OutputColumn string
}

func (*SemiJoinNode) planNode() {}

// NodeID returns the node id.
func (n *SemiJoinNode) NodeID() string { return n.ID }

// DeclaredSchema returns the declared output schema.
func (n *SemiJoinNode) DeclaredSchema() vtype.Schema { return n.Schema }

// Sources returns the probe source then the filtering source.
func (n *SemiJoinNode) Sources() []PlanNode { return []PlanNode{n.Source, n.FilteringSource} }

// EquiClause is one left = right criterion of a merge join.
type EquiClause struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

// MergeJoinNode joins two sources that are pre-sorted on the join keys.
// Only inner joins are expressible over the wire format revision this
// worker speaks.
type MergeJoinNode struct {
	ID       string
	Schema   vtype.Schema
	Left     PlanNode
	Right    PlanNode
	Criteria []EquiClause
}

func (*MergeJoinNode) planNode() {}

// NodeID returns the node id.
func (n *MergeJoinNode) NodeID() string { return n.ID }

// DeclaredSchema returns the declared output schema.
func (n *MergeJoinNode) DeclaredSchema() vtype.Schema { return n.Schema }

// Sources returns the left then the right source.
func (n *MergeJoinNode) Sources() []PlanNode { return []PlanNode{n.Left, n.Right} }

// Expr is a sealed interface over scalar expression ASTs embedded in plan
// nodes. Only Constant, ColumnRef, and Call implement it.
type Expr interface {
	exprNode() // Marker method - seals interface to this package

	// ResultType returns the expression's declared result type.
	ResultType() vtype.Type
}

// Constant is a literal with a declared type. Value is already decoded
// under that type; no further interpretation happens downstream.
type Constant struct {
	Type  vtype.Type
	Value vtype.Value
}

func (*Constant) exprNode() {}

// ResultType returns the constant's declared type.
func (c *Constant) ResultType() vtype.Type { return c.Type }

// ColumnRef references an input column by name.
type ColumnRef struct {
	Name string
	Type vtype.Type
}

func (*ColumnRef) exprNode() {}

// ResultType returns the reference's declared type.
func (c *ColumnRef) ResultType() vtype.Type { return c.Type }

// Call applies a named scalar function to argument expressions. Logical
// connectives (and, or, not) travel as calls too.
type Call struct {
	Name string
	Type vtype.Type
	Args []Expr
}

func (*Call) exprNode() {}

// ResultType returns the call's declared result type.
func (c *Call) ResultType() vtype.Type { return c.Type }
