// Package exec defines the native operator tree produced by plan lowering
// and a synchronous local runner for it.
//
// Node is a sealed variant mirroring the execution engine's operators.
// Every node carries the id of the wire plan node it was lowered from,
// copied verbatim; ids are opaque tokens into external tracing systems
// and are never derived or regenerated. Children are exclusively owned by
// their parent; the tree is acyclic and single-owner.
package exec

import (
	"github.com/corviddb/corvid/internal/batch"
	"github.com/corviddb/corvid/internal/expr"
	"github.com/corviddb/corvid/internal/vtype"
)

// Node is a sealed interface over native operator nodes. Only the node
// types in this package implement it.
type Node interface {
	execNode() // Marker method - seals interface to this package

	// ID returns the originating wire node's id, verbatim.
	ID() string

	// OutputSchema returns the node's resolved output schema.
	OutputSchema() vtype.Schema

	// Sources returns the node's children in order.
	Sources() []Node
}

// nodeBase carries the identity and schema every operator shares.
type nodeBase struct {
	id     string
	schema vtype.Schema
}

// ID returns the originating wire node's id, verbatim.
func (b *nodeBase) ID() string { return b.id }

// OutputSchema returns the node's resolved output schema.
func (b *nodeBase) OutputSchema() vtype.Schema { return b.schema }

// ValuesNode yields pre-materialized literal batches.
type ValuesNode struct {
	nodeBase
	// Batches holds the materialized literal data. Single batch in the
	// current protocol; a sequence if literals arrive pre-partitioned.
	Batches []*batch.Batch
}

// NewValues constructs a values operator.
func NewValues(id string, schema vtype.Schema, batches []*batch.Batch) *ValuesNode {
	return &ValuesNode{nodeBase: nodeBase{id: id, schema: schema}, Batches: batches}
}

func (*ValuesNode) execNode() {}

// Sources returns no children; Values is a source.
func (n *ValuesNode) Sources() []Node { return nil }

// ProjectNode applies one compiled expression per output column.
type ProjectNode struct {
	nodeBase
	Input Node
	Exprs []*expr.Compiled
}

// NewProject constructs a projection operator.
func NewProject(id string, schema vtype.Schema, input Node, exprs []*expr.Compiled) *ProjectNode {
	return &ProjectNode{nodeBase: nodeBase{id: id, schema: schema}, Input: input, Exprs: exprs}
}

func (*ProjectNode) execNode() {}

// Sources returns the single input.
func (n *ProjectNode) Sources() []Node { return []Node{n.Input} }

// FilterNode retains rows where the compiled predicate is true.
type FilterNode struct {
	nodeBase
	Input     Node
	Predicate *expr.Compiled
	// PassThrough marks a trivially-true predicate; the runner skips
	// evaluation entirely.
	PassThrough bool
}

// NewFilter constructs a filter operator.
func NewFilter(id string, schema vtype.Schema, input Node, predicate *expr.Compiled) *FilterNode {
	return &FilterNode{
		nodeBase:    nodeBase{id: id, schema: schema},
		Input:       input,
		Predicate:   predicate,
		PassThrough: predicate.IsConstantTrue(),
	}
}

func (*FilterNode) execNode() {}

// Sources returns the single input.
func (n *FilterNode) Sources() []Node { return []Node{n.Input} }

// PartitionFunc names the row redistribution functions.
type PartitionFunc int

const (
	PartitionGather PartitionFunc = iota
	PartitionRoundRobin
	PartitionBroadcast
	PartitionHash
)

// String returns the function name.
func (f PartitionFunc) String() string {
	switch f {
	case PartitionGather:
		return "gather"
	case PartitionRoundRobin:
		return "round_robin"
	case PartitionBroadcast:
		return "broadcast"
	case PartitionHash:
		return "hash"
	default:
		return "unknown"
	}
}

// Partitioning is a resolved partition function: the redistribution kind
// plus, for hash, the key column positions in the input schema.
type Partitioning struct {
	Func PartitionFunc
	// KeyColumns are input column positions, hash only.
	KeyColumns []int
	// Partitions is the fan-out width, hash only (>= 1).
	Partitions int
}

// ExchangeNode redistributes rows from its inputs by a partition function.
type ExchangeNode struct {
	nodeBase
	Inputs       []Node
	Partitioning Partitioning
}

// NewExchange constructs an exchange operator.
func NewExchange(id string, schema vtype.Schema, inputs []Node, p Partitioning) *ExchangeNode {
	return &ExchangeNode{nodeBase: nodeBase{id: id, schema: schema}, Inputs: inputs, Partitioning: p}
}

func (*ExchangeNode) execNode() {}

// Sources returns the exchange inputs in order.
func (n *ExchangeNode) Sources() []Node { return n.Inputs }

// OutputNode passes its input through under the externally visible
// column names.
type OutputNode struct {
	nodeBase
	Input       Node
	ColumnNames []string
}

// NewOutput constructs an output operator.
func NewOutput(id string, schema vtype.Schema, input Node, names []string) *OutputNode {
	return &OutputNode{nodeBase: nodeBase{id: id, schema: schema}, Input: input, ColumnNames: names}
}

func (*OutputNode) execNode() {}

// Sources returns the single input.
func (n *OutputNode) Sources() []Node { return []Node{n.Input} }

// SemiJoinNode probes each source row's key against the build side's key
// set and appends one boolean membership column.
type SemiJoinNode struct {
	nodeBase
	Probe Node
	Build Node
	// ProbeKey and BuildKey are column positions in the respective
	// input schemas.
	ProbeKey int
	BuildKey int
}

// NewSemiJoin constructs a semi join operator.
func NewSemiJoin(id string, schema vtype.Schema, probe, build Node, probeKey, buildKey int) *SemiJoinNode {
	return &SemiJoinNode{
		nodeBase: nodeBase{id: id, schema: schema},
		Probe:    probe,
		Build:    build,
		ProbeKey: probeKey,
		BuildKey: buildKey,
	}
}

func (*SemiJoinNode) execNode() {}

// Sources returns the probe input then the build input.
func (n *SemiJoinNode) Sources() []Node { return []Node{n.Probe, n.Build} }

// OutputSource locates one merge-join output column in its inputs.
type OutputSource struct {
	FromLeft bool
	Column   int
}

// MergeJoinNode inner-joins two inputs that are pre-sorted on the key
// columns.
type MergeJoinNode struct {
	nodeBase
	Left  Node
	Right Node
	// LeftKeys and RightKeys are aligned key column positions.
	LeftKeys  []int
	RightKeys []int
	// Outputs maps each output schema position to its source column.
	Outputs []OutputSource
}

// NewMergeJoin constructs a merge join operator.
func NewMergeJoin(id string, schema vtype.Schema, left, right Node, leftKeys, rightKeys []int, outputs []OutputSource) *MergeJoinNode {
	return &MergeJoinNode{
		nodeBase:  nodeBase{id: id, schema: schema},
		Left:      left,
		Right:     right,
		LeftKeys:  leftKeys,
		RightKeys: rightKeys,
		Outputs:   outputs,
	}
}

func (*MergeJoinNode) execNode() {}

// Sources returns the left input then the right input.
func (n *MergeJoinNode) Sources() []Node { return []Node{n.Left, n.Right} }
