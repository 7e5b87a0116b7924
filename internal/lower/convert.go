package lower

import (
	"fmt"
	"log/slog"

	"github.com/corviddb/corvid/internal/batch"
	"github.com/corviddb/corvid/internal/exec"
	"github.com/corviddb/corvid/internal/expr"
	"github.com/corviddb/corvid/internal/vtype"
	"github.com/corviddb/corvid/internal/wire"
)

// Converter lowers wire plan trees into native operator trees. A
// converter borrows its execution context; the caller owns the context
// and the allocation scope inside it.
type Converter struct {
	ctx    *exec.Context
	policy BoundaryPolicy
}

// NewConverter creates a converter bound to an execution context and a
// stage boundary policy. A nil policy means no boundaries are ever
// synthesized.
func NewConverter(ctx *exec.Context, policy BoundaryPolicy) *Converter {
	if policy == nil {
		policy = NonePolicy{}
	}
	return &Converter{ctx: ctx, policy: policy}
}

// Lower converts a whole fragment. On success the returned tree is
// complete; on failure no tree is returned at all.
func (c *Converter) Lower(frag *wire.Fragment) (exec.Node, error) {
	if frag == nil || frag.Root == nil {
		return nil, fmt.Errorf("lower: fragment has no root node")
	}
	root, err := c.lowerNode(frag, frag.Root)
	if err != nil {
		slog.Error("fragment lowering failed",
			"fragment_id", frag.ID,
			"trace_id", c.ctx.TraceID,
			"error", err)
		return nil, err
	}
	slog.Info("fragment lowered",
		"fragment_id", frag.ID,
		"trace_id", c.ctx.TraceID,
		"root_node_id", root.ID(),
		"reserved_bytes", c.ctx.Scope.Used())
	return root, nil
}

// LowerNode converts a subtree without fragment metadata. No boundary
// policy applies; intended for tests and tooling that work on bare
// trees.
func (c *Converter) LowerNode(n wire.PlanNode) (exec.Node, error) {
	if n == nil {
		return nil, fmt.Errorf("lower: nil plan node")
	}
	return c.lowerNode(nil, n)
}

// lowerChild lowers one child and applies the boundary policy between it
// and its parent.
func (c *Converter) lowerChild(frag *wire.Fragment, parent, child wire.PlanNode) (exec.Node, error) {
	lowered, err := c.lowerNode(frag, child)
	if err != nil {
		return nil, err
	}
	if b, ok := c.policy.Boundary(frag, parent, child); ok {
		return exec.NewExchange(b.ID, lowered.OutputSchema(), []exec.Node{lowered}, b.Partitioning), nil
	}
	return lowered, nil
}

func (c *Converter) lowerNode(frag *wire.Fragment, n wire.PlanNode) (exec.Node, error) {
	slog.Debug("lowering node", "node_id", n.NodeID(), "type", fmt.Sprintf("%T", n))
	switch node := n.(type) {
	case *wire.ValuesNode:
		return c.lowerValues(node)
	case *wire.ProjectNode:
		return c.lowerProject(frag, node)
	case *wire.FilterNode:
		return c.lowerFilter(frag, node)
	case *wire.OutputNode:
		return c.lowerOutput(frag, node)
	case *wire.ExchangeNode:
		return c.lowerExchange(frag, node)
	case *wire.SemiJoinNode:
		return c.lowerSemiJoin(frag, node)
	case *wire.MergeJoinNode:
		return c.lowerMergeJoin(frag, node)
	case *wire.TableScanNode:
		return nil, newError(ErrCodeUnsupportedNodeKind, node.NodeID(),
			"tablescan of %q: this worker has no connector support", node.Table)
	default:
		return nil, newError(ErrCodeUnsupportedNodeKind, n.NodeID(),
			"no lowering for node type %T", n)
	}
}

func (c *Converter) lowerValues(n *wire.ValuesNode) (exec.Node, error) {
	b, err := c.materializeValues(n)
	if err != nil {
		return nil, err
	}
	return exec.NewValues(n.ID, n.Schema, []*batch.Batch{b}), nil
}

func (c *Converter) lowerProject(frag *wire.Fragment, n *wire.ProjectNode) (exec.Node, error) {
	input, err := c.lowerChild(frag, n, n.Source)
	if err != nil {
		return nil, err
	}
	inSchema := input.OutputSchema()

	if len(n.Exprs) != len(n.Schema) {
		return nil, newError(ErrCodeSchemaMismatch, n.ID,
			"%d expressions for %d declared columns", len(n.Exprs), len(n.Schema))
	}
	compiled := make([]*expr.Compiled, len(n.Exprs))
	computed := make(vtype.Schema, len(n.Exprs))
	for i, e := range n.Exprs {
		ce, err := expr.Compile(e, inSchema)
		if err != nil {
			return nil, wrapError(ErrCodeExpression, n.ID, err,
				"projection %s for column %q", expr.Render(e), n.Schema[i].Name)
		}
		compiled[i] = ce
		computed[i] = vtype.Column{Name: n.Schema[i].Name, Type: ce.Type()}
	}

	if err := validateSchema(n.ID, computed, n.Schema, true); err != nil {
		return nil, err
	}
	return exec.NewProject(n.ID, n.Schema, input, compiled), nil
}

func (c *Converter) lowerFilter(frag *wire.Fragment, n *wire.FilterNode) (exec.Node, error) {
	input, err := c.lowerChild(frag, n, n.Source)
	if err != nil {
		return nil, err
	}

	pred, err := expr.Compile(n.Predicate, input.OutputSchema())
	if err != nil {
		return nil, wrapError(ErrCodeExpression, n.ID, err, "filter predicate %s", expr.Render(n.Predicate))
	}
	if pred.Type().Kind != vtype.KindBoolean {
		return nil, newError(ErrCodeExpression, n.ID,
			"filter predicate %s yields %s, not boolean", expr.Render(n.Predicate), pred.Type())
	}

	// A filter passes its input schema through unchanged.
	if err := validateSchema(n.ID, input.OutputSchema(), n.Schema, true); err != nil {
		return nil, err
	}
	return exec.NewFilter(n.ID, n.Schema, input, pred), nil
}

func (c *Converter) lowerOutput(frag *wire.Fragment, n *wire.OutputNode) (exec.Node, error) {
	input, err := c.lowerChild(frag, n, n.Source)
	if err != nil {
		return nil, err
	}

	// The declared schema carries the externally visible names, so only
	// types are validated against the child here.
	if err := validateSchema(n.ID, input.OutputSchema(), n.Schema, false); err != nil {
		return nil, err
	}
	return exec.NewOutput(n.ID, n.Schema, input, n.ColumnNames), nil
}

func (c *Converter) lowerExchange(frag *wire.Fragment, n *wire.ExchangeNode) (exec.Node, error) {
	inputs := make([]exec.Node, len(n.Srcs))
	for i, src := range n.Srcs {
		child, err := c.lowerChild(frag, n, src)
		if err != nil {
			return nil, err
		}
		if err := validateSchema(n.ID, child.OutputSchema(), n.Schema, false); err != nil {
			return nil, err
		}
		inputs[i] = child
	}

	p := exec.Partitioning{Partitions: 1}
	switch n.Partitioning {
	case wire.PartitionGather:
		p.Func = exec.PartitionGather
	case wire.PartitionRoundRobin:
		p.Func = exec.PartitionRoundRobin
	case wire.PartitionBroadcast:
		p.Func = exec.PartitionBroadcast
	case wire.PartitionHash:
		p.Func = exec.PartitionHash
		p.KeyColumns = make([]int, len(n.Keys))
		p.Partitions = len(n.Srcs)
		for i, key := range n.Keys {
			idx := n.Schema.IndexOf(key)
			if idx < 0 {
				return nil, newError(ErrCodeSchemaMismatch, n.ID,
					"partitioning key %q not in output schema %s", key, n.Schema)
			}
			p.KeyColumns[i] = idx
		}
	default:
		return nil, newError(ErrCodeUnsupportedNodeKind, n.ID,
			"unknown partition function %q", n.Partitioning)
	}

	return exec.NewExchange(n.ID, n.Schema, inputs, p), nil
}

func (c *Converter) lowerSemiJoin(frag *wire.Fragment, n *wire.SemiJoinNode) (exec.Node, error) {
	probe, err := c.lowerChild(frag, n, n.Source)
	if err != nil {
		return nil, err
	}
	build, err := c.lowerChild(frag, n, n.FilteringSource)
	if err != nil {
		return nil, err
	}

	probeKey := probe.OutputSchema().IndexOf(n.SourceJoinColumn)
	if probeKey < 0 {
		return nil, newError(ErrCodeSchemaMismatch, n.ID,
			"join column %q not in probe schema %s", n.SourceJoinColumn, probe.OutputSchema())
	}
	buildKey := build.OutputSchema().IndexOf(n.FilteringJoinColumn)
	if buildKey < 0 {
		return nil, newError(ErrCodeSchemaMismatch, n.ID,
			"join column %q not in build schema %s", n.FilteringJoinColumn, build.OutputSchema())
	}
	probeType := probe.OutputSchema()[probeKey].Type
	buildType := build.OutputSchema()[buildKey].Type
	if !probeType.Equal(buildType) {
		return nil, newError(ErrCodeSchemaMismatch, n.ID,
			"join columns disagree: %q is %s, %q is %s",
			n.SourceJoinColumn, probeType, n.FilteringJoinColumn, buildType)
	}

	computed := make(vtype.Schema, 0, len(probe.OutputSchema())+1)
	computed = append(computed, probe.OutputSchema()...)
	computed = append(computed, vtype.Column{Name: n.OutputColumn, Type: vtype.Boolean})
	if err := validateSchema(n.ID, computed, n.Schema, true); err != nil {
		return nil, err
	}

	return exec.NewSemiJoin(n.ID, n.Schema, probe, build, probeKey, buildKey), nil
}

func (c *Converter) lowerMergeJoin(frag *wire.Fragment, n *wire.MergeJoinNode) (exec.Node, error) {
	left, err := c.lowerChild(frag, n, n.Left)
	if err != nil {
		return nil, err
	}
	right, err := c.lowerChild(frag, n, n.Right)
	if err != nil {
		return nil, err
	}
	leftSchema := left.OutputSchema()
	rightSchema := right.OutputSchema()

	leftKeys := make([]int, len(n.Criteria))
	rightKeys := make([]int, len(n.Criteria))
	for i, crit := range n.Criteria {
		l := leftSchema.IndexOf(crit.Left)
		if l < 0 {
			return nil, newError(ErrCodeSchemaMismatch, n.ID,
				"join column %q not in left schema %s", crit.Left, leftSchema)
		}
		r := rightSchema.IndexOf(crit.Right)
		if r < 0 {
			return nil, newError(ErrCodeSchemaMismatch, n.ID,
				"join column %q not in right schema %s", crit.Right, rightSchema)
		}
		if !leftSchema[l].Type.Equal(rightSchema[r].Type) {
			return nil, newError(ErrCodeSchemaMismatch, n.ID,
				"join columns disagree: %q is %s, %q is %s",
				crit.Left, leftSchema[l].Type, crit.Right, rightSchema[r].Type)
		}
		leftKeys[i] = l
		rightKeys[i] = r
	}

	// Each declared output column resolves against the left schema
	// first, then the right.
	outputs := make([]exec.OutputSource, len(n.Schema))
	computed := make(vtype.Schema, len(n.Schema))
	for i, col := range n.Schema {
		if l := leftSchema.IndexOf(col.Name); l >= 0 {
			outputs[i] = exec.OutputSource{FromLeft: true, Column: l}
			computed[i] = vtype.Column{Name: col.Name, Type: leftSchema[l].Type}
			continue
		}
		if r := rightSchema.IndexOf(col.Name); r >= 0 {
			outputs[i] = exec.OutputSource{FromLeft: false, Column: r}
			computed[i] = vtype.Column{Name: col.Name, Type: rightSchema[r].Type}
			continue
		}
		return nil, newColumnError(ErrCodeSchemaMismatch, n.ID, i,
			"output column %q not found in either input schema", col.Name)
	}
	if err := validateSchema(n.ID, computed, n.Schema, true); err != nil {
		return nil, err
	}

	return exec.NewMergeJoin(n.ID, n.Schema, left, right, leftKeys, rightKeys, outputs), nil
}

// validateSchema compares a node's computed output schema against its
// declared one, position by position. checkNames is false for nodes that
// legitimately rename their input (output, exchange).
func validateSchema(nodeID string, computed, declared vtype.Schema, checkNames bool) error {
	if len(computed) != len(declared) {
		return newError(ErrCodeSchemaMismatch, nodeID,
			"computed schema has %d columns, declared %d", len(computed), len(declared))
	}
	for i := range computed {
		if !computed[i].Type.Equal(declared[i].Type) {
			return newColumnError(ErrCodeSchemaMismatch, nodeID, i,
				"computed type %s, declared %s", computed[i].Type, declared[i].Type)
		}
		if checkNames && vtype.CanonicalName(computed[i].Name) != vtype.CanonicalName(declared[i].Name) {
			return newColumnError(ErrCodeSchemaMismatch, nodeID, i,
				"computed column %q, declared %q", computed[i].Name, declared[i].Name)
		}
	}
	return nil
}
