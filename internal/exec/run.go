package exec

import (
	"fmt"
	"hash/fnv"

	"github.com/corviddb/corvid/internal/batch"
	"github.com/corviddb/corvid/internal/vtype"
)

// Run executes a lowered operator tree synchronously on the calling
// goroutine and returns the root's output batches. Exchanges execute
// within the worker: gather, round-robin, and broadcast merge their
// inputs for the single local consumer, hash regroups rows by key.
func Run(ctx *Context, root Node) ([]*batch.Batch, error) {
	out, err := runNode(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("run fragment %s: %w", ctx.FragmentID, err)
	}
	return out, nil
}

func runNode(ctx *Context, n Node) ([]*batch.Batch, error) {
	switch node := n.(type) {
	case *ValuesNode:
		return node.Batches, nil
	case *ProjectNode:
		return runProject(ctx, node)
	case *FilterNode:
		return runFilter(ctx, node)
	case *ExchangeNode:
		return runExchange(ctx, node)
	case *OutputNode:
		return runNode(ctx, node.Input)
	case *SemiJoinNode:
		return runSemiJoin(ctx, node)
	case *MergeJoinNode:
		return runMergeJoin(ctx, node)
	default:
		return nil, fmt.Errorf("node %s: no operator for %T", n.ID(), n)
	}
}

func runProject(ctx *Context, n *ProjectNode) ([]*batch.Batch, error) {
	inputs, err := runNode(ctx, n.Input)
	if err != nil {
		return nil, err
	}
	out := make([]*batch.Batch, 0, len(inputs))
	for _, in := range inputs {
		cols := make([]batch.Column, len(n.Exprs))
		for i, e := range n.Exprs {
			col, err := e.Eval(ctx.Scope, in)
			if err != nil {
				return nil, fmt.Errorf("node %s: project column %d: %w", n.ID(), i, err)
			}
			cols[i] = col
		}
		b, err := batch.New(cols...)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID(), err)
		}
		out = append(out, b)
	}
	return out, nil
}

func runFilter(ctx *Context, n *FilterNode) ([]*batch.Batch, error) {
	inputs, err := runNode(ctx, n.Input)
	if err != nil {
		return nil, err
	}
	if n.PassThrough {
		return inputs, nil
	}
	out := make([]*batch.Batch, 0, len(inputs))
	for _, in := range inputs {
		sel, err := n.Predicate.Eval(ctx.Scope, in)
		if err != nil {
			return nil, fmt.Errorf("node %s: predicate: %w", n.ID(), err)
		}
		var keep []int
		for i := 0; i < sel.Len(); i++ {
			if b, ok := sel.Get(i).(vtype.Bool); ok && bool(b) {
				keep = append(keep, i)
			}
		}
		if len(keep) == 0 {
			continue
		}
		filtered, err := in.Gather(ctx.Scope, keep)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID(), err)
		}
		out = append(out, filtered)
	}
	return out, nil
}

func runExchange(ctx *Context, n *ExchangeNode) ([]*batch.Batch, error) {
	var merged []*batch.Batch
	for _, input := range n.Inputs {
		batches, err := runNode(ctx, input)
		if err != nil {
			return nil, err
		}
		merged = append(merged, batches...)
	}

	switch n.Partitioning.Func {
	case PartitionGather, PartitionRoundRobin, PartitionBroadcast:
		// One local consumer: these all reduce to a merge.
		return merged, nil
	case PartitionHash:
		return hashRepartition(ctx, n, merged)
	default:
		return nil, fmt.Errorf("node %s: unknown partition function %v", n.ID(), n.Partitioning.Func)
	}
}

// hashRepartition regroups rows into one batch per non-empty bucket,
// buckets in ascending order.
func hashRepartition(ctx *Context, n *ExchangeNode, inputs []*batch.Batch) ([]*batch.Batch, error) {
	parts := n.Partitioning.Partitions
	if parts < 1 {
		parts = 1
	}
	buckets := make([][]*batch.Batch, parts)
	for _, in := range inputs {
		rowsByBucket := make([][]int, parts)
		for row := 0; row < in.NumRows(); row++ {
			h := fnv.New64a()
			for _, key := range n.Partitioning.KeyColumns {
				h.Write([]byte(vtype.Format(in.Column(key).Get(row))))
				h.Write([]byte{0})
			}
			b := int(h.Sum64() % uint64(parts))
			rowsByBucket[b] = append(rowsByBucket[b], row)
		}
		for b, rows := range rowsByBucket {
			if len(rows) == 0 {
				continue
			}
			part, err := in.Gather(ctx.Scope, rows)
			if err != nil {
				return nil, fmt.Errorf("node %s: %w", n.ID(), err)
			}
			buckets[b] = append(buckets[b], part)
		}
	}
	var out []*batch.Batch
	for _, bs := range buckets {
		out = append(out, bs...)
	}
	return out, nil
}

func runSemiJoin(ctx *Context, n *SemiJoinNode) ([]*batch.Batch, error) {
	buildBatches, err := runNode(ctx, n.Build)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]struct{})
	buildHasNull := false
	for _, b := range buildBatches {
		col := b.Column(n.BuildKey)
		for i := 0; i < col.Len(); i++ {
			v := col.Get(i)
			if _, isNull := v.(vtype.Null); isNull {
				buildHasNull = true
				continue
			}
			keys[vtype.Format(v)] = struct{}{}
		}
	}

	probeBatches, err := runNode(ctx, n.Probe)
	if err != nil {
		return nil, err
	}
	memberType := n.OutputSchema()[len(n.OutputSchema())-1].Type
	out := make([]*batch.Batch, 0, len(probeBatches))
	for _, b := range probeBatches {
		member, err := batch.NewColumn(ctx.Scope, memberType, b.NumRows())
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID(), err)
		}
		probeCol := b.Column(n.ProbeKey)
		for i := 0; i < b.NumRows(); i++ {
			v := probeCol.Get(i)
			var result vtype.Value
			if _, isNull := v.(vtype.Null); isNull {
				result = vtype.Null{}
			} else if _, found := keys[vtype.Format(v)]; found {
				result = vtype.Bool(true)
			} else if buildHasNull {
				// IN semantics: a miss against a build side holding
				// nulls is unknown, not false.
				result = vtype.Null{}
			} else {
				result = vtype.Bool(false)
			}
			if err := member.Append(result); err != nil {
				return nil, fmt.Errorf("node %s: %w", n.ID(), err)
			}
		}
		cols := make([]batch.Column, 0, b.NumCols()+1)
		for i := 0; i < b.NumCols(); i++ {
			cols = append(cols, b.Column(i))
		}
		cols = append(cols, member)
		joined, err := batch.New(cols...)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID(), err)
		}
		out = append(out, joined)
	}
	return out, nil
}

func runMergeJoin(ctx *Context, n *MergeJoinNode) ([]*batch.Batch, error) {
	left, err := runNode(ctx, n.Left)
	if err != nil {
		return nil, err
	}
	right, err := runNode(ctx, n.Right)
	if err != nil {
		return nil, err
	}

	// The protocol guarantees both sides arrive sorted on the join keys;
	// the classic two-pointer merge with block expansion applies.
	lrows := flatten(left)
	rrows := flatten(right)

	cols := make([]batch.Column, len(n.Outputs))
	for i := range n.Outputs {
		col, err := batch.NewColumn(ctx.Scope, n.OutputSchema()[i].Type, len(lrows.idx))
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID(), err)
		}
		cols[i] = col
	}

	emit := func(li, ri int) error {
		for c, src := range n.Outputs {
			var v vtype.Value
			if src.FromLeft {
				v = lrows.get(li, src.Column)
			} else {
				v = rrows.get(ri, src.Column)
			}
			if err := cols[c].Append(v); err != nil {
				return err
			}
		}
		return nil
	}

	li, ri := 0, 0
	for li < lrows.len() && ri < rrows.len() {
		cmp, null := compareKeys(lrows, li, n.LeftKeys, rrows, ri, n.RightKeys)
		switch {
		case null:
			// Null keys never match; advance the side holding the null.
			if keyHasNull(lrows, li, n.LeftKeys) {
				li++
			} else {
				ri++
			}
		case cmp < 0:
			li++
		case cmp > 0:
			ri++
		default:
			// Expand the block of equal right keys for this left row.
			rEnd := ri
			for rEnd < rrows.len() {
				c, nn := compareKeys(lrows, li, n.LeftKeys, rrows, rEnd, n.RightKeys)
				if nn || c != 0 {
					break
				}
				rEnd++
			}
			for r := ri; r < rEnd; r++ {
				if err := emit(li, r); err != nil {
					return nil, fmt.Errorf("node %s: %w", n.ID(), err)
				}
			}
			li++
		}
	}

	// Zero declared output columns or zero emitted rows both produce no
	// batches; batch.New rejects empty column lists.
	if len(cols) == 0 || cols[0].Len() == 0 {
		return nil, nil
	}
	b, err := batch.New(cols...)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", n.ID(), err)
	}
	return []*batch.Batch{b}, nil
}

// flatRows is a row-position view over a sequence of batches.
type flatRows struct {
	batches []*batch.Batch
	idx     []struct{ b, r int }
}

func flatten(batches []*batch.Batch) *flatRows {
	f := &flatRows{batches: batches}
	for bi, b := range batches {
		for r := 0; r < b.NumRows(); r++ {
			f.idx = append(f.idx, struct{ b, r int }{bi, r})
		}
	}
	return f
}

func (f *flatRows) len() int { return len(f.idx) }

func (f *flatRows) get(row, col int) vtype.Value {
	p := f.idx[row]
	return f.batches[p.b].Column(col).Get(p.r)
}

func keyHasNull(rows *flatRows, row int, keys []int) bool {
	for _, k := range keys {
		if _, ok := rows.get(row, k).(vtype.Null); ok {
			return true
		}
	}
	return false
}

func compareKeys(l *flatRows, li int, lkeys []int, r *flatRows, ri int, rkeys []int) (cmp int, null bool) {
	for i := range lkeys {
		lv := l.get(li, lkeys[i])
		rv := r.get(ri, rkeys[i])
		if isNullValue(lv) || isNullValue(rv) {
			return 0, true
		}
		if c := compareValues(lv, rv); c != 0 {
			return c, false
		}
	}
	return 0, false
}

func isNullValue(v vtype.Value) bool {
	_, ok := v.(vtype.Null)
	return ok
}

// compareValues orders two non-null values of the same family.
func compareValues(a, b vtype.Value) int {
	switch av := a.(type) {
	case vtype.Int:
		bv := b.(vtype.Int)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case vtype.Float:
		bv := b.(vtype.Float)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case vtype.Str:
		bv := b.(vtype.Str)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case vtype.Bool:
		bv := b.(vtype.Bool)
		switch {
		case !bool(av) && bool(bv):
			return -1
		case bool(av) && !bool(bv):
			return 1
		}
		return 0
	default:
		return 0
	}
}
