package expr

import (
	"fmt"
	"strings"

	"github.com/corviddb/corvid/internal/batch"
	"github.com/corviddb/corvid/internal/memory"
	"github.com/corviddb/corvid/internal/vtype"
	"github.com/corviddb/corvid/internal/wire"
)

// Compiled is an evaluable form of one scalar expression, bound to the
// input schema it was compiled against.
type Compiled struct {
	typ       vtype.Type
	text      string
	constTrue bool
	eval      func(*memory.Scope, *batch.Batch) (batch.Column, error)
}

// Type returns the expression's resolved result type.
func (c *Compiled) Type() vtype.Type { return c.typ }

// String returns a rendering of the source expression.
func (c *Compiled) String() string { return c.text }

// IsConstantTrue reports whether the expression is the constant boolean
// true. Filters use this for their pass-through fast path.
func (c *Compiled) IsConstantTrue() bool { return c.constTrue }

// Eval applies the expression to every row of the batch and returns one
// output column of Type(), with buffers reserved from scope.
func (c *Compiled) Eval(scope *memory.Scope, b *batch.Batch) (batch.Column, error) {
	return c.eval(scope, b)
}

// Render formats a wire expression for diagnostics.
func Render(e wire.Expr) string {
	switch expr := e.(type) {
	case *wire.Constant:
		return vtype.Format(expr.Value)
	case *wire.ColumnRef:
		return expr.Name
	case *wire.Call:
		args := make([]string, len(expr.Args))
		for i, a := range expr.Args {
			args[i] = Render(a)
		}
		return expr.Name + "(" + strings.Join(args, ", ") + ")"
	default:
		return fmt.Sprintf("expr(%T)", e)
	}
}

// Compile resolves and type-checks an expression against the input schema
// and returns its evaluable form. Unresolved references, unknown
// functions, and type disagreements fail with *CompilationError.
func Compile(e wire.Expr, in vtype.Schema) (*Compiled, error) {
	switch expr := e.(type) {
	case *wire.Constant:
		return compileConstant(expr)
	case *wire.ColumnRef:
		return compileColumnRef(expr, in)
	case *wire.Call:
		return compileCall(expr, in)
	default:
		return nil, newCompilationError(Render(e), "unknown expression type %T", e)
	}
}

func compileConstant(c *wire.Constant) (*Compiled, error) {
	if !vtype.AcceptsValue(c.Type, c.Value) {
		return nil, newCompilationError(Render(c),
			"constant value %s does not fit declared type %s", vtype.Format(c.Value), c.Type)
	}
	typ := c.Type
	val := c.Value
	_, isTrue := constantBool(c)
	return &Compiled{
		typ:       typ,
		text:      Render(c),
		constTrue: isTrue,
		eval: func(scope *memory.Scope, b *batch.Batch) (batch.Column, error) {
			col, err := batch.NewColumn(scope, typ, b.NumRows())
			if err != nil {
				return nil, err
			}
			for i := 0; i < b.NumRows(); i++ {
				if err := col.Append(val); err != nil {
					return nil, err
				}
			}
			return col, nil
		},
	}, nil
}

func constantBool(c *wire.Constant) (value bool, isTrue bool) {
	if c.Type.Kind != vtype.KindBoolean {
		return false, false
	}
	b, ok := c.Value.(vtype.Bool)
	if !ok {
		return false, false
	}
	return bool(b), bool(b)
}

func compileColumnRef(ref *wire.ColumnRef, in vtype.Schema) (*Compiled, error) {
	idx := in.IndexOf(ref.Name)
	if idx < 0 {
		return nil, newCompilationError(Render(ref),
			"column %q not found in input schema %s", ref.Name, in)
	}
	resolved := in[idx].Type
	if !resolved.Equal(ref.Type) {
		return nil, newCompilationError(Render(ref),
			"column %q declared as %s but input schema resolves it to %s", ref.Name, ref.Type, resolved)
	}
	return &Compiled{
		typ:  resolved,
		text: Render(ref),
		eval: func(_ *memory.Scope, b *batch.Batch) (batch.Column, error) {
			if idx >= b.NumCols() {
				return nil, fmt.Errorf("input batch has %d columns, expression references position %d", b.NumCols(), idx)
			}
			return b.Column(idx), nil
		},
	}, nil
}

func compileCall(call *wire.Call, in vtype.Schema) (*Compiled, error) {
	args := make([]*Compiled, len(call.Args))
	for i, a := range call.Args {
		compiled, err := Compile(a, in)
		if err != nil {
			return nil, err
		}
		args[i] = compiled
	}

	builder, ok := functions[call.Name]
	if !ok {
		return nil, newCompilationError(Render(call), "unknown function %q", call.Name)
	}
	return builder(call, args)
}
