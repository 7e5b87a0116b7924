package expr

import (
	"fmt"
	"strings"

	"github.com/corviddb/corvid/internal/batch"
	"github.com/corviddb/corvid/internal/memory"
	"github.com/corviddb/corvid/internal/vtype"
	"github.com/corviddb/corvid/internal/wire"
)

// builder type-checks one call against its compiled arguments and
// produces the evaluator.
type builder func(call *wire.Call, args []*Compiled) (*Compiled, error)

// functions is the scalar function registry. Closed set: an unknown name
// is a compilation error, never a runtime surprise.
var functions = map[string]builder{
	"eq":       comparisonBuilder(func(c int) bool { return c == 0 }),
	"neq":      comparisonBuilder(func(c int) bool { return c != 0 }),
	"lt":       orderingBuilder(func(c int) bool { return c < 0 }),
	"lte":      orderingBuilder(func(c int) bool { return c <= 0 }),
	"gt":       orderingBuilder(func(c int) bool { return c > 0 }),
	"gte":      orderingBuilder(func(c int) bool { return c >= 0 }),
	"and":      connectiveBuilder(true),
	"or":       connectiveBuilder(false),
	"not":      notBuilder,
	"plus":     arithmeticBuilder(func(a, b int64) (int64, error) { return a + b, nil }, func(a, b float64) float64 { return a + b }),
	"minus":    arithmeticBuilder(func(a, b int64) (int64, error) { return a - b, nil }, func(a, b float64) float64 { return a - b }),
	"multiply": arithmeticBuilder(func(a, b int64) (int64, error) { return a * b, nil }, func(a, b float64) float64 { return a * b }),
	"divide": arithmeticBuilder(func(a, b int64) (int64, error) {
		if b == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return a / b, nil
	}, func(a, b float64) float64 { return a / b }),
	"negate": negateBuilder,
}

// family collapses a type to its comparison family.
func family(t vtype.Type) (vtype.Kind, bool) {
	switch t.Kind {
	case vtype.KindBoolean:
		return vtype.KindBoolean, true
	case vtype.KindTinyint, vtype.KindSmallint, vtype.KindInteger, vtype.KindBigint,
		vtype.KindDate, vtype.KindTimestamp:
		return vtype.KindBigint, true
	case vtype.KindReal, vtype.KindDouble:
		return vtype.KindDouble, true
	case vtype.KindVarchar:
		return vtype.KindVarchar, true
	default:
		return 0, false
	}
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
		return strings.Compare(string(av), string(b.(vtype.Str)))
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

func isNull(v vtype.Value) bool {
	_, ok := v.(vtype.Null)
	return ok
}

// rowwise builds an evaluator that materializes each argument column and
// computes the output one row at a time.
func rowwise(typ vtype.Type, args []*Compiled, fn func(row []vtype.Value) (vtype.Value, error)) func(*memory.Scope, *batch.Batch) (batch.Column, error) {
	return func(scope *memory.Scope, b *batch.Batch) (batch.Column, error) {
		cols := make([]batch.Column, len(args))
		for i, a := range args {
			col, err := a.Eval(scope, b)
			if err != nil {
				return nil, err
			}
			cols[i] = col
		}
		out, err := batch.NewColumn(scope, typ, b.NumRows())
		if err != nil {
			return nil, err
		}
		row := make([]vtype.Value, len(cols))
		for i := 0; i < b.NumRows(); i++ {
			for j, col := range cols {
				row[j] = col.Get(i)
			}
			v, err := fn(row)
			if err != nil {
				return nil, err
			}
			if err := out.Append(v); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
}

func requireBooleanResult(call *wire.Call) error {
	if call.Type.Kind != vtype.KindBoolean {
		return newCompilationError(Render(call),
			"function %q yields boolean but declared result type is %s", call.Name, call.Type)
	}
	return nil
}

func comparisonFamilies(call *wire.Call, args []*Compiled) (vtype.Kind, error) {
	if len(args) != 2 {
		return 0, newCompilationError(Render(call), "function %q takes 2 arguments, got %d", call.Name, len(args))
	}
	lf, lok := family(args[0].Type())
	rf, rok := family(args[1].Type())
	if !lok || !rok {
		return 0, newCompilationError(Render(call),
			"function %q cannot compare %s and %s", call.Name, args[0].Type(), args[1].Type())
	}
	if lf != rf {
		return 0, newCompilationError(Render(call),
			"function %q requires arguments of one type family, got %s and %s",
			call.Name, args[0].Type(), args[1].Type())
	}
	return lf, nil
}

// comparisonBuilder covers eq and neq, which accept any comparable family
// including boolean.
func comparisonBuilder(keep func(int) bool) builder {
	return func(call *wire.Call, args []*Compiled) (*Compiled, error) {
		if _, err := comparisonFamilies(call, args); err != nil {
			return nil, err
		}
		if err := requireBooleanResult(call); err != nil {
			return nil, err
		}
		return &Compiled{
			typ:  call.Type,
			text: Render(call),
			eval: rowwise(call.Type, args, func(row []vtype.Value) (vtype.Value, error) {
				if isNull(row[0]) || isNull(row[1]) {
					return vtype.Null{}, nil
				}
				return vtype.Bool(keep(compareValues(row[0], row[1]))), nil
			}),
		}, nil
	}
}

// orderingBuilder covers lt/lte/gt/gte, which reject booleans.
func orderingBuilder(keep func(int) bool) builder {
	return func(call *wire.Call, args []*Compiled) (*Compiled, error) {
		fam, err := comparisonFamilies(call, args)
		if err != nil {
			return nil, err
		}
		if fam == vtype.KindBoolean {
			return nil, newCompilationError(Render(call),
				"function %q is not defined for boolean arguments", call.Name)
		}
		if err := requireBooleanResult(call); err != nil {
			return nil, err
		}
		return &Compiled{
			typ:  call.Type,
			text: Render(call),
			eval: rowwise(call.Type, args, func(row []vtype.Value) (vtype.Value, error) {
				if isNull(row[0]) || isNull(row[1]) {
					return vtype.Null{}, nil
				}
				return vtype.Bool(keep(compareValues(row[0], row[1]))), nil
			}),
		}, nil
	}
}

// connectiveBuilder covers and/or with three-valued logic.
func connectiveBuilder(isAnd bool) builder {
	return func(call *wire.Call, args []*Compiled) (*Compiled, error) {
		if len(args) < 2 {
			return nil, newCompilationError(Render(call), "function %q takes at least 2 arguments", call.Name)
		}
		for _, a := range args {
			if a.Type().Kind != vtype.KindBoolean {
				return nil, newCompilationError(Render(call),
					"function %q requires boolean arguments, got %s", call.Name, a.Type())
			}
		}
		if err := requireBooleanResult(call); err != nil {
			return nil, err
		}
		return &Compiled{
			typ:  call.Type,
			text: Render(call),
			eval: rowwise(call.Type, args, func(row []vtype.Value) (vtype.Value, error) {
				sawNull := false
				for _, v := range row {
					if isNull(v) {
						sawNull = true
						continue
					}
					b := bool(v.(vtype.Bool))
					if isAnd && !b {
						return vtype.Bool(false), nil
					}
					if !isAnd && b {
						return vtype.Bool(true), nil
					}
				}
				if sawNull {
					return vtype.Null{}, nil
				}
				return vtype.Bool(isAnd), nil
			}),
		}, nil
	}
}

func notBuilder(call *wire.Call, args []*Compiled) (*Compiled, error) {
	if len(args) != 1 {
		return nil, newCompilationError(Render(call), "function \"not\" takes 1 argument, got %d", len(args))
	}
	if args[0].Type().Kind != vtype.KindBoolean {
		return nil, newCompilationError(Render(call),
			"function \"not\" requires a boolean argument, got %s", args[0].Type())
	}
	if err := requireBooleanResult(call); err != nil {
		return nil, err
	}
	return &Compiled{
		typ:  call.Type,
		text: Render(call),
		eval: rowwise(call.Type, args, func(row []vtype.Value) (vtype.Value, error) {
			if isNull(row[0]) {
				return vtype.Null{}, nil
			}
			return vtype.Bool(!bool(row[0].(vtype.Bool))), nil
		}),
	}, nil
}

func numericFamily(call *wire.Call, args []*Compiled) (vtype.Kind, error) {
	fam := vtype.Kind(0)
	for _, a := range args {
		f, ok := family(a.Type())
		if !ok || (f != vtype.KindBigint && f != vtype.KindDouble) {
			return 0, newCompilationError(Render(call),
				"function %q requires numeric arguments, got %s", call.Name, a.Type())
		}
		if fam == 0 {
			fam = f
		} else if fam != f {
			return 0, newCompilationError(Render(call),
				"function %q requires arguments of one numeric family", call.Name)
		}
	}
	rf, ok := family(call.Type)
	if !ok || rf != fam {
		return 0, newCompilationError(Render(call),
			"function %q over %s arguments cannot declare result type %s",
			call.Name, args[0].Type(), call.Type)
	}
	return fam, nil
}

func arithmeticBuilder(intFn func(a, b int64) (int64, error), floatFn func(a, b float64) float64) builder {
	return func(call *wire.Call, args []*Compiled) (*Compiled, error) {
		if len(args) != 2 {
			return nil, newCompilationError(Render(call), "function %q takes 2 arguments, got %d", call.Name, len(args))
		}
		fam, err := numericFamily(call, args)
		if err != nil {
			return nil, err
		}
		return &Compiled{
			typ:  call.Type,
			text: Render(call),
			eval: rowwise(call.Type, args, func(row []vtype.Value) (vtype.Value, error) {
				if isNull(row[0]) || isNull(row[1]) {
					return vtype.Null{}, nil
				}
				if fam == vtype.KindBigint {
					n, err := intFn(int64(row[0].(vtype.Int)), int64(row[1].(vtype.Int)))
					if err != nil {
						return nil, err
					}
					return vtype.Int(n), nil
				}
				return vtype.Float(floatFn(float64(row[0].(vtype.Float)), float64(row[1].(vtype.Float)))), nil
			}),
		}, nil
	}
}

func negateBuilder(call *wire.Call, args []*Compiled) (*Compiled, error) {
	if len(args) != 1 {
		return nil, newCompilationError(Render(call), "function \"negate\" takes 1 argument, got %d", len(args))
	}
	fam, err := numericFamily(call, args)
	if err != nil {
		return nil, err
	}
	return &Compiled{
		typ:  call.Type,
		text: Render(call),
		eval: rowwise(call.Type, args, func(row []vtype.Value) (vtype.Value, error) {
			if isNull(row[0]) {
				return vtype.Null{}, nil
			}
			if fam == vtype.KindBigint {
				return vtype.Int(-int64(row[0].(vtype.Int))), nil
			}
			return vtype.Float(-float64(row[0].(vtype.Float))), nil
		}),
	}, nil
}
