package vtype

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind enumerates the value-type families known to the execution engine.
type Kind int

const (
	KindBoolean Kind = iota
	KindTinyint
	KindSmallint
	KindInteger
	KindBigint
	KindReal
	KindDouble
	KindVarchar
	KindVarbinary
	KindDate
	KindTimestamp
	KindDecimal
	KindArray
	KindRow
)

// kindNames maps each Kind to its canonical wire descriptor name.
var kindNames = map[Kind]string{
	KindBoolean:   "boolean",
	KindTinyint:   "tinyint",
	KindSmallint:  "smallint",
	KindInteger:   "integer",
	KindBigint:    "bigint",
	KindReal:      "real",
	KindDouble:    "double",
	KindVarchar:   "varchar",
	KindVarbinary: "varbinary",
	KindDate:      "date",
	KindTimestamp: "timestamp",
	KindDecimal:   "decimal",
	KindArray:     "array",
	KindRow:       "row",
}

// String returns the canonical descriptor name for the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Type is a resolved value type. Scalar kinds use only the Kind field.
// Parameterized kinds carry their payload:
//
//	varchar      Length (0 = unbounded)
//	decimal      Precision, Scale
//	array(T)     Elem
//	row(...)     Fields
type Type struct {
	Kind      Kind
	Length    int
	Precision int
	Scale     int
	Elem      *Type
	Fields    []Field
}

// Field is one named component of a row type.
type Field struct {
	Name string
	Type Type
}

// Convenience constructors for the scalar types.
var (
	Boolean   = Type{Kind: KindBoolean}
	Tinyint   = Type{Kind: KindTinyint}
	Smallint  = Type{Kind: KindSmallint}
	Integer   = Type{Kind: KindInteger}
	Bigint    = Type{Kind: KindBigint}
	Real      = Type{Kind: KindReal}
	Double    = Type{Kind: KindDouble}
	Varchar   = Type{Kind: KindVarchar}
	Varbinary = Type{Kind: KindVarbinary}
	Date      = Type{Kind: KindDate}
	Timestamp = Type{Kind: KindTimestamp}
)

// ArrayOf returns the array type with the given element type.
func ArrayOf(elem Type) Type {
	e := elem
	return Type{Kind: KindArray, Elem: &e}
}

// RowOf returns the row type with the given fields.
func RowOf(fields ...Field) Type {
	return Type{Kind: KindRow, Fields: fields}
}

// DecimalOf returns the decimal type with the given precision and scale.
func DecimalOf(precision, scale int) Type {
	return Type{Kind: KindDecimal, Precision: precision, Scale: scale}
}

// Equal reports whether two types are structurally identical, including
// all parameters and nested component types.
func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case KindVarchar:
		return t.Length == o.Length
	case KindDecimal:
		return t.Precision == o.Precision && t.Scale == o.Scale
	case KindArray:
		return t.Elem.Equal(*o.Elem)
	case KindRow:
		if len(t.Fields) != len(o.Fields) {
			return false
		}
		for i := range t.Fields {
			if t.Fields[i].Name != o.Fields[i].Name || !t.Fields[i].Type.Equal(o.Fields[i].Type) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// String renders the canonical wire descriptor for the type.
func (t Type) String() string {
	switch t.Kind {
	case KindVarchar:
		if t.Length > 0 {
			return fmt.Sprintf("varchar(%d)", t.Length)
		}
		return "varchar"
	case KindDecimal:
		return fmt.Sprintf("decimal(%d,%d)", t.Precision, t.Scale)
	case KindArray:
		return fmt.Sprintf("array(%s)", t.Elem.String())
	case KindRow:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.Name + " " + f.Type.String()
		}
		return "row(" + strings.Join(parts, ", ") + ")"
	default:
		return t.Kind.String()
	}
}

// Parse maps a wire type descriptor to a Type. It accepts exactly the
// descriptors this engine implements and fails with *UnsupportedTypeError
// for anything else. Parsing never coerces: "char(3)" is unsupported, not
// an alias for varchar.
func Parse(desc string) (Type, error) {
	p := &typeParser{src: desc}
	t, err := p.parseType()
	if err != nil {
		return Type{}, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return Type{}, newUnsupportedType(desc, "trailing characters after type")
	}
	return t, nil
}

// scalarKinds maps bare descriptor names to their kinds.
var scalarKinds = map[string]Kind{
	"boolean":   KindBoolean,
	"tinyint":   KindTinyint,
	"smallint":  KindSmallint,
	"integer":   KindInteger,
	"bigint":    KindBigint,
	"real":      KindReal,
	"double":    KindDouble,
	"varchar":   KindVarchar,
	"varbinary": KindVarbinary,
	"date":      KindDate,
	"timestamp": KindTimestamp,
}

type typeParser struct {
	src string
	pos int
}

func (p *typeParser) skipSpace() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *typeParser) peek() byte {
	if p.pos < len(p.src) {
		return p.src[p.pos]
	}
	return 0
}

func (p *typeParser) ident() string {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '(' || c == ')' || c == ',' || c == ' ' {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *typeParser) expect(c byte) error {
	p.skipSpace()
	if p.peek() != c {
		return newUnsupportedType(p.src, fmt.Sprintf("expected %q at offset %d", string(c), p.pos))
	}
	p.pos++
	return nil
}

func (p *typeParser) number() (int, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	if start == p.pos {
		return 0, newUnsupportedType(p.src, fmt.Sprintf("expected number at offset %d", start))
	}
	n, err := strconv.Atoi(p.src[start:p.pos])
	if err != nil {
		return 0, newUnsupportedType(p.src, err.Error())
	}
	return n, nil
}

func (p *typeParser) parseType() (Type, error) {
	p.skipSpace()
	name := strings.ToLower(p.ident())
	if name == "" {
		return Type{}, newUnsupportedType(p.src, "empty type descriptor")
	}

	switch name {
	case "decimal":
		if err := p.expect('('); err != nil {
			return Type{}, err
		}
		prec, err := p.number()
		if err != nil {
			return Type{}, err
		}
		if err := p.expect(','); err != nil {
			return Type{}, err
		}
		scale, err := p.number()
		if err != nil {
			return Type{}, err
		}
		if err := p.expect(')'); err != nil {
			return Type{}, err
		}
		if prec < 1 || prec > 38 || scale < 0 || scale > prec {
			return Type{}, newUnsupportedType(p.src, fmt.Sprintf("decimal(%d,%d) out of range", prec, scale))
		}
		return DecimalOf(prec, scale), nil

	case "array":
		if err := p.expect('('); err != nil {
			return Type{}, err
		}
		elem, err := p.parseType()
		if err != nil {
			return Type{}, err
		}
		if err := p.expect(')'); err != nil {
			return Type{}, err
		}
		return ArrayOf(elem), nil

	case "row":
		if err := p.expect('('); err != nil {
			return Type{}, err
		}
		var fields []Field
		for {
			p.skipSpace()
			fname := p.ident()
			if fname == "" {
				return Type{}, newUnsupportedType(p.src, "row field missing name")
			}
			p.skipSpace()
			ftype, err := p.parseType()
			if err != nil {
				return Type{}, err
			}
			fields = append(fields, Field{Name: fname, Type: ftype})
			p.skipSpace()
			if p.peek() == ',' {
				p.pos++
				continue
			}
			break
		}
		if err := p.expect(')'); err != nil {
			return Type{}, err
		}
		return RowOf(fields...), nil

	case "varchar":
		p.skipSpace()
		if p.peek() == '(' {
			p.pos++
			n, err := p.number()
			if err != nil {
				return Type{}, err
			}
			if err := p.expect(')'); err != nil {
				return Type{}, err
			}
			return Type{Kind: KindVarchar, Length: n}, nil
		}
		return Varchar, nil

	default:
		kind, ok := scalarKinds[name]
		if !ok {
			return Type{}, newUnsupportedType(p.src, fmt.Sprintf("unknown type name %q", name))
		}
		return Type{Kind: kind}, nil
	}
}
