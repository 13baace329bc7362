package table

import (
	"strconv"
	"time"
)

// Kind tags the type of a cell value.
type Kind uint8

const (
	Missing Kind = iota
	Text
	Number
	Date
	Bool
)

func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case Number:
		return "number"
	case Date:
		return "date"
	case Bool:
		return "bool"
	default:
		return "missing"
	}
}

// Value is a single cell. The zero Value is Missing.
type Value struct {
	Kind Kind
	str  string
	num  float64
	t    time.Time
	b    bool
}

// TextValue returns a Text value, or Missing when s is empty.
func TextValue(s string) Value {
	if s == "" {
		return Value{}
	}
	return Value{Kind: Text, str: s}
}

func NumberValue(f float64) Value { return Value{Kind: Number, num: f} }

func DateValue(t time.Time) Value { return Value{Kind: Date, t: t} }

func BoolValue(b bool) Value { return Value{Kind: Bool, b: b} }

// IsMissing reports whether the value carries no data.
func (v Value) IsMissing() bool { return v.Kind == Missing }

// String renders the value with fixed formatting rules so the same data
// always produces the same text regardless of the column type it came from.
func (v Value) String() string {
	switch v.Kind {
	case Text:
		return v.str
	case Number:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case Date:
		if h, m, s := v.t.Clock(); h == 0 && m == 0 && s == 0 {
			return v.t.Format("2006-01-02")
		}
		return v.t.Format("2006-01-02 15:04:05")
	case Bool:
		if v.b {
			return "TRUE"
		}
		return "FALSE"
	default:
		return ""
	}
}

// Float returns the numeric payload for Number values.
func (v Value) Float() (float64, bool) {
	if v.Kind != Number {
		return 0, false
	}
	return v.num, true
}
