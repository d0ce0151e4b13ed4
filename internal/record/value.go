package record

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/brightline/vantage/internal/schema"
)

// Value is one attribute value of a canonical record. Exactly one of the
// typed fields is meaningful, selected by Type. Known=false is the explicit
// "unknown" sentinel: the attribute exists in the record but the extraction
// carried no value for it.
type Value struct {
	Type  schema.Type `json:"type"`
	Known bool        `json:"known"`

	Text   string   `json:"text,omitempty"`
	Number float64  `json:"number,omitempty"`
	Flag   bool     `json:"flag,omitempty"`
	List   []string `json:"list,omitempty"`
}

// Unknown returns the sentinel value for an attribute of the given type.
func Unknown(t schema.Type) Value {
	return Value{Type: t, Known: false}
}

// StringValue wraps a known string.
func StringValue(s string) Value {
	return Value{Type: schema.TypeString, Known: true, Text: s}
}

// NumberValue wraps a known number.
func NumberValue(n float64) Value {
	return Value{Type: schema.TypeNumber, Known: true, Number: n}
}

// BoolValue wraps a known boolean.
func BoolValue(b bool) Value {
	return Value{Type: schema.TypeBoolean, Known: true, Flag: b}
}

// ListValue wraps a known list of strings.
func ListValue(items []string) Value {
	return Value{Type: schema.TypeList, Known: true, List: items}
}

// Equal reports value equality. List values compare as unordered sets unless
// orderSignificant is set; duplicates are insignificant in set comparison.
func (v Value) Equal(other Value, orderSignificant bool) bool {
	if v.Type != other.Type || v.Known != other.Known {
		return false
	}
	if !v.Known {
		return true
	}

	switch v.Type {
	case schema.TypeString:
		return v.Text == other.Text
	case schema.TypeNumber:
		return v.Number == other.Number
	case schema.TypeBoolean:
		return v.Flag == other.Flag
	case schema.TypeList:
		if orderSignificant {
			return equalOrdered(v.List, other.List)
		}
		return equalAsSets(v.List, other.List)
	}
	return false
}

// String renders the value for logs and summaries.
func (v Value) String() string {
	if !v.Known {
		return "unknown"
	}
	switch v.Type {
	case schema.TypeString:
		return v.Text
	case schema.TypeNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case schema.TypeBoolean:
		return strconv.FormatBool(v.Flag)
	case schema.TypeList:
		return strings.Join(v.List, ", ")
	}
	return fmt.Sprintf("invalid(%s)", v.Type)
}

func equalOrdered(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalAsSets(a, b []string) bool {
	as := toSet(a)
	bs := toSet(b)
	if len(as) != len(bs) {
		return false
	}
	for k := range as {
		if !bs[k] {
			return false
		}
	}
	return true
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return set
}

// Fields maps attribute names to values. A canonical record's Fields always
// contain every schema attribute; missing extraction values appear as the
// unknown sentinel, never as absent keys.
type Fields map[string]Value

// Names returns the attribute names in sorted order.
func (f Fields) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Subset returns a copy containing only the named attributes.
func (f Fields) Subset(names []string) Fields {
	out := make(Fields, len(names))
	for _, name := range names {
		if v, ok := f[name]; ok {
			out[name] = v
		}
	}
	return out
}

// Clone returns a deep copy.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for name, v := range f {
		if v.List != nil {
			v.List = append([]string(nil), v.List...)
		}
		out[name] = v
	}
	return out
}
