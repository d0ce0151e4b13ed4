// Package record defines the canonical competitor record and the
// normalizer that turns raw AI extractions into validated records.
package record

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/brightline/vantage/internal/identity"
	"github.com/brightline/vantage/internal/schema"
)

// Record is the canonical, validated representation of one competitor at
// one point in time. Records are ephemeral: built per run, compared against
// the stored snapshot, then discarded.
type Record struct {
	Key         identity.Key `json:"identity_key"`
	DisplayName string       `json:"display_name"`
	Fields      Fields       `json:"fields"`
	ExtractedAt time.Time    `json:"extracted_at"`

	// ExternalRef is empty until the competitor's row exists in the
	// external store; for updates it is carried over from the snapshot.
	ExternalRef string `json:"external_ref,omitempty"`
}

// Normalize validates and coerces a raw extraction against the schema,
// producing a canonical record. It is pure: no I/O, no mutation of raw.
//
// Rules:
//   - a required attribute absent from raw with no declared default is an
//     AttributeError,
//   - every value is coerced to its declared type; coercion failure is an
//     AttributeError naming the attribute, never a silent drop or default,
//   - the output contains every schema attribute; absent optional values
//     become the explicit unknown sentinel.
func Normalize(key identity.Key, displayName string, extractedAt time.Time, raw map[string]any, s *schema.Schema) (*Record, error) {
	fields := make(Fields, s.Len())
	var errs collector

	for _, attr := range s.Attributes() {
		rawVal, present := raw[attr.Name]
		if present && rawVal == nil {
			// Extracted JSON null carries no information.
			present = false
		}

		if !present {
			switch {
			case attr.HasDefault:
				v, err := coerce(attr, attr.Default)
				if err != nil {
					errs.add(attr.Name, fmt.Sprintf("invalid default: %v", err))
					continue
				}
				fields[attr.Name] = v
			case attr.Required:
				errs.add(attr.Name, "required attribute missing from extraction")
			default:
				fields[attr.Name] = Unknown(attr.Type)
			}
			continue
		}

		v, err := coerce(attr, rawVal)
		if err != nil {
			errs.add(attr.Name, err.Error())
			continue
		}
		fields[attr.Name] = v
	}

	if err := errs.err(); err != nil {
		return nil, err
	}

	return &Record{
		Key:         key,
		DisplayName: displayName,
		Fields:      fields,
		ExtractedAt: extractedAt,
	}, nil
}

// coerce converts a raw extracted value to the attribute's declared type.
func coerce(attr schema.Attribute, raw any) (Value, error) {
	switch attr.Type {
	case schema.TypeString:
		s, err := coerceString(raw)
		if err != nil {
			return Value{}, err
		}
		return StringValue(s), nil

	case schema.TypeNumber:
		n, err := coerceNumber(raw)
		if err != nil {
			return Value{}, err
		}
		return NumberValue(n), nil

	case schema.TypeBoolean:
		b, err := coerceBool(raw)
		if err != nil {
			return Value{}, err
		}
		return BoolValue(b), nil

	case schema.TypeList:
		items, err := coerceList(raw)
		if err != nil {
			return Value{}, err
		}
		return ListValue(items), nil
	}
	return Value{}, fmt.Errorf("unsupported type %q", attr.Type)
}

func coerceString(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	}
	return "", fmt.Errorf("cannot coerce %T to string", raw)
}

func coerceNumber(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("non-numeric value %q", v.String())
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("non-numeric text %q", v)
		}
		return f, nil
	}
	return 0, fmt.Errorf("cannot coerce %T to number", raw)
}

func coerceBool(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes":
			return true, nil
		case "false", "no":
			return false, nil
		}
		return false, fmt.Errorf("non-boolean text %q", v)
	}
	return false, fmt.Errorf("cannot coerce %T to boolean", raw)
}

func coerceList(raw any) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		items := make([]string, 0, len(v))
		for i, el := range v {
			s, err := coerceString(el)
			if err != nil {
				return nil, fmt.Errorf("list element %d: %v", i, err)
			}
			items = append(items, s)
		}
		return items, nil
	case string:
		// Models occasionally flatten a single-element list to a scalar.
		return []string{v}, nil
	}
	return nil, fmt.Errorf("cannot coerce %T to list", raw)
}
