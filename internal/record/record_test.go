package record

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/brightline/vantage/internal/schema"
)

const testSchema = `
attributes:
  - name: pricing
    type: string
    required: true
  - name: employee_count
    type: number
  - name: has_free_tier
    type: boolean
    default: false
  - name: features
    type: list
  - name: roadmap
    type: list
    order_significant: true
`

func mustSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.Parse([]byte(testSchema))
	if err != nil {
		t.Fatalf("schema parse: %v", err)
	}
	return s
}

func TestNormalize_FullExtraction(t *testing.T) {
	s := mustSchema(t)
	now := time.Now().UTC()

	raw := map[string]any{
		"pricing":        "usage-based, $10 per seat",
		"employee_count": float64(250),
		"has_free_tier":  true,
		"features":       []any{"sso", "audit-log"},
		"roadmap":        []any{"q1: api", "q2: sdk"},
	}

	rec, err := Normalize("acme", "Acme Inc.", now, raw, s)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if rec.Key != "acme" || rec.DisplayName != "Acme Inc." {
		t.Errorf("identity fields wrong: %q / %q", rec.Key, rec.DisplayName)
	}
	if !rec.ExtractedAt.Equal(now) {
		t.Errorf("ExtractedAt = %v, want %v", rec.ExtractedAt, now)
	}
	if got := rec.Fields["employee_count"]; !got.Known || got.Number != 250 {
		t.Errorf("employee_count = %+v", got)
	}
	if got := rec.Fields["features"]; len(got.List) != 2 {
		t.Errorf("features = %+v", got)
	}
}

func TestNormalize_EveryAttributePresent(t *testing.T) {
	s := mustSchema(t)

	// Only the required attribute supplied.
	rec, err := Normalize("acme", "Acme", time.Now(), map[string]any{"pricing": "free"}, s)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if len(rec.Fields) != s.Len() {
		t.Fatalf("record has %d fields, schema has %d", len(rec.Fields), s.Len())
	}
	// Optional attribute without value is the unknown sentinel, not absent.
	ec, ok := rec.Fields["employee_count"]
	if !ok {
		t.Fatal("employee_count key missing entirely")
	}
	if ec.Known {
		t.Errorf("employee_count should be unknown, got %+v", ec)
	}
	// Declared default applies.
	if ft := rec.Fields["has_free_tier"]; !ft.Known || ft.Flag {
		t.Errorf("has_free_tier = %+v, want known false", ft)
	}
}

func TestNormalize_MissingRequiredNamesAttribute(t *testing.T) {
	s := mustSchema(t)

	_, err := Normalize("acme", "Acme", time.Now(), map[string]any{}, s)
	if err == nil {
		t.Fatal("expected ValidationError")
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error is %T, want *ValidationError", err)
	}
	if len(verr.Attributes) != 1 || verr.Attributes[0].Attribute != "pricing" {
		t.Errorf("ValidationError = %+v, want pricing named", verr.Attributes)
	}
}

func TestNormalize_CoercionFailureNamesAttribute(t *testing.T) {
	s := mustSchema(t)

	raw := map[string]any{
		"pricing":        "free",
		"employee_count": "around two hundred",
	}
	_, err := Normalize("acme", "Acme", time.Now(), raw, s)
	if err == nil {
		t.Fatal("expected ValidationError for non-numeric text")
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error is %T, want *ValidationError", err)
	}
	if verr.Attributes[0].Attribute != "employee_count" {
		t.Errorf("offending attribute = %q, want employee_count", verr.Attributes[0].Attribute)
	}
}

func TestNormalize_CollectsAllFailures(t *testing.T) {
	s := mustSchema(t)

	raw := map[string]any{
		"employee_count": "many",
		"has_free_tier":  "maybe",
	}
	_, err := Normalize("acme", "Acme", time.Now(), raw, s)

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error is %T, want *ValidationError", err)
	}
	// pricing missing + two coercion failures
	if len(verr.Attributes) != 3 {
		t.Errorf("got %d attribute errors, want 3: %v", len(verr.Attributes), verr)
	}
}

func TestNormalize_Coercions(t *testing.T) {
	s := mustSchema(t)

	tests := []struct {
		name string
		raw  map[string]any
		chk  func(t *testing.T, f Fields)
	}{
		{
			name: "numeric string to number",
			raw:  map[string]any{"pricing": "x", "employee_count": " 42 "},
			chk: func(t *testing.T, f Fields) {
				if v := f["employee_count"]; v.Number != 42 {
					t.Errorf("employee_count = %+v", v)
				}
			},
		},
		{
			name: "number to string",
			raw:  map[string]any{"pricing": float64(10)},
			chk: func(t *testing.T, f Fields) {
				if v := f["pricing"]; v.Text != "10" {
					t.Errorf("pricing = %+v", v)
				}
			},
		},
		{
			name: "boolean text",
			raw:  map[string]any{"pricing": "x", "has_free_tier": "Yes"},
			chk: func(t *testing.T, f Fields) {
				if v := f["has_free_tier"]; !v.Flag {
					t.Errorf("has_free_tier = %+v", v)
				}
			},
		},
		{
			name: "scalar to single-element list",
			raw:  map[string]any{"pricing": "x", "features": "sso"},
			chk: func(t *testing.T, f Fields) {
				v := f["features"]
				if len(v.List) != 1 || v.List[0] != "sso" {
					t.Errorf("features = %+v", v)
				}
			},
		},
		{
			name: "null treated as absent",
			raw:  map[string]any{"pricing": "x", "features": nil},
			chk: func(t *testing.T, f Fields) {
				if f["features"].Known {
					t.Errorf("features = %+v, want unknown", f["features"])
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Normalize("acme", "Acme", time.Now(), tt.raw, s)
			if err != nil {
				t.Fatalf("Normalize failed: %v", err)
			}
			tt.chk(t, rec.Fields)
		})
	}
}

func TestNormalize_Pure(t *testing.T) {
	s := mustSchema(t)
	raw := map[string]any{"pricing": "free", "features": []any{"a"}}

	if _, err := Normalize("acme", "Acme", time.Now(), raw, s); err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if len(raw) != 2 {
		t.Error("Normalize mutated the raw extraction")
	}
	if _, ok := raw["has_free_tier"]; ok {
		t.Error("Normalize injected defaults into the raw extraction")
	}
}

func TestValueEqual_Lists(t *testing.T) {
	a := ListValue([]string{"a", "b"})
	b := ListValue([]string{"b", "a"})

	if !a.Equal(b, false) {
		t.Error("unordered lists with same elements should be equal")
	}
	if a.Equal(b, true) {
		t.Error("order-significant lists with different order should differ")
	}
	if !a.Equal(a, true) {
		t.Error("identical ordered lists should be equal")
	}

	c := ListValue([]string{"a"})
	if a.Equal(c, false) {
		t.Error("different element sets should differ")
	}
}

func TestValueEqual_UnknownSentinel(t *testing.T) {
	u := Unknown(schema.TypeString)
	if !u.Equal(Unknown(schema.TypeString), false) {
		t.Error("two unknowns of same type should be equal")
	}
	if u.Equal(StringValue(""), false) {
		t.Error("unknown must differ from known empty string")
	}
}

func TestFields_JSONRoundTrip(t *testing.T) {
	f := Fields{
		"pricing":      StringValue("free"),
		"count":        NumberValue(3.5),
		"flag":         BoolValue(true),
		"features":     ListValue([]string{"a", "b"}),
		"market_notes": Unknown(schema.TypeString),
	}

	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Fields
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	for name, v := range f {
		if !v.Equal(back[name], true) {
			t.Errorf("field %s changed over round trip: %+v vs %+v", name, v, back[name])
		}
	}
}
