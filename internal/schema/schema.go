// Package schema defines the fixed attribute schema that every canonical
// competitor record must satisfy. The schema is loaded from YAML once at
// startup and is read-only afterwards.
package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Type identifies the declared value type of an attribute.
type Type string

const (
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
	TypeList    Type = "list"
)

// validTypes is the closed set of attribute types the normalizer can coerce.
var validTypes = map[Type]bool{
	TypeString:  true,
	TypeNumber:  true,
	TypeBoolean: true,
	TypeList:    true,
}

// Attribute describes one named field of a competitor record.
type Attribute struct {
	Name     string `yaml:"name"`
	Type     Type   `yaml:"type"`
	Required bool   `yaml:"required"`

	// Default is used when a required attribute is absent from an
	// extraction. It is declared as the raw YAML value and coerced with the
	// same rules applied to extracted values.
	Default any `yaml:"default"`

	// HasDefault distinguishes "no default declared" from a declared zero
	// value. Set during parsing; not read from YAML directly.
	HasDefault bool `yaml:"-"`

	// OrderSignificant marks a list attribute whose element order carries
	// meaning. Order-significant lists are compared element-wise; all other
	// lists are compared as unordered sets.
	OrderSignificant bool `yaml:"order_significant"`
}

// Schema is the ordered set of attributes for a deployment.
type Schema struct {
	attrs  []Attribute
	byName map[string]int
}

// yamlSchema mirrors the on-disk document.
type yamlSchema struct {
	Attributes []yamlAttribute `yaml:"attributes"`
}

// yamlAttribute carries Default as a yaml.Node so a declared null or zero
// default is distinguishable from an omitted one.
type yamlAttribute struct {
	Name             string    `yaml:"name"`
	Type             Type      `yaml:"type"`
	Required         bool      `yaml:"required"`
	Default          yaml.Node `yaml:"default"`
	OrderSignificant bool      `yaml:"order_significant"`
}

// Load reads and parses a schema file.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema file: %w", err)
	}
	return Parse(data)
}

// Parse parses a YAML schema document and validates it.
func Parse(data []byte) (*Schema, error) {
	var doc yamlSchema
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}

	if len(doc.Attributes) == 0 {
		return nil, fmt.Errorf("schema declares no attributes")
	}

	s := &Schema{byName: make(map[string]int, len(doc.Attributes))}
	for _, ya := range doc.Attributes {
		attr := Attribute{
			Name:             ya.Name,
			Type:             ya.Type,
			Required:         ya.Required,
			OrderSignificant: ya.OrderSignificant,
		}
		if attr.Name == "" {
			return nil, fmt.Errorf("schema attribute with empty name")
		}
		if !validTypes[attr.Type] {
			return nil, fmt.Errorf("attribute %q: unknown type %q", attr.Name, attr.Type)
		}
		if attr.OrderSignificant && attr.Type != TypeList {
			return nil, fmt.Errorf("attribute %q: order_significant requires type list", attr.Name)
		}
		if _, dup := s.byName[attr.Name]; dup {
			return nil, fmt.Errorf("attribute %q declared twice", attr.Name)
		}
		if !ya.Default.IsZero() {
			var v any
			if err := ya.Default.Decode(&v); err != nil {
				return nil, fmt.Errorf("attribute %q: invalid default: %w", attr.Name, err)
			}
			attr.Default = v
			attr.HasDefault = true
		}
		s.byName[attr.Name] = len(s.attrs)
		s.attrs = append(s.attrs, attr)
	}

	return s, nil
}

// Attributes returns the attributes in declaration order.
func (s *Schema) Attributes() []Attribute {
	return s.attrs
}

// Lookup returns the attribute with the given name.
func (s *Schema) Lookup(name string) (Attribute, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Attribute{}, false
	}
	return s.attrs[i], true
}

// Len returns the number of declared attributes.
func (s *Schema) Len() int {
	return len(s.attrs)
}
