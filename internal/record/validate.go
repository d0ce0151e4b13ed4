package record

import (
	"fmt"
	"strings"
)

// AttributeError reports a single attribute that failed validation or
// coercion. The attribute name is always populated so callers can surface
// exactly which field was at fault.
type AttributeError struct {
	Attribute string `json:"attribute"`
	Message   string `json:"message"`
}

func (e *AttributeError) Error() string {
	return fmt.Sprintf("attribute %q: %s", e.Attribute, e.Message)
}

// ValidationError aggregates all attribute failures for one extraction.
// It is permanent: the same extraction will fail the same way on retry.
type ValidationError struct {
	Attributes []AttributeError
}

func (e *ValidationError) Error() string {
	if len(e.Attributes) == 1 {
		return e.Attributes[0].Error()
	}
	msgs := make([]string, len(e.Attributes))
	for i, a := range e.Attributes {
		msgs[i] = a.Error()
	}
	return fmt.Sprintf("%d invalid attributes: %s", len(e.Attributes), strings.Join(msgs, "; "))
}

// collector accumulates attribute errors without failing on the first,
// so a ValidationError names every offending attribute at once.
type collector struct {
	errors []AttributeError
}

func (c *collector) add(attribute, message string) {
	c.errors = append(c.errors, AttributeError{Attribute: attribute, Message: message})
}

func (c *collector) err() error {
	if len(c.errors) == 0 {
		return nil
	}
	return &ValidationError{Attributes: c.errors}
}
