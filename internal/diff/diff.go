// Package diff classifies a freshly extracted record against its prior
// snapshot into a field-level change set. The computation is pure and
// insensitive to field ordering; list attributes compare as unordered sets
// unless the schema declares their order significant.
package diff

import (
	"sort"

	"github.com/brightline/vantage/internal/identity"
	"github.com/brightline/vantage/internal/record"
	"github.com/brightline/vantage/internal/schema"
	"github.com/brightline/vantage/internal/snapshot"
)

// Kind classifies a change set.
type Kind string

const (
	KindNew       Kind = "new"
	KindUpdated   Kind = "updated"
	KindUnchanged Kind = "unchanged"
)

// ChangeSet is the result of comparing a new record with its prior snapshot.
type ChangeSet struct {
	Key  identity.Key `json:"identity_key"`
	Kind Kind         `json:"kind"`

	// Changed holds the differing attribute names, sorted. For KindNew it
	// lists every attribute that carries a known value.
	Changed []string `json:"changed_fields,omitempty"`
}

// Compute diffs a canonical record against the prior snapshot. A nil prior
// yields KindNew. Attributes are compared by value equality under the
// schema's declared list semantics; any difference yields KindUpdated with
// exactly the differing attribute names.
func Compute(rec *record.Record, prior *snapshot.Snapshot, s *schema.Schema) ChangeSet {
	if prior == nil {
		return ChangeSet{
			Key:     rec.Key,
			Kind:    KindNew,
			Changed: knownAttributes(rec.Fields, s),
		}
	}

	var changed []string
	for _, attr := range s.Attributes() {
		newVal, ok := rec.Fields[attr.Name]
		if !ok {
			newVal = record.Unknown(attr.Type)
		}
		oldVal, ok := prior.Fields[attr.Name]
		if !ok {
			// Attribute added to the schema since the snapshot was taken.
			oldVal = record.Unknown(attr.Type)
		}
		if !newVal.Equal(oldVal, attr.OrderSignificant) {
			changed = append(changed, attr.Name)
		}
	}

	if len(changed) == 0 {
		return ChangeSet{Key: rec.Key, Kind: KindUnchanged}
	}

	sort.Strings(changed)
	return ChangeSet{Key: rec.Key, Kind: KindUpdated, Changed: changed}
}

// knownAttributes returns the sorted names of attributes with a known value.
func knownAttributes(fields record.Fields, s *schema.Schema) []string {
	var names []string
	for _, attr := range s.Attributes() {
		if v, ok := fields[attr.Name]; ok && v.Known {
			names = append(names, attr.Name)
		}
	}
	sort.Strings(names)
	return names
}
