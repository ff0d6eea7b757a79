package port

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/agentstation/eolsync/pkg/errors"
)

// Entity is one record of a blueprint in the catalog.
// Relations are kept raw because a relation value is either a single
// identifier or a list of them depending on the relation's cardinality.
type Entity struct {
	Identifier string                     `json:"identifier"`
	Title      string                     `json:"title,omitempty"`
	Blueprint  string                     `json:"blueprint,omitempty"`
	Team       json.RawMessage            `json:"team,omitempty"`
	Properties map[string]any             `json:"properties,omitempty"`
	Relations  map[string]json.RawMessage `json:"relations,omitempty"`
}

// StringProperty returns the named property when it is a string.
func (e *Entity) StringProperty(name string) (string, bool) {
	v, ok := e.Properties[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// RelationIDs returns the identifiers referenced by the named relation,
// in catalog order with duplicates preserved. An absent or null relation
// yields no identifiers. Any value other than a string or an array of
// strings is a SchemaError.
func (e *Entity) RelationIDs(name string) ([]string, error) {
	raw, ok := e.Relations[name]
	if !ok {
		return nil, nil
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	switch raw[0] {
	case '"':
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return nil, e.relationError(name, err)
		}
		if id == "" {
			return nil, nil
		}
		return []string{id}, nil
	case '[':
		var ids []*string
		if err := json.Unmarshal(raw, &ids); err != nil {
			return nil, e.relationError(name, err)
		}
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			if id != nil {
				out = append(out, *id)
			}
		}
		return out, nil
	default:
		return nil, e.relationError(name, fmt.Errorf("expected string or array of strings, got %s", raw))
	}
}

func (e *Entity) relationError(name string, err error) error {
	return &errors.SchemaError{
		Blueprint: e.Blueprint,
		Entity:    e.Identifier,
		Field:     "relations." + name,
		Message:   err.Error(),
		Err:       err,
	}
}
