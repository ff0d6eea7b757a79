package reconciler

import (
	"github.com/agentstation/eolsync/pkg/constants"
	"github.com/agentstation/eolsync/pkg/errors"
	"github.com/agentstation/eolsync/pkg/port"
)

// StateMap maps a framework identifier to its lifecycle state.
type StateMap map[string]string

// BuildStateMap indexes frameworks by identifier. Every framework must carry
// an identifier and a string state property; the first one that does not
// yields a SchemaError. A repeated identifier keeps the last state seen.
func BuildStateMap(frameworks []port.Entity, stateProperty string) (StateMap, error) {
	states := make(StateMap, len(frameworks))
	for i := range frameworks {
		fw := &frameworks[i]
		if fw.Identifier == "" {
			return nil, errors.NewSchemaError(fw.Blueprint, "", "identifier", "framework has no identifier")
		}
		state, ok := fw.StringProperty(stateProperty)
		if !ok {
			return nil, errors.NewSchemaError(fw.Blueprint, fw.Identifier, "properties."+stateProperty, "framework has no string state")
		}
		states[fw.Identifier] = state
	}
	return states, nil
}

// IsEOL reports whether the framework is known and end-of-life.
func (m StateMap) IsEOL(id string) bool {
	return m[id] == constants.EOLState
}

// CountEOL returns how many of ids map to the exact state "EOL".
// Unknown ids count zero and repeated ids count once per occurrence.
func CountEOL(ids []string, states StateMap) int {
	n := 0
	for _, id := range ids {
		if states.IsEOL(id) {
			n++
		}
	}
	return n
}
