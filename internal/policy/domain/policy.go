// Package domain defines policy documents and the versioned templates they
// are rendered from.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// StringList is a JSON field that accepts either a single string or an array
// of strings on the wire, and always marshals as an array.
type StringList []string

func (l *StringList) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*l = StringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return errors.New("expected string or array of strings")
	}
	*l = StringList(many)
	return nil
}

func (l StringList) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string(l))
}

// Statement is one policy statement. Effect and Action are required.
type Statement struct {
	Sid       string          `json:"Sid,omitempty"`
	Effect    string          `json:"Effect"`
	Action    StringList      `json:"Action"`
	Resource  StringList      `json:"Resource,omitempty"`
	Condition json.RawMessage `json:"Condition,omitempty"`
}

// Document is a typed policy document.
type Document struct {
	Version   string      `json:"Version"`
	Statement []Statement `json:"Statement"`
}

// ParseDocument decodes and validates a policy document. A document needs a
// Version, at least one statement, and every statement needs an Allow/Deny
// effect and at least one action.
func ParseDocument(raw []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}
	if d.Version == "" {
		return nil, errors.New("policy: missing Version")
	}
	if len(d.Statement) == 0 {
		return nil, errors.New("policy: empty Statement list")
	}
	for i, st := range d.Statement {
		if st.Effect != "Allow" && st.Effect != "Deny" {
			return nil, fmt.Errorf("policy: statement %d: bad Effect %q", i, st.Effect)
		}
		if len(st.Action) == 0 {
			return nil, fmt.Errorf("policy: statement %d: no Action", i)
		}
	}
	return &d, nil
}

// Encode produces the compact wire form. Field order follows the struct, so
// encoding the same document always yields identical bytes.
func (d *Document) Encode() ([]byte, error) {
	return json.Marshal(d)
}
