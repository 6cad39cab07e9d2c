// Package render turns a policy template into a final policy document:
// literal ${var} substitution, document validation, permission-boundary
// intersection, and a size ceiling. Rendering is deterministic and performs
// no I/O; callers decide what to do with dropped actions.
package render

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"temp-access-vendor/internal/policy/domain"
)

// Code classifies a render failure. Render errors are template or
// configuration defects and are never auto-retried.
type Code string

const (
	CodeMissingVariable Code = "missing_variable"
	CodeInvalidDocument Code = "invalid_document"
	CodeEmptyPolicy     Code = "empty_policy"
	CodeSizeExceeded    Code = "size_exceeded"
)

// Error is a render failure with a stable code.
type Error struct {
	Code   Code
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("render: %s: %s", e.Code, e.Detail)
}

// Result is a successful render. DroppedActions lists requested actions that
// fell outside the tier boundary and were removed; the boundary only ever
// narrows a policy, never widens it.
type Result struct {
	Policy         []byte
	DroppedActions []string
}

// DefaultMaxPolicyBytes matches the issuer-side document limit.
const DefaultMaxPolicyBytes = 10240

var placeholderRe = regexp.MustCompile(`\$\{([^}]+)\}`)

// Renderer renders templates under a configured size ceiling.
type Renderer struct {
	maxPolicyBytes int
}

// NewRenderer returns a Renderer. maxPolicyBytes <= 0 selects the default.
func NewRenderer(maxPolicyBytes int) *Renderer {
	if maxPolicyBytes <= 0 {
		maxPolicyBytes = DefaultMaxPolicyBytes
	}
	return &Renderer{maxPolicyBytes: maxPolicyBytes}
}

// Render substitutes vars into tmpl, validates the document, intersects each
// Allow statement with the boundary patterns, and encodes the compact result.
// Identical inputs yield byte-identical output.
func (r *Renderer) Render(tmpl domain.Template, vars map[string]string, boundary []string) (*Result, error) {
	body := tmpl.Body
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names) // map order must not influence the output bytes
	for _, name := range names {
		body = strings.ReplaceAll(body, "${"+name+"}", vars[name])
	}

	if m := placeholderRe.FindStringSubmatch(body); m != nil {
		return nil, &Error{Code: CodeMissingVariable, Detail: fmt.Sprintf("template %s: no value for %q", tmpl.Tier, m[1])}
	}

	doc, err := domain.ParseDocument([]byte(body))
	if err != nil {
		return nil, &Error{Code: CodeInvalidDocument, Detail: err.Error()}
	}

	var dropped []string
	kept := make([]domain.Statement, 0, len(doc.Statement))
	allowKept := 0
	for _, st := range doc.Statement {
		if st.Effect != "Allow" {
			kept = append(kept, st)
			continue
		}
		var actions domain.StringList
		for _, a := range st.Action {
			if boundaryCovers(boundary, a) {
				actions = append(actions, a)
			} else {
				dropped = append(dropped, a)
			}
		}
		if len(actions) == 0 {
			continue
		}
		st.Action = actions
		kept = append(kept, st)
		allowKept++
	}
	if allowKept == 0 {
		return nil, &Error{Code: CodeEmptyPolicy, Detail: fmt.Sprintf("template %s: no requested action inside the tier boundary", tmpl.Tier)}
	}
	doc.Statement = kept

	encoded, err := doc.Encode()
	if err != nil {
		return nil, &Error{Code: CodeInvalidDocument, Detail: err.Error()}
	}
	if len(encoded) > r.maxPolicyBytes {
		return nil, &Error{Code: CodeSizeExceeded, Detail: fmt.Sprintf("policy is %d bytes, limit %d", len(encoded), r.maxPolicyBytes)}
	}

	return &Result{Policy: encoded, DroppedActions: dropped}, nil
}

// boundaryCovers reports whether any boundary pattern covers the action.
// Patterns are "*", an exact action, or a case-insensitive "prefix*". A
// requested wildcard survives only under a boundary wildcard at least as
// broad; narrowing it to boundary members would synthesize actions the
// template never named.
func boundaryCovers(boundary []string, action string) bool {
	a := strings.ToLower(action)
	for _, pattern := range boundary {
		if pattern == "*" {
			return true
		}
		p := strings.ToLower(pattern)
		if !strings.HasSuffix(p, "*") {
			if a == p {
				return true
			}
			continue
		}
		prefix := strings.TrimSuffix(p, "*")
		if strings.HasSuffix(a, "*") {
			if strings.HasPrefix(strings.TrimSuffix(a, "*"), prefix) {
				return true
			}
			continue
		}
		if strings.HasPrefix(a, prefix) {
			return true
		}
	}
	return false
}
