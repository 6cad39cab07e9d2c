package render

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"temp-access-vendor/internal/policy/domain"
)

func findTemplate(t *testing.T, tier string) domain.Template {
	t.Helper()
	for _, tmpl := range domain.Builtins() {
		if tmpl.Tier == tier {
			return tmpl
		}
	}
	t.Fatalf("no builtin template for %s", tier)
	return domain.Template{}
}

func readOnlyVars() map[string]string {
	return map[string]string{
		"projectId":      "proj-1",
		"userId":         "alice",
		"sessionId":      "sess-1",
		"resourcePrefix": "tav",
	}
}

var readOnlyBoundary = []string{"s3:GetObject", "s3:ListBucket", "ec2:Describe*", "iam:Get*", "iam:List*"}

func TestRender_ReadOnlyBuiltin(t *testing.T) {
	r := NewRenderer(0)
	res, err := r.Render(findTemplate(t, "read-only"), readOnlyVars(), readOnlyBoundary)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(res.DroppedActions) != 0 {
		t.Errorf("DroppedActions = %v, want none", res.DroppedActions)
	}
	if !bytes.Contains(res.Policy, []byte("arn:aws:s3:::proj-1-*")) {
		t.Errorf("policy missing substituted resource: %s", res.Policy)
	}
	if bytes.Contains(res.Policy, []byte("${")) {
		t.Errorf("policy has leftover placeholder: %s", res.Policy)
	}
}

func TestRender_ByteIdentical(t *testing.T) {
	r := NewRenderer(0)
	tmpl := findTemplate(t, "developer")
	boundary := []string{"s3:*", "ec2:*", "lambda:*", "iam:Get*", "iam:List*", "iam:PassRole"}
	first, err := r.Render(tmpl, readOnlyVars(), boundary)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := r.Render(tmpl, readOnlyVars(), boundary)
		if err != nil {
			t.Fatalf("Render %d: %v", i, err)
		}
		if !bytes.Equal(first.Policy, again.Policy) {
			t.Fatalf("render %d differs:\n%s\n%s", i, first.Policy, again.Policy)
		}
	}
}

func TestRender_MissingVariable(t *testing.T) {
	r := NewRenderer(0)
	vars := readOnlyVars()
	delete(vars, "projectId")
	_, err := r.Render(findTemplate(t, "read-only"), vars, readOnlyBoundary)
	var re *Error
	if !errors.As(err, &re) || re.Code != CodeMissingVariable {
		t.Fatalf("error = %v, want CodeMissingVariable", err)
	}
	if !strings.Contains(re.Detail, "projectId") {
		t.Errorf("detail should name the placeholder: %s", re.Detail)
	}
}

func TestRender_InvalidDocument(t *testing.T) {
	r := NewRenderer(0)
	tmpl := domain.Template{Tier: "x", Body: `{"Version": "2012-10-17"`}
	_, err := r.Render(tmpl, nil, []string{"*"})
	var re *Error
	if !errors.As(err, &re) || re.Code != CodeInvalidDocument {
		t.Fatalf("error = %v, want CodeInvalidDocument", err)
	}
}

func TestRender_BoundaryIntersection(t *testing.T) {
	r := NewRenderer(0)
	tmpl := domain.Template{Tier: "x", Body: `{
  "Version": "2012-10-17",
  "Statement": [
    {"Effect": "Allow", "Action": ["s3:GetObject", "s3:PutObject", "ec2:TerminateInstances"], "Resource": "*"},
    {"Effect": "Deny", "Action": ["iam:*"], "Resource": "*"}
  ]
}`}
	boundary := []string{"s3:GetObject", "ec2:Describe*"}
	res, err := r.Render(tmpl, nil, boundary)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(res.DroppedActions) != 2 {
		t.Errorf("DroppedActions = %v, want s3:PutObject and ec2:TerminateInstances", res.DroppedActions)
	}
	if bytes.Contains(res.Policy, []byte("s3:PutObject")) {
		t.Errorf("dropped action still in policy: %s", res.Policy)
	}
	// Deny statements pass through untouched.
	if !bytes.Contains(res.Policy, []byte(`"Effect":"Deny"`)) || !bytes.Contains(res.Policy, []byte("iam:*")) {
		t.Errorf("deny statement altered: %s", res.Policy)
	}
}

func TestRender_EmptyPolicy(t *testing.T) {
	r := NewRenderer(0)
	tmpl := domain.Template{Tier: "x", Body: `{
  "Version": "2012-10-17",
  "Statement": [{"Effect": "Allow", "Action": ["ec2:TerminateInstances"], "Resource": "*"}]
}`}
	_, err := r.Render(tmpl, nil, []string{"s3:GetObject"})
	var re *Error
	if !errors.As(err, &re) || re.Code != CodeEmptyPolicy {
		t.Fatalf("error = %v, want CodeEmptyPolicy", err)
	}
}

func TestRender_SizeExceeded(t *testing.T) {
	r := NewRenderer(64)
	_, err := r.Render(findTemplate(t, "read-only"), readOnlyVars(), readOnlyBoundary)
	var re *Error
	if !errors.As(err, &re) || re.Code != CodeSizeExceeded {
		t.Fatalf("error = %v, want CodeSizeExceeded", err)
	}
}

func TestBoundaryCovers(t *testing.T) {
	cases := []struct {
		boundary []string
		action   string
		want     bool
	}{
		{[]string{"*"}, "anything:AtAll", true},
		{[]string{"s3:GetObject"}, "s3:GetObject", true},
		{[]string{"s3:GetObject"}, "s3:getobject", true},
		{[]string{"s3:GetObject"}, "s3:PutObject", false},
		{[]string{"ec2:Describe*"}, "ec2:DescribeInstances", true},
		{[]string{"ec2:Describe*"}, "ec2:TerminateInstances", false},
		// A requested wildcard needs a boundary wildcard at least as broad.
		{[]string{"s3:Get*"}, "s3:*", false},
		{[]string{"s3:*"}, "s3:*", true},
		{[]string{"s3:*"}, "s3:Get*", true},
		{[]string{"s3:GetObject"}, "s3:*", false},
	}
	for _, c := range cases {
		if got := boundaryCovers(c.boundary, c.action); got != c.want {
			t.Errorf("boundaryCovers(%v, %q) = %v, want %v", c.boundary, c.action, got, c.want)
		}
	}
}

// An Allow statement emptied by the boundary is removed while other
// statements keep the policy alive.
func TestRender_PartiallyEmptiedStatementDropped(t *testing.T) {
	r := NewRenderer(0)
	tmpl := domain.Template{Tier: "x", Body: `{
  "Version": "2012-10-17",
  "Statement": [
    {"Sid": "Kept", "Effect": "Allow", "Action": ["s3:GetObject"], "Resource": "*"},
    {"Sid": "Gone", "Effect": "Allow", "Action": ["ec2:TerminateInstances"], "Resource": "*"}
  ]
}`}
	res, err := r.Render(tmpl, nil, []string{"s3:GetObject"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if bytes.Contains(res.Policy, []byte("Gone")) {
		t.Errorf("emptied statement survived: %s", res.Policy)
	}
	if !bytes.Contains(res.Policy, []byte("Kept")) {
		t.Errorf("non-empty statement lost: %s", res.Policy)
	}
}
