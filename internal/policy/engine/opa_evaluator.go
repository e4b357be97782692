package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

// Query is the Rego rule evaluated for every idle session.
const Query = "data.lms.session_timeout.ignore_timeout"

// DefaultPolicy never keeps an expired session. Deployments override it with AUTH_TIMEOUT_POLICY_FILE.
const DefaultPolicy = `package lms.session_timeout

default ignore_timeout := false
`

// OPAEvaluator evaluates the session timeout policy using OPA Rego.
// The module is compiled once on construction; each call only evaluates.
type OPAEvaluator struct {
	source string
	query  rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles the given Rego module. An empty module selects DefaultPolicy.
func NewOPAEvaluator(ctx context.Context, module string) (*OPAEvaluator, error) {
	if module == "" {
		module = DefaultPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"session_timeout.rego": module})
	if err != nil {
		return nil, fmt.Errorf("compile timeout policy: %w", err)
	}
	pq, err := rego.New(
		rego.Query(Query),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare timeout policy: %w", err)
	}
	return &OPAEvaluator{source: module, query: pq}, nil
}

// NewOPAEvaluatorFromFile reads a Rego module from path. An empty path selects DefaultPolicy.
func NewOPAEvaluatorFromFile(ctx context.Context, path string) (*OPAEvaluator, error) {
	if path == "" {
		return NewOPAEvaluator(ctx, "")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read timeout policy: %w", err)
	}
	return NewOPAEvaluator(ctx, string(b))
}

// HealthCheck verifies that the loaded policy still evaluates against a minimal input.
// Does not touch any storage. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	rs, err := e.query.Eval(ctx, rego.EvalInput(buildInput(TimeoutInput{})))
	if err != nil {
		return fmt.Errorf("eval timeout policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fmt.Errorf("policy query returned no result")
	}
	return nil
}

// IgnoreTimeout evaluates the policy for one session. An undefined or non-boolean result means false.
func (e *OPAEvaluator) IgnoreTimeout(ctx context.Context, in TimeoutInput) (bool, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(buildInput(in)))
	if err != nil {
		return false, fmt.Errorf("eval timeout policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	v, _ := rs[0].Expressions[0].Value.(bool)
	return v, nil
}

func buildInput(in TimeoutInput) map[string]interface{} {
	user := map[string]interface{}{
		"id":        int64(0),
		"username":  "",
		"auth":      "",
		"suspended": false,
	}
	if in.User != nil {
		user["id"] = in.User.ID
		user["username"] = in.User.Username
		user["auth"] = in.User.Auth
		user["suspended"] = in.User.Suspended
	}
	return map[string]interface{}{
		"user": user,
		"session": map[string]interface{}{
			"sid":          in.SID,
			"timecreated":  in.TimeCreated,
			"timemodified": in.TimeModified,
			"idle":         in.Now - in.TimeModified,
		},
		"now": in.Now,
	}
}
