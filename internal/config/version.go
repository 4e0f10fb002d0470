package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

// ResolveVersion resolves the configured version of a bundle. A version that
// parses as a single Rego expression is evaluated with the given input; plain
// literals and anything else are returned with environment variables
// expanded.
func ResolveVersion(ctx context.Context, version string, input map[string]any) (string, error) {
	if version == "" {
		return "", nil
	}

	if query, ok := looksLikeRego(version); ok {
		result, err := evaluateRego(ctx, query, input)
		var compileErr ast.Errors
		switch {
		case errors.As(err, &compileErr):
			// Parsed but does not compile, e.g. "build-$N" with unsafe vars.
		case err != nil:
			return "", fmt.Errorf("version evaluation failed: %w", err)
		default:
			return result, nil
		}
	}

	return os.ExpandEnv(version), nil
}

// looksLikeRego reports whether s is a single Rego expression that is not a
// bare scalar. "1.0" stays "1.0" instead of being evaluated to 1.
func looksLikeRego(s string) (ast.Body, bool) {
	body, err := ast.ParseBody(s)
	if err != nil || len(body) != 1 {
		return nil, false
	}
	if term, ok := body[0].Terms.(*ast.Term); ok {
		switch term.Value.(type) {
		case ast.Number, ast.String, ast.Boolean, ast.Null, ast.Var:
			return nil, false
		}
	}
	return body, true
}

func evaluateRego(ctx context.Context, query ast.Body, input map[string]any) (string, error) {
	opts := []func(*rego.Rego){
		rego.ParsedQuery(query),
	}

	if input != nil {
		opts = append(opts, rego.Input(input))
	}

	rs, err := rego.New(opts...).Eval(ctx)
	if err != nil {
		return "", err
	}

	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return "", errors.New("expression is undefined")
	}

	return formatValue(rs[0].Expressions[0].Value), nil
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case ast.Number:
		if i, ok := val.Int(); ok {
			return strconv.Itoa(i)
		}
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
