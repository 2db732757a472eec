package sink

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/Chichichkin/docsink/internal/expiration"
	"github.com/Chichichkin/docsink/internal/logging"
	"github.com/Chichichkin/docsink/internal/logging/simplify"
)

// Expressions see a record as:
//
//	level          int     Verbose=0 .. Fatal=5
//	level_name     string  "Information", "Error", ...
//	template       string  the message template
//	properties     map     simplified property values
//	has_exception  bool
func newExprEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("level", cel.IntType),
		cel.Variable("level_name", cel.StringType),
		cel.Variable("template", cel.StringType),
		cel.Variable("properties", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("has_exception", cel.BoolType),
	)
}

func compileExpr(expr string, outputs ...*cel.Type) (cel.Program, error) {
	env, err := newExprEnv()
	if err != nil {
		return nil, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return nil, iss2.Err()
	}
	if len(outputs) > 0 {
		ok := false
		for _, t := range outputs {
			if checked.OutputType().IsExactType(t) {
				ok = true
				break
			}
		}
		if !ok {
			return nil, fmt.Errorf("expression yields %v", checked.OutputType())
		}
	}
	return env.Program(checked)
}

func activation(rec *logging.LogRecord) map[string]any {
	return map[string]any{
		"level":         int64(rec.Level),
		"level_name":    rec.Level.String(),
		"template":      rec.MessageTemplate,
		"properties":    simplify.Properties(rec.Properties),
		"has_exception": rec.Exception != nil,
	}
}

// recordFilter keeps records for which a boolean CEL expression holds.
type recordFilter struct {
	prog cel.Program
}

func newRecordFilter(expr string) (*recordFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	prog, err := compileExpr(expr, cel.BoolType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilterExpression, err)
	}
	return &recordFilter{prog: prog}, nil
}

// Allow evaluates the filter. Evaluation errors reject the record.
func (f *recordFilter) Allow(rec *logging.LogRecord) (bool, error) {
	if f == nil {
		return true, nil
	}
	out, _, err := f.prog.Eval(activation(rec))
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	return ok && b, nil
}

// expirationFromExpr compiles expr into an expiration callback. Evaluation
// errors are reported to logger and the record does not expire.
func expirationFromExpr(expr string, logger *slog.Logger) (func(*logging.LogRecord) time.Duration, error) {
	prog, err := compileExpr(expr, cel.DurationType, cel.StringType, cel.DynType)
	if err != nil {
		return nil, fmt.Errorf("sink: invalid expiration expression: %w", err)
	}

	return func(rec *logging.LogRecord) time.Duration {
		out, _, err := prog.Eval(activation(rec))
		if err != nil {
			logger.Error("expiration expression failed", "error", err)
			return expiration.Never
		}
		switch v := out.Value().(type) {
		case time.Duration:
			if v > 0 {
				return v
			}
			return expiration.Never
		case string:
			d, err := expiration.ParseExpiration(v)
			if err == nil && d != 0 {
				return d
			}
		}
		logger.Error("expiration expression yielded an unusable value", "value", out.Value())
		return expiration.Never
	}, nil
}
