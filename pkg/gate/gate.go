// Package gate implements the restricted `when` expression grammar:
// and/or/not, the six comparison operators, boolean and numeric
// literals, and attribute access rooted at jobs/job/env. Anything else —
// function calls, arithmetic, containment, indexing, string literals —
// is rejected at validation time, before any job runs.
//
// Compilation and caching follow the teacher's expression evaluator
// (pkg/workflow/expression/evaluator.go): a Gate caches compiled
// programs by source string behind a RWMutex so a `when` string is
// parsed once regardless of how many times its job is gated across
// resume attempts. The teacher's evaluator accepts the full expr-lang
// grammar; this package adds the AST whitelist the teacher's own
// evaluator does not have.
package gate

import (
	"fmt"
	"sync"

	aferrors "github.com/aetherflow/aetherflow/pkg/errors"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
)

var allowedRoots = map[string]bool{
	"jobs": true,
	"job":  true,
	"env":  true,
}

var allowedBinaryOps = map[string]bool{
	"and": true, "&&": true,
	"or": true, "||": true,
	"==": true, "!=": true,
	"<": true, "<=": true, ">": true, ">=": true,
}

// Validate parses expression and rejects any construct outside the
// restricted grammar. It does not evaluate the expression and requires
// no variable root.
func Validate(expression string) error {
	tree, err := parser.Parse(expression)
	if err != nil {
		return &aferrors.SpecError{Path: "when", Message: fmt.Sprintf("parsing when expression %q: %v", expression, err)}
	}
	v := &whitelistVisitor{strings: map[*ast.StringNode]bool{}, props: map[*ast.StringNode]bool{}}
	ast.Walk(&tree.Node, v)
	for s := range v.strings {
		if v.err == nil && !v.props[s] {
			v.err = rejectf("string literal %q", s.Value)
		}
	}
	return v.err
}

// whitelistVisitor records every string node it sees and every string
// node that is a member access's property name (`a.b` parses to a
// MemberNode whose Property is the string "b"); a string node that is
// not a property name is a string literal.
type whitelistVisitor struct {
	err     error
	strings map[*ast.StringNode]bool
	props   map[*ast.StringNode]bool
}

func (v *whitelistVisitor) Visit(node *ast.Node) {
	if v.err != nil || node == nil {
		return
	}
	switch n := (*node).(type) {
	case *ast.BinaryNode:
		if !allowedBinaryOps[n.Operator] {
			v.err = rejectf("arithmetic or comparison operator %q", n.Operator)
		}
	case *ast.UnaryNode:
		if n.Operator != "not" && n.Operator != "!" {
			v.err = rejectf("unary operator %q", n.Operator)
		}
	case *ast.BoolNode:
	case *ast.IntegerNode:
	case *ast.FloatNode:
	case *ast.StringNode:
		v.strings[n] = true
	case *ast.MemberNode:
		if prop, ok := n.Property.(*ast.StringNode); ok {
			v.props[prop] = true
		} else {
			v.err = rejectf("indexing")
		}
	case *ast.IdentifierNode:
		if !allowedRoots[n.Value] {
			v.err = rejectf("identifier root %q (only jobs, job, env are allowed)", n.Value)
		}
	default:
		v.err = rejectf("construct %T", n)
	}
}

func rejectf(format string, args ...interface{}) error {
	return &aferrors.SpecError{Path: "when", Message: "disallowed when expression " + fmt.Sprintf(format, args...)}
}

// Gate compiles and caches `when` expressions for repeated evaluation
// across jobs and resume attempts.
type Gate struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// New returns an empty Gate.
func New() *Gate {
	return &Gate{cache: make(map[string]*vm.Program)}
}

// Eval evaluates expression against env (typically {"jobs": ..., "job":
// ..., "env": ...}), validating the grammar on first use of that
// expression string.
func (g *Gate) Eval(expression string, env map[string]interface{}) (bool, error) {
	program, err := g.compile(expression, env)
	if err != nil {
		return false, err
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, &aferrors.SpecError{Path: "when", Message: fmt.Sprintf("evaluating when expression %q: %v", expression, err)}
	}
	b, ok := out.(bool)
	if !ok {
		return false, &aferrors.SpecError{Path: "when", Message: fmt.Sprintf("when expression %q did not evaluate to a boolean", expression)}
	}
	return b, nil
}

func (g *Gate) compile(expression string, env map[string]interface{}) (*vm.Program, error) {
	g.mu.RLock()
	if program, ok := g.cache[expression]; ok {
		g.mu.RUnlock()
		return program, nil
	}
	g.mu.RUnlock()

	if err := Validate(expression); err != nil {
		return nil, err
	}

	program, err := expr.Compile(expression, expr.Env(env), expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return nil, &aferrors.SpecError{Path: "when", Message: fmt.Sprintf("compiling when expression %q: %v", expression, err)}
	}

	g.mu.Lock()
	g.cache[expression] = program
	g.mu.Unlock()
	return program, nil
}

// CacheSize reports the number of distinct expressions currently cached.
func (g *Gate) CacheSize() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.cache)
}
