package buildutil

import (
	"slices"

	"github.com/bazelbuild/buildtools/build"
)

// DefaultCondition is the fallback key of a select.
const DefaultCondition = "//conditions:default"

// Str returns a string literal.
func Str(s string) *build.StringExpr {
	return &build.StringExpr{Value: s}
}

// StrList returns a list of string literals. Lists with more than one
// element are formatted one per line.
func StrList(items []string) *build.ListExpr {
	list := &build.ListExpr{List: make([]build.Expr, len(items)), ForceMultiLine: len(items) > 1}
	for i, s := range items {
		list.List[i] = Str(s)
	}
	return list
}

// Arg returns a keyword argument name = value.
func Arg(name string, value build.Expr) *build.AssignExpr {
	return &build.AssignExpr{LHS: &build.Ident{Name: name}, Op: "=", RHS: value}
}

// Call returns a call expression with keyword arguments, one per line.
func Call(fn string, args ...build.Expr) *build.CallExpr {
	return &build.CallExpr{X: &build.Ident{Name: fn}, List: args, ForceMultiLine: len(args) > 0}
}

// Dict returns a dict literal with string keys in the order given.
func Dict(keys []string, values map[string]build.Expr) *build.DictExpr {
	d := &build.DictExpr{ForceMultiLine: true}
	for _, k := range keys {
		d.List = append(d.List, &build.KeyValueExpr{Key: Str(k), Value: values[k]})
	}
	return d
}

// StrDict returns a dict literal of string keys and values in key order.
func StrDict(keys []string, values map[string]string) *build.DictExpr {
	exprs := make(map[string]build.Expr, len(values))
	for k, v := range values {
		exprs[k] = Str(v)
	}
	return Dict(keys, exprs)
}

// Select returns select({...}) over the given conditions. The default
// condition, when present, is emitted last.
func Select(keys []string, values map[string]build.Expr) *build.CallExpr {
	keys = slices.Clone(keys)
	if i := slices.Index(keys, DefaultCondition); i >= 0 {
		keys = append(slices.Delete(keys, i, i+1), DefaultCondition)
	}
	return &build.CallExpr{X: &build.Ident{Name: "select"}, List: []build.Expr{Dict(keys, values)}}
}

// Load returns load(module, symbols...).
func Load(module string, symbols ...string) *build.LoadStmt {
	stmt := &build.LoadStmt{Module: Str(module)}
	for _, s := range symbols {
		stmt.From = append(stmt.From, &build.Ident{Name: s})
		stmt.To = append(stmt.To, &build.Ident{Name: s})
	}
	return stmt
}

// Format renders statements as a formatted BUILD file.
func Format(path string, stmts ...build.Expr) []byte {
	return build.Format(&build.File{Path: path, Type: build.TypeBuild, Stmt: stmts})
}
