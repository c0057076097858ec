package buildutil

import (
	"strings"
	"testing"

	"github.com/bazelbuild/buildtools/build"
	"github.com/google/go-cmp/cmp"
)

func parseCall(t *testing.T, content string) *build.CallExpr {
	t.Helper()
	f, err := build.ParseBuild("BUILD", []byte(content))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(f.Stmt) == 0 {
		t.Fatal("no statements parsed")
	}
	call, ok := f.Stmt[0].(*build.CallExpr)
	if !ok {
		t.Fatalf("expected CallExpr, got %T", f.Stmt[0])
	}
	return call
}

func TestString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		attrName string
		want     string
	}{
		{
			name:     "named string attribute",
			input:    `foo(name = "bar")`,
			attrName: "name",
			want:     "bar",
		},
		{
			name:     "missing attribute",
			input:    `foo(other = "value")`,
			attrName: "name",
			want:     "",
		},
		{
			name:     "non-string attribute",
			input:    `foo(name = 123)`,
			attrName: "name",
			want:     "",
		},
		{
			name:     "first positional when name empty",
			input:    `foo("positional")`,
			attrName: "",
			want:     "positional",
		},
		{
			name:     "multiple attributes",
			input:    `foo(a = "first", b = "second", c = "third")`,
			attrName: "b",
			want:     "second",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call := parseCall(t, tt.input)
			if got := String(call, tt.attrName); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStringList(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"list", `core_import_library(libs = ["a.dll", "b.dll"])`, []string{"a.dll", "b.dll"}},
		{"empty list", `core_import_library(libs = [])`, []string{}},
		{"mixed", `core_import_library(libs = ["a.dll", 1])`, []string{"a.dll"}},
		{"select", `core_import_library(libs = select({}))`, nil},
		{"missing", `core_import_library()`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StringList(parseCall(t, tt.input), "libs")
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("StringList() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtractValue(t *testing.T) {
	call := parseCall(t, `rule(
    flag = True,
    none = None,
    deps = ["//a", "//b"],
    values = {"compilation_mode": "dbg"},
    libs = select({"//:frameworks-net6.0": ["x.dll"], "//conditions:default": []}),
)`)
	tests := []struct {
		attr string
		want any
	}{
		{"flag", true},
		{"none", nil},
		{"deps", []any{"//a", "//b"}},
		{"values", map[string]any{"compilation_mode": "dbg"}},
		{"libs", map[string]any{"select": map[string]any{
			"//:frameworks-net6.0": []any{"x.dll"},
			DefaultCondition:       []any{},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.attr, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ExtractValue(Attr(call, tt.attr))); diff != "" {
				t.Errorf("ExtractValue(%s) mismatch (-want +got):\n%s", tt.attr, diff)
			}
		})
	}
}

func TestFuncName(t *testing.T) {
	if got := FuncName(parseCall(t, `filegroup(name = "x")`)); got != "filegroup" {
		t.Errorf("FuncName() = %q", got)
	}
	if got := FuncName(parseCall(t, `native.filegroup(name = "x")`)); got != "" {
		t.Errorf("FuncName(method call) = %q, want empty", got)
	}
}

func TestFindRule(t *testing.T) {
	f, err := build.ParseBuild("BUILD", []byte(`
filegroup(name = "content_files")
alias(name = "a", actual = "b")
alias(name = "c", actual = "d")
`))
	if err != nil {
		t.Fatal(err)
	}
	if r := FindRule(f, "alias", "c"); r == nil || String(r, "actual") != "d" {
		t.Errorf("FindRule(alias, c) = %v", r)
	}
	if r := FindRule(f, "alias", ""); r == nil || String(r, "name") != "a" {
		t.Errorf("FindRule(alias, any) = %v", r)
	}
	if r := FindRule(f, "config_setting", ""); r != nil {
		t.Errorf("FindRule(missing) = %v", r)
	}
}

func TestFormatRoundTrip(t *testing.T) {
	out := Format("BUILD",
		Load("@bazel_skylib//rules:common_settings.bzl", "string_flag"),
		Call("filegroup",
			Arg("name", Str("files")),
			Arg("srcs", StrList([]string{"b.txt", "a.txt"})),
			Arg("data", Select([]string{DefaultCondition, ":dbg"}, map[string]build.Expr{
				DefaultCondition: StrList(nil),
				":dbg":           StrList([]string{"x"}),
			})),
		),
	)
	text := string(out)
	if !strings.HasPrefix(text, `load("@bazel_skylib//rules:common_settings.bzl", "string_flag")`) {
		t.Errorf("missing load statement:\n%s", text)
	}
	if strings.Index(text, `":dbg"`) > strings.Index(text, DefaultCondition) {
		t.Errorf("default condition not last:\n%s", text)
	}

	f, err := build.ParseBuild("BUILD", out)
	if err != nil {
		t.Fatalf("formatted output does not parse: %v\n%s", err, text)
	}
	fg := FindRule(f, "filegroup", "files")
	if fg == nil {
		t.Fatalf("filegroup not found:\n%s", text)
	}
	// Order is preserved: the renderer sorts where it needs to.
	if diff := cmp.Diff([]string{"b.txt", "a.txt"}, StringList(fg, "srcs")); diff != "" {
		t.Errorf("srcs mismatch (-want +got):\n%s", diff)
	}
}
