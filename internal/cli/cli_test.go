package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/albertocavalcante/go-nugetbzl/internal/feedtest"
	"github.com/albertocavalcante/go-nugetbzl/lockfile"
)

// writeFeed writes a flat local feed with App -> Leaf and returns its directory.
func writeFeed(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	pkgs := []feedtest.Package{
		{
			ID: "App", Version: "1.0.0",
			Dependencies: map[string][]string{"netstandard2.0": {"Leaf 1.0.0"}},
			Files:        map[string]string{"lib/netstandard2.0/App.dll": feedtest.Assembly("App", "1.0.0.0")},
		},
		{
			ID: "Leaf", Version: "1.0.0",
			Files: map[string]string{"lib/netstandard2.0/Leaf.dll": feedtest.Assembly("Leaf", "1.0.0.0")},
		},
		{
			ID: "Leaf", Version: "2.0.0",
			Files: map[string]string{"lib/netstandard2.0/Leaf.dll": feedtest.Assembly("Leaf", "2.0.0.0")},
		},
	}
	for i := range pkgs {
		data, err := feedtest.Archive(&pkgs[i])
		if err != nil {
			t.Fatal(err)
		}
		name := strings.ToLower(pkgs[i].ID + "." + pkgs[i].Version + ".nupkg")
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func writeProps(t *testing.T, refs map[string]string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("<Project>\n  <ItemGroup>\n")
	for id, v := range refs {
		b.WriteString(`    <PackageReference Update="` + id + `" Version="` + v + `" />` + "\n")
	}
	b.WriteString("  </ItemGroup>\n</Project>\n")
	path := filepath.Join(t.TempDir(), "Packages.props")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// common returns the flags that point a command at the test feed. net48 has
// no targeting packs, so no pack downloads are needed.
func common(t *testing.T, feed, props string) []string {
	return []string{"-s", feed, "-p", props, "-t", "net48", "-r", "", "--packages-dir", t.TempDir()}
}

func TestRepositoryCommand(t *testing.T) {
	feed := writeFeed(t)
	props := writeProps(t, map[string]string{"App": "1.0.0"})
	out := t.TempDir()
	lock := filepath.Join(out, lockfile.FileName)

	args := append([]string{"repository", "-o", out, "--lock-file", lock}, common(t, feed, props)...)
	_, stderr, err := run(t, args...)
	if err != nil {
		t.Fatalf("repository: %v\n%s", err, stderr)
	}
	if !strings.Contains(stderr, "Generated 2 packages") {
		t.Errorf("missing summary in log:\n%s", stderr)
	}

	build, err := os.ReadFile(filepath.Join(out, "app", "BUILD"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(build), `"//leaf"`) {
		t.Errorf("app BUILD does not depend on leaf:\n%s", build)
	}
	if _, err := os.Stat(lock); err != nil {
		t.Errorf("lock file not written: %v", err)
	}

	// Locked mode accepts the lock file just written.
	args = append([]string{"repository", "-o", out, "--lock-file", lock, "--locked"}, common(t, feed, props)...)
	if _, stderr, err := run(t, args...); err != nil {
		t.Fatalf("locked repository: %v\n%s", err, stderr)
	}

	// A direct reference upgrades Leaf; the rewritten target is logged.
	props = writeProps(t, map[string]string{"App": "1.0.0", "Leaf": "2.0.0"})
	args = append([]string{"repository", "-o", out, "--lock-file", lock}, common(t, feed, props)...)
	_, stderr, err = run(t, args...)
	if err != nil {
		t.Fatalf("upgrade repository: %v\n%s", err, stderr)
	}
	if !strings.Contains(stderr, "Changed target") || !strings.Contains(stderr, "//leaf:leaf") {
		t.Errorf("missing target change in log:\n%s", stderr)
	}
}

func TestRepositoryCommandErrors(t *testing.T) {
	feed := writeFeed(t)

	t.Run("unknown package", func(t *testing.T) {
		props := writeProps(t, map[string]string{"Missing": "1.0.0"})
		args := append([]string{"repository", "-o", t.TempDir()}, common(t, feed, props)...)
		if _, _, err := run(t, args...); err == nil {
			t.Error("expected error for unknown package")
		}
	})

	t.Run("too many arguments", func(t *testing.T) {
		if _, _, err := run(t, "repository", "a", "b"); err == nil {
			t.Error("expected argument error")
		}
	})
}

func TestResolveCommand(t *testing.T) {
	feed := writeFeed(t)
	props := writeProps(t, map[string]string{"App": "1.0.0"})

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"text", nil, []string{"App@1.0.0", "Leaf@1.0.0"}},
		{"json", []string{"--format", "json"}, []string{`"key": "App@1.0.0"`}},
		{"dot", []string{"--format", "dot"}, []string{"digraph"}},
		{"yaml", []string{"--format", "yaml"}, []string{"Leaf"}},
		{"explain", []string{"--explain", "leaf"}, []string{"App@1.0.0"}},
		{"target", []string{"--target", "net48"}, []string{"Leaf@1.0.0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append(append([]string{"resolve"}, common(t, feed, props)...), tt.args...)
			stdout, stderr, err := run(t, args...)
			if err != nil {
				t.Fatalf("resolve: %v\n%s", err, stderr)
			}
			for _, w := range tt.want {
				if !strings.Contains(stdout, w) {
					t.Errorf("output missing %q:\n%s", w, stdout)
				}
			}
		})
	}

	t.Run("unknown target", func(t *testing.T) {
		args := append(append([]string{"resolve"}, common(t, feed, props)...), "--target", "net8.0")
		if _, _, err := run(t, args...); err == nil {
			t.Error("expected error for unknown target")
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		args := append(append([]string{"resolve"}, common(t, feed, props)...), "--format", "svg")
		if _, _, err := run(t, args...); err == nil {
			t.Error("expected error for unknown format")
		}
	})
}

func writeLock(t *testing.T, leaf string) string {
	t.Helper()
	lf := lockfile.New()
	lf.Targets["net48"] = map[string]lockfile.Dependency{
		"Leaf": {Type: lockfile.TypeDirect, Requested: "[1.0.0, )", Resolved: leaf},
	}
	path := filepath.Join(t.TempDir(), lockfile.FileName)
	if err := lf.WriteFile(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDiffCommand(t *testing.T) {
	oldLock, newLock := writeLock(t, "1.0.0"), writeLock(t, "2.0.0")

	stdout, _, err := run(t, "diff", oldLock, newLock)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "↑ Leaf 1.0.0 -> 2.0.0") {
		t.Errorf("diff output:\n%s", stdout)
	}

	stdout, _, err = run(t, "diff", oldLock, newLock, "--format", "json")
	if err != nil {
		t.Fatal(err)
	}
	var parsed struct {
		Upgraded []struct {
			ID string `json:"id"`
		} `json:"upgraded"`
	}
	if err := json.Unmarshal([]byte(stdout), &parsed); err != nil || len(parsed.Upgraded) != 1 {
		t.Errorf("json diff = %s (%v)", stdout, err)
	}

	if _, _, err := run(t, "diff", oldLock, newLock, "--exit-code"); !errors.Is(err, errDrift) {
		t.Errorf("--exit-code error = %v, want errDrift", err)
	}

	stdout, _, err = run(t, "diff", oldLock, oldLock, "--exit-code")
	if err != nil || !strings.Contains(stdout, "No changes") {
		t.Errorf("identical diff = %q, %v", stdout, err)
	}
}

func TestDiffCommandAgainstResolution(t *testing.T) {
	feed := writeFeed(t)
	props := writeProps(t, map[string]string{"Leaf": "1.0.0"})
	stale := writeLock(t, "2.0.0")

	args := append([]string{"diff", stale, "--exit-code"}, common(t, feed, props)...)
	stdout, _, err := run(t, args...)
	if !errors.Is(err, errDrift) {
		t.Fatalf("diff error = %v, want errDrift", err)
	}
	if !strings.Contains(stdout, "↓ Leaf 2.0.0 -> 1.0.0") {
		t.Errorf("diff output:\n%s", stdout)
	}
}

func TestProjectsCommand(t *testing.T) {
	root := t.TempDir()
	app := filepath.Join(root, "src", "App")
	if err := os.MkdirAll(app, 0o755); err != nil {
		t.Fatal(err)
	}
	csproj := `<Project><PropertyGroup><OutputType>Exe</OutputType></PropertyGroup>
<ItemGroup><PackageReference Include="Leaf" /></ItemGroup></Project>`
	if err := os.WriteFile(filepath.Join(app, "App.csproj"), []byte(csproj), 0o644); err != nil {
		t.Fatal(err)
	}

	_, stderr, err := run(t, "projects", "-p", root, "-w", "deps", "-e", ".exports", "--visibility", "src/**=//src:__subpackages__")
	if err != nil {
		t.Fatalf("projects: %v\n%s", err, stderr)
	}
	if !strings.Contains(stderr, "Generated 1 projects") {
		t.Errorf("missing summary in log:\n%s", stderr)
	}
	build, err := os.ReadFile(filepath.Join(app, "BUILD"))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"core_binary(", `"@deps//leaf"`, `"//src:__subpackages__"`} {
		if !strings.Contains(string(build), want) {
			t.Errorf("BUILD missing %s:\n%s", want, build)
		}
	}
	if exports, err := os.ReadFile(filepath.Join(root, ".exports")); err != nil || string(exports) != "App=//src/App:App\n" {
		t.Errorf("exports = %q, %v", exports, err)
	}

	t.Setenv(workspaceEnv, "")
	if _, _, err := run(t, "projects"); err == nil {
		t.Error("expected error without a workspace root")
	}
	if _, _, err := run(t, "projects", "-p", root, "--visibility", "nolabel"); err == nil {
		t.Error("expected error for invalid visibility")
	}
}

func TestShimCommand(t *testing.T) {
	dir := t.TempDir()
	template := filepath.Join(dir, "apphost")
	content := "MZ" + "c3ab8ff13720e8ad9047dd39466b3c8974e592c2fa383d4a3960714caef0c4f2" + strings.Repeat("\x00", 1024)
	if err := os.WriteFile(template, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	dll := filepath.Join(dir, "App.dll")

	if _, stderr, err := run(t, "shim", template, dll); err != nil {
		t.Fatalf("shim: %v\n%s", err, stderr)
	}
	launcher, err := os.ReadFile(filepath.Join(dir, "App.exe"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(launcher), "App.dll\x00") {
		t.Errorf("launcher does not refer to App.dll")
	}

	if _, _, err := run(t, "shim", filepath.Join(dir, "App.exe"), dll, "-o", filepath.Join(dir, "again")); err == nil {
		t.Error("expected error for an already patched launcher")
	}
}

func TestVersionFlag(t *testing.T) {
	SetVersion("v1.2.3", "abc123", "2026-01-01")
	defer SetVersion("dev", "", "")

	stdout, _, err := run(t, "--version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "nugetbzl v1.2.3") || !strings.Contains(stdout, "commit: abc123") {
		t.Errorf("--version output = %q", stdout)
	}
}
