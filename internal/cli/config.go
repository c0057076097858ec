package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"

	nugetbzl "github.com/albertocavalcante/go-nugetbzl"
)

// defaultConfigFile is read from the working directory when --config is not set.
const defaultConfigFile = "nugetbzl.toml"

// fileConfig is the nugetbzl.toml document.
//
//	nuget_config = "nuget.config"
//	packages     = ["Packages.props"]
//	frameworks   = ["net8.0"]
//	runtime      = "linux-x64"
//	output       = "external/nuget"
//	lock_file    = "packages.lock.json"
//
//	[pack_versions]
//	"net8.0" = "8.0.11"
//
//	[rule]
//	file = "@rules_dotnet//dotnet:defs.bzl"
//	name = "import_library"
type fileConfig struct {
	NuGetConfig  string            `toml:"nuget_config"`
	Packages     []string          `toml:"packages"`
	Frameworks   []string          `toml:"frameworks"`
	Runtime      *string           `toml:"runtime"`
	Sources      []string          `toml:"sources"`
	Imports      []string          `toml:"imports"`
	Output       string            `toml:"output"`
	LockFile     string            `toml:"lock_file"`
	Locked       bool              `toml:"locked"`
	PackagesDir  string            `toml:"packages_dir"`
	AspNetCore   *bool             `toml:"aspnetcore"`
	FirstMatch   bool              `toml:"first_match"`
	Concurrency  int               `toml:"concurrency"`
	Timeout      time.Duration     `toml:"timeout"`
	StdlibLabel  string            `toml:"stdlib_label"`
	PackVersions map[string]string `toml:"pack_versions"`
	Rule         struct {
		File string `toml:"file"`
		Name string `toml:"name"`
	} `toml:"rule"`
}

// loadFileConfig decodes a nugetbzl.toml file. Unknown keys are an error.
// A missing default file yields an empty config.
func loadFileConfig(path string, explicit bool) (*fileConfig, error) {
	var fc fileConfig
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return &fileConfig{}, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("read config %s: unknown keys %v", path, undecoded)
	}
	return &fc, nil
}

// settings are the effective generation settings of a command.
type settings struct {
	config       string
	nugetConfig  string
	packages     []string
	frameworks   []string
	runtime      string
	sources      []string
	imports      []string
	output       string
	lockFile     string
	locked       bool
	packagesDir  string
	aspNetCore   bool
	firstMatch   bool
	concurrency  int
	timeout      time.Duration
	stdlibLabel  string
	packVersions map[string]string
	ruleFile     string
	rule         string
}

func defaultSettings() settings {
	return settings{
		frameworks: []string{nugetbzl.DefaultFramework},
		runtime:    nugetbzl.DefaultRuntime,
		output:     ".",
		aspNetCore: true,
		timeout:    30 * time.Second,
	}
}

// register binds the shared generation flags to s.
func (s *settings) register(flags *pflag.FlagSet) {
	flags.StringVarP(&s.config, "config", "c", "", "config file (default "+defaultConfigFile+" if present)")
	flags.StringVar(&s.nugetConfig, "nuget-config", s.nugetConfig, "nuget.config with the package sources")
	flags.StringSliceVarP(&s.packages, "package", "p", s.packages, "Packages.props files or directories with project files")
	flags.StringSliceVarP(&s.frameworks, "tfm", "t", s.frameworks, "target frameworks, the first is the default")
	flags.StringVarP(&s.runtime, "runtime", "r", s.runtime, `runtime identifier ("" for none)`)
	flags.StringSliceVarP(&s.sources, "source", "s", s.sources, "package sources, instead of nuget.config")
	flags.StringSliceVarP(&s.imports, "imports", "i", s.imports, "import mappings {repo|label}={exports_file}[={config_setting}]")
	flags.StringVar(&s.lockFile, "lock-file", s.lockFile, "packages.lock.json to pin versions")
	flags.BoolVar(&s.locked, "locked", s.locked, "fail when the lock file is missing or outdated")
	flags.StringVar(&s.packagesDir, "packages-dir", s.packagesDir, "global packages folder")
	flags.BoolVar(&s.aspNetCore, "aspnetcore", s.aspNetCore, "reconcile against the ASP.NET Core targeting pack")
	flags.BoolVar(&s.firstMatch, "first-match", s.firstMatch, "pick the nearest group for ambiguous assets instead of failing")
	flags.IntVarP(&s.concurrency, "concurrency", "j", s.concurrency, "parallel downloads (0 for the default)")
	flags.DurationVar(&s.timeout, "timeout", s.timeout, "HTTP request timeout")
	flags.StringVar(&s.stdlibLabel, "stdlib-label", s.stdlibLabel, "label template for SDK assemblies on .NET Framework ({id} is replaced)")
	flags.StringToStringVar(&s.packVersions, "pack-version", s.packVersions, "targeting pack versions, e.g. net8.0=8.0.11")
}

// merge applies the config file to every setting whose flag was not set.
func (s *settings) merge(fc *fileConfig, changed func(string) bool) {
	str := func(flag string, dst *string, v string) {
		if !changed(flag) && v != "" {
			*dst = v
		}
	}
	list := func(flag string, dst *[]string, v []string) {
		if !changed(flag) && len(v) > 0 {
			*dst = v
		}
	}

	str("nuget-config", &s.nugetConfig, fc.NuGetConfig)
	list("package", &s.packages, fc.Packages)
	list("tfm", &s.frameworks, fc.Frameworks)
	if fc.Runtime != nil && !changed("runtime") {
		s.runtime = *fc.Runtime
	}
	list("source", &s.sources, fc.Sources)
	list("imports", &s.imports, fc.Imports)
	str("output", &s.output, fc.Output)
	str("lock-file", &s.lockFile, fc.LockFile)
	if fc.Locked && !changed("locked") {
		s.locked = true
	}
	str("packages-dir", &s.packagesDir, fc.PackagesDir)
	if fc.AspNetCore != nil && !changed("aspnetcore") {
		s.aspNetCore = *fc.AspNetCore
	}
	if fc.FirstMatch && !changed("first-match") {
		s.firstMatch = true
	}
	if fc.Concurrency != 0 && !changed("concurrency") {
		s.concurrency = fc.Concurrency
	}
	if fc.Timeout != 0 && !changed("timeout") {
		s.timeout = fc.Timeout
	}
	str("stdlib-label", &s.stdlibLabel, fc.StdlibLabel)
	if len(fc.PackVersions) > 0 && !changed("pack-version") {
		s.packVersions = fc.PackVersions
	}
	if s.ruleFile == "" && s.rule == "" {
		s.ruleFile, s.rule = fc.Rule.File, fc.Rule.Name
	}
}

// load reads the config file named by --config, or the default one, and
// merges it into s.
func (s *settings) load(flags *pflag.FlagSet) error {
	path, explicit := s.config, s.config != ""
	if !explicit {
		path = defaultConfigFile
	}
	fc, err := loadFileConfig(path, explicit)
	if err != nil {
		return err
	}
	s.merge(fc, flags.Changed)
	return nil
}

// options translates s into library options.
func (s *settings) options() []nugetbzl.Option {
	opts := []nugetbzl.Option{
		nugetbzl.WithFrameworks(s.frameworks...),
		nugetbzl.WithRuntime(s.runtime),
		nugetbzl.WithOutputDir(s.output),
		nugetbzl.WithAspNetCore(s.aspNetCore),
		nugetbzl.WithFirstMatchFallback(s.firstMatch),
		nugetbzl.WithConcurrency(s.concurrency),
		nugetbzl.WithTimeout(s.timeout),
	}
	if s.nugetConfig != "" {
		opts = append(opts, nugetbzl.WithNuGetConfig(s.nugetConfig))
	}
	if len(s.sources) > 0 {
		opts = append(opts, nugetbzl.WithSources(s.sources...))
	}
	if len(s.imports) > 0 {
		opts = append(opts, nugetbzl.WithImportMappings(s.imports...))
	}
	if s.lockFile != "" {
		opts = append(opts, nugetbzl.WithLockFile(s.lockFile))
	}
	if s.locked {
		opts = append(opts, nugetbzl.WithLockedMode(true))
	}
	if s.packagesDir != "" {
		opts = append(opts, nugetbzl.WithPackagesDir(s.packagesDir))
	}
	if s.stdlibLabel != "" {
		opts = append(opts, nugetbzl.WithStdlibLabel(s.stdlibLabel))
	}
	for fw, v := range s.packVersions {
		opts = append(opts, nugetbzl.WithPackVersion(fw, v))
	}
	if s.ruleFile != "" || s.rule != "" {
		opts = append(opts, nugetbzl.WithRule(s.ruleFile, s.rule))
	}
	return opts
}

// packageFiles returns the reference files, defaulting to Packages.props in
// the working directory.
func (s *settings) packageFiles() ([]string, error) {
	if len(s.packages) > 0 {
		return s.packages, nil
	}
	if _, err := os.Stat("Packages.props"); err != nil {
		return nil, errors.New("no package references: pass --package or set packages in " + defaultConfigFile)
	}
	return []string{"Packages.props"}, nil
}
