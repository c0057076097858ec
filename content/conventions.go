package content

import "github.com/albertocavalcante/go-nugetbzl/framework"

var (
	anyFramework = framework.Moniker{Family: framework.Any}
	netFramework = framework.Moniker{Family: framework.NetFramework}
)

// Conventions holds the pattern sets for every asset category. A Conventions
// value is read-only once built.
type Conventions struct {
	CompileRef   *PatternSet // ref/{tfm}/{assembly}
	BuildRef     *PatternSet // build/{tfm}/ref/{assembly}
	CompileLib   *PatternSet // lib/{tfm}/{assembly}, lib/{assembly}
	Runtime      *PatternSet // runtimes/{rid}/lib/{tfm}/{assembly}, lib/...
	Native       *PatternSet // runtimes/{rid}/nativeassets/{tfm}/{any}, runtimes/{rid}/native/{any}
	Build        *PatternSet // build/{tfm}/{assembly}, build/{assembly}
	DebugRuntime *PatternSet // netcoreappdebug/{tfm}/{assembly}, netcoreappdebug/{assembly}
	Analyzers    *PatternSet // analyzers/dotnet/cs/{assembly}, analyzers/{assembly}
	ContentFiles *PatternSet // contentFiles/{codeLanguage}/{tfm}/{any}
	Tools        *PatternSet // tools/{tfm}/{rid}/{any}, tools/{tfm}/{any}
}

// DefaultConventions returns the NuGet managed code conventions plus the
// build/ and netcoreappdebug/ layouts some packages use.
//
// Reference: https://github.com/NuGet/NuGet.Client/blob/dev/src/NuGet.Core/NuGet.Packaging/ContentModel/ManagedCodeConventions.cs
func DefaultConventions() *Conventions {
	lib := []Pattern{
		MustPattern("lib/{tfm}/{assembly}"),
		MustPattern("lib/{assembly}").WithDefaultFramework(netFramework),
	}
	runtime := append([]Pattern{MustPattern("runtimes/{rid}/lib/{tfm}/{assembly}")}, lib...)

	return &Conventions{
		CompileRef: NewPatternSet("ref", MustPattern("ref/{tfm}/{assembly}")),
		BuildRef:   NewPatternSet("build-ref", MustPattern("build/{tfm}/ref/{assembly}")),
		CompileLib: NewPatternSet("lib", lib...),
		Runtime:    NewPatternSet("runtime", runtime...),
		Native: NewPatternSet("native",
			MustPattern("runtimes/{rid}/nativeassets/{tfm}/{any}"),
			MustPattern("runtimes/{rid}/native/{any}").WithDefaultFramework(anyFramework),
		),
		Build: NewPatternSet("build",
			MustPattern("build/{tfm}/{assembly}"),
			MustPattern("build/{assembly}").WithDefaultFramework(anyFramework),
		),
		DebugRuntime: NewPatternSet("netcoreappdebug",
			MustPattern("netcoreappdebug/{tfm}/{assembly}"),
			MustPattern("netcoreappdebug/{assembly}"),
		),
		Analyzers: NewPatternSet("analyzers",
			MustPattern("analyzers/dotnet/cs/{assembly}"),
			MustPattern("analyzers/{assembly}"),
		),
		ContentFiles: NewPatternSet("contentFiles", MustPattern("contentFiles/{codeLanguage}/{tfm}/{any}")),
		Tools: NewPatternSet("tools",
			MustPattern("tools/{tfm}/{rid}/{any}"),
			MustPattern("tools/{tfm}/{any}"),
		),
	}
}
