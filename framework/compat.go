package framework

// netStandardSupport lists, per consuming framework version, the highest
// .NET Standard version it implements. Entries are ordered by version.
//
// Reference: https://learn.microsoft.com/en-us/dotnet/standard/net-standard#net-implementation-support
var netStandardSupport = map[Family][]struct {
	from     Moniker
	standard Moniker
}{
	NetCoreApp: {
		{Moniker{Family: NetCoreApp, Major: 1, Minor: 0}, Moniker{Family: NetStandard, Major: 1, Minor: 6}},
		{Moniker{Family: NetCoreApp, Major: 2, Minor: 0}, Moniker{Family: NetStandard, Major: 2, Minor: 0}},
		{Moniker{Family: NetCoreApp, Major: 3, Minor: 0}, Moniker{Family: NetStandard, Major: 2, Minor: 1}},
	},
	NetFramework: {
		{Moniker{Family: NetFramework, Major: 4, Minor: 5}, Moniker{Family: NetStandard, Major: 1, Minor: 1}},
		{Moniker{Family: NetFramework, Major: 4, Minor: 5, Build: 1}, Moniker{Family: NetStandard, Major: 1, Minor: 2}},
		{Moniker{Family: NetFramework, Major: 4, Minor: 6}, Moniker{Family: NetStandard, Major: 1, Minor: 3}},
		{Moniker{Family: NetFramework, Major: 4, Minor: 6, Build: 1}, Moniker{Family: NetStandard, Major: 2, Minor: 0}},
	},
}

// supportedStandard returns the highest .NET Standard version target implements.
func supportedStandard(target Moniker) (Moniker, bool) {
	var best Moniker
	found := false
	for _, row := range netStandardSupport[target.Family] {
		if compareVersion(target, row.from) >= 0 {
			best, found = row.standard, true
		}
	}
	return best, found
}

// IsCompatible reports whether a project targeting target can consume assets
// built for candidate.
func IsCompatible(target, candidate Moniker) bool {
	if target.IsZero() || candidate.IsZero() {
		return false
	}
	if candidate.Family == Any {
		return true
	}
	if target.Family == Unsupported || candidate.Family == Unsupported {
		return target == candidate
	}
	if candidate.Platform != "" && candidate.Platform != target.Platform {
		return false
	}

	if target.Family == candidate.Family {
		return compareVersion(candidate, target) <= 0
	}

	if candidate.Family == NetStandard {
		std, ok := supportedStandard(target)
		return ok && compareVersion(candidate, std) <= 0
	}
	return false
}

// rank orders compatible candidates: lower is nearer.
func rank(target, candidate Moniker) int {
	switch {
	case candidate.Family == target.Family && candidate.Platform == target.Platform:
		return 0
	case candidate.Family == target.Family:
		return 1
	case candidate.Family == NetStandard:
		return 2
	default:
		return 3
	}
}

// Nearest returns the index of the candidate nearest to target, or -1 if none
// is compatible.
//
// Candidates of the target's own family beat .NET Standard, which beats
// "any". Within a tier the highest version wins; exact ties keep the earliest
// candidate. Adding a candidate that is less specific than the current winner
// never changes the result.
func Nearest(target Moniker, candidates []Moniker) int {
	best := -1
	for i, c := range candidates {
		if !IsCompatible(target, c) {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		b := candidates[best]
		rc, rb := rank(target, c), rank(target, b)
		if rc < rb || (rc == rb && c.Family == b.Family && compareVersion(c, b) > 0) {
			best = i
		}
	}
	return best
}
