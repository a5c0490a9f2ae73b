package host

import (
	"strings"

	"github.com/hashicorp/go-version"
)

const (
	// Package is the unversioned interface path of the call interface.
	Package = "seamlezz:surrealdb/call"
	// Version is the interface version this host provides.
	Version = "0.1.0"
	// Namespace is the versioned module name the host exports under.
	Namespace = Package + "@" + Version
)

var hostVersion = version.Must(version.NewVersion(Version))

// SplitNamespace splits "seamlezz:surrealdb/call@0.1.0" into its base path
// and version. An unversioned namespace returns a nil version.
func SplitNamespace(ns string) (string, *version.Version, error) {
	idx := strings.LastIndexByte(ns, '@')
	if idx == -1 {
		return ns, nil, nil
	}
	v, err := version.NewVersion(ns[idx+1:])
	if err != nil {
		return ns[:idx], nil, err
	}
	return ns[:idx], v, nil
}

// Compatible reports whether a host at have can serve a guest built
// against want: the majors match and have's minor and patch are not older.
// A nil want matches any host version.
func Compatible(have, want *version.Version) bool {
	if want == nil {
		return true
	}
	if have == nil {
		return false
	}
	hs, ws := have.Segments64(), want.Segments64()
	if hs[0] != ws[0] {
		return false
	}
	if hs[1] != ws[1] {
		return hs[1] > ws[1]
	}
	return hs[2] >= ws[2]
}

// Serves reports whether the host can bind imports of module ns.
func Serves(ns string) bool {
	base, v, err := SplitNamespace(ns)
	if err != nil || base != Package {
		return false
	}
	return Compatible(hostVersion, v)
}
