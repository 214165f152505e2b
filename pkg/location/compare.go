package location

import "github.com/aretw0/pageflow/pkg/domain"

// SameOrigin reports whether both locations share protocol, hostname and port.
// A location without hostname is relative and matches any origin.
func SameOrigin(a, b domain.Location) bool {
	if a.Hostname == "" || b.Hostname == "" {
		return true
	}
	return a.Protocol == b.Protocol && a.Hostname == b.Hostname && a.Port == b.Port
}

// SamePathname reports whether both locations address the same document path.
func SamePathname(a, b domain.Location) bool {
	return SameOrigin(a, b) && pathname(a) == pathname(b)
}

// SameQuery compares the formatted queries, key order included.
func SameQuery(a, b domain.Location) bool {
	return FormatQuery(a.Query) == FormatQuery(b.Query)
}

// SameHash compares the fragments.
func SameHash(a, b domain.Location) bool {
	return a.Hash == b.Hash
}

func pathname(l domain.Location) string {
	if l.Pathname == "" {
		return "/"
	}
	return l.Pathname
}
