package domain

// IdentityLength is the length of a hex-encoded visitor identity.
const IdentityLength = 64

// Identity is an opaque visitor token derived from request attributes.
type Identity string

func (i Identity) String() string {
	return string(i)
}

// Short returns a log-safe prefix of the identity.
func (i Identity) Short() string {
	if len(i) <= 8 {
		return string(i)
	}
	return string(i[:8]) + "..."
}
