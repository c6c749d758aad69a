//go:build amd64

package optimize

// comparePathAVX2 compares two equal-length paths. A real AVX2 vectorized
// compare needs an assembly counterpart this package doesn't carry; the
// compiler's own byte-at-a-time == is already well optimized for this
// length range, so it stands in here instead of an unlinkable extern stub.
func comparePathAVX2(a, b string) bool {
	return a == b
}

// comparePathNEON is a stub for x86_64 (NEON is ARM only)
func comparePathNEON(a, b string) bool {
	return a == b
}
