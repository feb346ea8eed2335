package testutil

import "testing"

// SkipIfShort skips container-backed tests under `go test -short` so the
// default unit run needs no Docker daemon.
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in -short mode")
	}
}
