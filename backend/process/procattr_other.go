//go:build !unix

package process

import "os/exec"

// setProcessGroup is a no-op where process groups are unavailable; exec's
// default cancellation kills only the direct child.
func setProcessGroup(_ *exec.Cmd) {}
