package install

import (
	"fmt"
)

// InstallError reports a package that could not be installed. It is fatal:
// the build aborts before writing any output, so a broken dependency never
// produces a half-resolved module tree.
type InstallError struct {
	Package string
	Err     error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("failed to install %q: %v", e.Package, e.Err)
}

func (e *InstallError) Unwrap() error {
	return e.Err
}
