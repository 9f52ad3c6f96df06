// Package jsonpatch applies RFC 6902 patches to package manifests. Only
// add, remove and replace are supported, since move/copy/test make no
// sense for manifest repair.
package jsonpatch

import (
	"encoding/json"
	"fmt"

	jp "github.com/evanphx/json-patch/v5"
)

// Patch is a parsed RFC 6902 patch document.
type Patch = jp.Patch

// UnsupportedOpError reports a patch operation outside the supported set.
type UnsupportedOpError struct {
	Kind string
}

func (e *UnsupportedOpError) Error() string {
	return fmt.Sprintf("unsupported patch operation %q, must be one of \"add\", \"remove\", \"replace\"", e.Kind)
}

// DecodePatch parses a JSON patch document.
func DecodePatch(bs []byte) (Patch, error) {
	return jp.DecodePatch(bs)
}

// Apply runs the patch against doc and returns the patched document.
// Paths added by "add" are created as needed, and "remove" of a missing
// path is not an error, so a single patch can repair manifests that vary
// slightly between package versions.
func Apply(p Patch, doc json.RawMessage) (json.RawMessage, error) {
	for _, op := range p {
		switch kind := op.Kind(); kind {
		case "add", "remove", "replace":
		default:
			return nil, &UnsupportedOpError{Kind: kind}
		}
	}

	opts := jp.NewApplyOptions()
	opts.EnsurePathExistsOnAdd = true
	opts.AllowMissingPathOnRemove = true

	return p.ApplyWithOptions(doc, opts)
}
