package npm

import (
	"encoding/json"
)

// DefaultLookupFields is the order in which manifest fields are consulted
// for a package's module entrypoint when the configuration does not
// override it.
var DefaultLookupFields = []string{"browser:module", "module", "main:esnext", "browser", "main"}

// Manifest is a parsed package.json. Fields that entrypoint lookup may be
// configured to consult are kept in raw form as well, since packages
// invent their own ("browser:module", "main:esnext", ...).
type Manifest struct {
	Name             string            `json:"name"`
	Version          string            `json:"version"`
	Main             string            `json:"main,omitempty"`
	Module           string            `json:"module,omitempty"`
	Exports          any               `json:"exports,omitempty"`
	Dependencies     map[string]string `json:"dependencies,omitempty"`
	PeerDependencies map[string]string `json:"peerDependencies,omitempty"`

	raw map[string]json.RawMessage
}

// ParseManifest decodes a package.json document.
func ParseManifest(bs []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(bs, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) UnmarshalJSON(bs []byte) error {
	type rawManifest Manifest
	var x rawManifest
	if err := json.Unmarshal(bs, &x); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(bs, &raw); err != nil {
		return err
	}
	*m = Manifest(x)
	m.raw = raw
	return nil
}

func (m *Manifest) MarshalJSON() ([]byte, error) {
	type rawManifest Manifest
	return json.Marshal((*rawManifest)(m))
}

// EntryField returns the first of the named manifest fields that holds a
// string value. Non-string fields, like the object form of "browser", are
// skipped.
func (m *Manifest) EntryField(fields []string) string {
	for _, field := range fields {
		bs, ok := m.raw[field]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(bs, &s); err == nil && s != "" {
			return s
		}
	}
	return ""
}
