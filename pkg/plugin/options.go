package plugin

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// DecodeOptions decodes a plugin's raw option map into the plugin's own
// typed options struct. Keys match `json` tags. Unknown keys are an error
// so configuration typos do not pass silently.
func DecodeOptions(raw map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		ErrorUnused: true,
		TagName:     "json",
	})
	if err != nil {
		return fmt.Errorf("failed to build option decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("invalid plugin options: %w", err)
	}
	return nil
}
