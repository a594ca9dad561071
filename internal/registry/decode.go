package registry

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// StructDecoder returns a Decoder that maps raw data onto T using its json
// struct tags. Input is weakly typed ("3" decodes into an int field) and
// unknown keys are ignored, which suits loosely formatted generation output.
func StructDecoder[T Output]() Decoder[T] {
	return func(raw map[string]any, round int) (T, error) {
		var out T
		if raw == nil {
			return out, fmt.Errorf("raw data is nil")
		}
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			TagName:          "json",
			WeaklyTypedInput: true,
			Result:           &out,
		})
		if err != nil {
			return out, fmt.Errorf("creating decoder: %w", err)
		}
		if err := decoder.Decode(raw); err != nil {
			return out, fmt.Errorf("decoding round %d: %w", round, err)
		}
		return out, nil
	}
}
