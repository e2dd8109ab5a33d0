package ingester

import (
	"encoding/json"

	"github.com/hazyhaar/dsingest/store"
	"github.com/hazyhaar/dsingest/transform"
)

// DefaultOptions returns the preprocessing defaults: compress on, JPEG
// output, every other stage off.
func DefaultOptions() store.Options {
	return store.Options{Compress: true, Format: "jpg"}
}

// ParseOptions decodes the preprocessOptions form field. Missing keys
// keep their defaults and malformed JSON degrades to the defaults
// wholesale; clients never see a parse error for this field.
func ParseOptions(raw string) store.Options {
	opts := DefaultOptions()
	if raw == "" {
		return opts
	}
	if err := json.Unmarshal([]byte(raw), &opts); err != nil {
		return DefaultOptions()
	}
	return opts
}

// toTransform maps persisted preprocessing options onto the image
// pipeline's stage selection.
func toTransform(o store.Options) transform.Options {
	return transform.Options{
		Resize:    o.Resize,
		Compress:  o.Compress,
		Normalize: o.Normalize,
		Crop:      o.Crop,
		Format:    o.Format,
	}
}
