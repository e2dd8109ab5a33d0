// Package imgmeta extracts provenance metadata from uploaded image bytes
// so it can be carried into the dataset index alongside each entry.
package imgmeta

import (
	"bytes"

	"github.com/bep/imagemeta"
)

// Metadata holds the EXIF and XMP fields recorded per dataset entry.
// Empty fields mean the tag was not present.
type Metadata struct {
	Artist      string `json:"artist,omitempty"`
	Copyright   string `json:"copyright,omitempty"`
	Creator     string `json:"creator,omitempty"`
	Rights      string `json:"rights,omitempty"`
	Software    string `json:"software,omitempty"`
	DateTime    string `json:"dateTime,omitempty"`
	CameraMake  string `json:"cameraMake,omitempty"`
	CameraModel string `json:"cameraModel,omitempty"`
}

// wantedTags maps (source, tag) to true for each field we persist.
var wantedTags = map[imagemeta.Source]map[string]bool{
	imagemeta.EXIF: {
		"Artist":    true,
		"Copyright": true,
		"Software":  true,
		"DateTime":  true,
		"Make":      true,
		"Model":     true,
	},
	imagemeta.XMP: {
		"Creator": true,
		"Rights":  true,
	},
}

// Extract parses EXIF and XMP tags from raw image bytes. It never
// returns an error: unreadable or tag-free images yield nil, and the
// caller stores nothing for them.
func Extract(data []byte) *Metadata {
	if len(data) == 0 {
		return nil
	}

	meta := &Metadata{}
	found := false

	_, err := imagemeta.Decode(imagemeta.Options{
		R:       bytes.NewReader(data),
		Sources: imagemeta.EXIF | imagemeta.XMP,
		ShouldHandleTag: func(ti imagemeta.TagInfo) bool {
			if tags, ok := wantedTags[ti.Source]; ok {
				return tags[ti.Tag]
			}
			return false
		},
		HandleTag: func(ti imagemeta.TagInfo) error {
			switch ti.Source {
			case imagemeta.EXIF:
				handleEXIFTag(meta, ti, &found)
			case imagemeta.XMP:
				handleXMPTag(meta, ti, &found)
			}
			return nil
		},
	})
	if err != nil || !found {
		return nil
	}
	return meta
}

func handleEXIFTag(meta *Metadata, ti imagemeta.TagInfo, found *bool) {
	s := tagValueString(ti.Value)
	if s == "" {
		return
	}

	switch ti.Tag {
	case "Artist":
		meta.Artist = s
	case "Copyright":
		meta.Copyright = s
	case "Software":
		meta.Software = s
	case "DateTime":
		meta.DateTime = s
	case "Make":
		meta.CameraMake = s
	case "Model":
		meta.CameraModel = s
	default:
		return
	}

	*found = true
}

func handleXMPTag(meta *Metadata, ti imagemeta.TagInfo, found *bool) {
	s := tagValueString(ti.Value)
	if s == "" {
		return
	}

	switch ti.Tag {
	case "Creator":
		meta.Creator = s
	case "Rights":
		meta.Rights = s
	default:
		return
	}

	*found = true
}

// tagValueString extracts a string from a tag value. XMP list values
// come through as []string or []any.
func tagValueString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []string:
		if len(val) > 0 {
			return val[0]
		}
		return ""
	case []any:
		if len(val) > 0 {
			if s, ok := val[0].(string); ok {
				return s
			}
		}
		return ""
	default:
		return ""
	}
}
