package gallery

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

const payloadVersion = 1

type payload struct {
	Version int     `json:"version"`
	Images  []Image `json:"images"`
}

func encodePayload(images []Image) ([]byte, error) {
	if images == nil {
		images = []Image{}
	}
	data, err := json.Marshal(payload{Version: payloadVersion, Images: images})
	if err != nil {
		return nil, fmt.Errorf("gallery: encode: %w", err)
	}
	return data, nil
}

// decodePayload accepts the versioned document written by encodePayload and
// the legacy form: a bare JSON array of data-URL strings. Legacy images
// come back without IDs.
func decodePayload(data []byte) ([]Image, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrCorrupt)
	}

	if trimmed[0] == '[' {
		var urls []string
		if err := json.Unmarshal(trimmed, &urls); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		images := make([]Image, 0, len(urls))
		for i, u := range urls {
			mime, raw, err := ParseDataURL(u)
			if err != nil {
				return nil, fmt.Errorf("%w: entry %d: %v", ErrCorrupt, i, err)
			}
			images = append(images, Image{Data: raw, MIME: mime})
		}
		return images, nil
	}

	var p payload
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if p.Version != payloadVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, p.Version)
	}
	if p.Images == nil {
		p.Images = []Image{}
	}
	return p.Images, nil
}

// ParseDataURL splits "data:<mime>;base64,<payload>" into its MIME type and
// decoded bytes.
func ParseDataURL(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data URL")
	}
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("data URL has no payload")
	}
	mime, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, fmt.Errorf("data URL is not base64 encoded")
	}
	if mime == "" {
		mime = "image/png"
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("data URL payload: %w", err)
	}
	return mime, raw, nil
}

// DataURL renders an image as a base64 data URL.
func DataURL(img Image) string {
	mime := img.MIME
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}
