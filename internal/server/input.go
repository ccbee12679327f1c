package server

import (
	"encoding/base64"
	"fmt"
	"mime"
	"strings"

	"github.com/rendis/flowsketch/pkg/schema"
)

// cameraPayload is the JSON body a browser camera capture posts.
type cameraPayload struct {
	Image string `json:"image"`
}

var imageMIMEExts = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

// decodeDataURI decodes "data:image/jpeg;base64,<payload>". A bare base64
// payload without the prefix is taken as JPEG. It returns the bytes and the
// file extension for the media type.
func decodeDataURI(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, "", fmt.Errorf("empty image data")
	}

	mediaType, payload := "image/jpeg", s
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		meta, data, found := strings.Cut(rest, ",")
		if !found {
			return nil, "", fmt.Errorf("malformed data URI")
		}
		params := strings.Split(meta, ";")
		if !strings.EqualFold(params[len(params)-1], "base64") {
			return nil, "", fmt.Errorf("data URI is not base64 encoded")
		}
		if params[0] != "" {
			mt, _, err := mime.ParseMediaType(params[0])
			if err != nil {
				return nil, "", fmt.Errorf("bad media type %q: %w", params[0], err)
			}
			mediaType = mt
		}
		payload = data
	}

	ext, ok := imageMIMEExts[mediaType]
	if !ok {
		return nil, "", schema.NewErrorf(schema.ErrCodeUnsupportedFormat, "unsupported image type %q", mediaType)
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "=")); err != nil {
			return nil, "", fmt.Errorf("decode base64: %w", err)
		}
	}
	if len(raw) == 0 {
		return nil, "", fmt.Errorf("empty image data")
	}
	return raw, ext, nil
}
