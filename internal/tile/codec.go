package tile

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
)

// DecodeError reports a payload that is not a decodable image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode tile image: " + e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode turns a base64 image payload into an image. PNG is expected; JPEG is
// accepted because some models answer with it regardless of the requested type.
func Decode(payload string) (image.Image, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("base64: %w", err)}
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return img, nil
}

// EncodePNG returns the PNG bytes of img.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Encode returns img as a base64 PNG payload.
func Encode(img image.Image) (string, error) {
	data, err := EncodePNG(img)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
