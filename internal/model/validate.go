package model

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	// Image decoders for request validation.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"bistrobooks/internal/domain"
	"bistrobooks/internal/port"
)

// ValidateRequest rejects requests no backend should ever see: an empty
// prompt, or an image payload that is missing, of an unsupported type or
// not decodable as an image. Providers call this before any network I/O so
// an invalid input never costs a model call.
func ValidateRequest(req *port.InvokeRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return fmt.Errorf("empty prompt: %w", domain.ErrInvalidInput)
	}
	if req.Modality == domain.ModalityImage {
		return ValidateImage(req.Image, req.ImageMIME)
	}
	return nil
}

// ValidateImage checks that data is a decodable image of an allowed type.
func ValidateImage(data []byte, mimeType string) error {
	if len(data) == 0 {
		return fmt.Errorf("image payload is empty: %w", domain.ErrInvalidInput)
	}
	if _, ok := domain.AllowedImageTypes[mimeType]; !ok {
		return fmt.Errorf("unsupported image type %q: %w", mimeType, domain.ErrInvalidInput)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("unreadable image payload: %w", domain.ErrInvalidInput)
	}
	return nil
}
