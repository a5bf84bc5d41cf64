// Package phash computes 64-bit DCT perceptual hashes of thumbnails and
// checks them against the store's hash index.
package phash

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"strconv"
	"strings"

	// Registered decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/corona10/goimagehash"
	"github.com/ppiankov/thumbsieve/internal/model"
)

// HashSize is the side of the low-frequency DCT block; the hash has HashSize² bits
const HashSize = 8

// ErrInvalidImage is returned for nil or empty images
var ErrInvalidImage = errors.New("invalid image")

// Decode decodes jpeg, png, gif or webp bytes
func Decode(data []byte) (img image.Image, format string, err error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("decode image: %w", ErrInvalidImage)
	}
	defer func() {
		if r := recover(); r != nil {
			img, format, err = nil, "", fmt.Errorf("decode image: panic: %v", r)
		}
	}()
	img, format, err = image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// Compute returns the perceptual hash of img as 16 lowercase hex digits
func Compute(img image.Image) (hash model.ImageHash, err error) {
	if img == nil {
		return "", ErrInvalidImage
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return "", ErrInvalidImage
	}
	defer func() {
		if r := recover(); r != nil {
			hash, err = "", fmt.Errorf("compute hash: panic: %v", r)
		}
	}()

	h, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return "", fmt.Errorf("compute hash: %w", err)
	}
	return hexHash(h.GetHash()), nil
}

// Distance returns the number of differing bits between two hashes
func Distance(a, b model.ImageHash) (int, error) {
	x, err := parse(a)
	if err != nil {
		return 0, err
	}
	y, err := parse(b)
	if err != nil {
		return 0, err
	}
	return x.Distance(y)
}

func hexHash(bits uint64) model.ImageHash {
	return model.ImageHash(fmt.Sprintf("%016x", bits))
}

func parse(h model.ImageHash) (*goimagehash.ImageHash, error) {
	bits, err := strconv.ParseUint(strings.ToLower(string(h)), 16, 64)
	if err != nil {
		return nil, fmt.Errorf("parse hash %q: %w", h, err)
	}
	return goimagehash.NewImageHash(bits, goimagehash.PHash), nil
}
