// phash-compare prints the perceptual hash of each image given on the
// command line (file paths or URLs) and the pairwise Hamming distances.
// Useful for checking why two thumbnails did or did not collide.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/thumbsieve/internal/model"
	"github.com/ppiankov/thumbsieve/internal/phash"
	"github.com/ppiankov/thumbsieve/internal/pipeline"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: phash-compare <image|url> [image|url ...]")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	fetcher := pipeline.NewFetcher(model.DefaultConfig().HTTP)

	type entry struct {
		name string
		hash model.ImageHash
	}
	var hashes []entry

	fmt.Println("=== Perceptual hashes ===")
	for _, arg := range os.Args[1:] {
		hash, err := hashOf(ctx, fetcher, arg)
		if err != nil {
			fmt.Printf("  ✗ %s: %v\n", arg, err)
			continue
		}
		fmt.Printf("  %s  %s\n", hash, arg)
		hashes = append(hashes, entry{name: arg, hash: hash})
	}

	if len(hashes) < 2 {
		return
	}

	fmt.Println("\n=== Distances (0 = same hash, duplicate) ===")
	for i := 0; i < len(hashes); i++ {
		for j := i + 1; j < len(hashes); j++ {
			d, err := phash.Distance(hashes[i].hash, hashes[j].hash)
			if err != nil {
				continue
			}
			mark := " "
			if d == 0 {
				mark = "="
			}
			fmt.Printf("  %s %2d  %s <-> %s\n", mark, d, hashes[i].name, hashes[j].name)
		}
	}
}

func hashOf(ctx context.Context, fetcher *pipeline.Fetcher, arg string) (model.ImageHash, error) {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		img, err := fetcher.FetchImage(ctx, arg)
		if err != nil {
			return "", err
		}
		return phash.Compute(img.Image)
	}

	data, err := os.ReadFile(arg)
	if err != nil {
		return "", err
	}
	img, _, err := phash.Decode(data)
	if err != nil {
		return "", err
	}
	return phash.Compute(img)
}
