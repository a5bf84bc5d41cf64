package phash

import "github.com/ppiankov/thumbsieve/internal/model"

// HashIndex is the read side of the fingerprint store used by the gate
type HashIndex interface {
	LookupHash(hash model.ImageHash) (string, bool)
}

// Gate rejects images whose hash is already recorded
type Gate struct {
	index HashIndex
}

// NewGate creates a gate over index
func NewGate(index HashIndex) *Gate {
	return &Gate{index: index}
}

// Check reports whether hash is known and the URL it was first recorded under.
// It never mutates the index.
func (g *Gate) Check(hash model.ImageHash) (isDuplicate bool, originalURL string) {
	url, ok := g.index.LookupHash(hash)
	return ok, url
}
