package store

import (
	"sort"

	"github.com/ppiankov/thumbsieve/internal/model"
)

// Group is a fingerprint together with its store entry and parsed attributes
type Group struct {
	Fingerprint model.FingerprintKey
	Entry       FingerprintEntry
	Attributes  model.AttributeSet
	Parsed      bool // false when the fingerprint predates the six-field format
}

// ValueCount is one attribute value and the number of designs that use it
type ValueCount struct {
	Value string
	Count int
}

// Analysis summarises a store for the inspect command
type Analysis struct {
	Hashes       int
	Fingerprints int
	Sightings    int                     // sum of all occurrence counts
	Recurring    []Group                 // count > 1, most frequent first
	Distribution map[string][]ValueCount // attribute key -> values, most common first
}

// Analyze builds a read-only summary of the store
func (s *Store) Analyze() Analysis {
	fps := s.Fingerprints()
	hashes, _ := s.Len()

	a := Analysis{
		Hashes:       hashes,
		Fingerprints: len(fps),
		Distribution: make(map[string][]ValueCount, len(model.AttributeKeys)),
	}

	counts := make(map[string]map[string]int, len(model.AttributeKeys))
	for _, key := range model.AttributeKeys {
		counts[key] = make(map[string]int)
	}

	for fp, entry := range fps {
		a.Sightings += entry.Count

		attrs, err := model.ParseFingerprint(fp)
		g := Group{Fingerprint: fp, Entry: entry, Attributes: attrs, Parsed: err == nil}
		if g.Parsed {
			for i, v := range attrs.Values() {
				counts[model.AttributeKeys[i]][v]++
			}
		}
		if entry.Count > 1 {
			a.Recurring = append(a.Recurring, g)
		}
	}

	sort.Slice(a.Recurring, func(i, j int) bool {
		if a.Recurring[i].Entry.Count != a.Recurring[j].Entry.Count {
			return a.Recurring[i].Entry.Count > a.Recurring[j].Entry.Count
		}
		return a.Recurring[i].Fingerprint < a.Recurring[j].Fingerprint
	})

	for key, values := range counts {
		list := make([]ValueCount, 0, len(values))
		for v, c := range values {
			list = append(list, ValueCount{Value: v, Count: c})
		}
		sort.Slice(list, func(i, j int) bool {
			if list[i].Count != list[j].Count {
				return list[i].Count > list[j].Count
			}
			return list[i].Value < list[j].Value
		})
		a.Distribution[key] = list
	}

	return a
}
