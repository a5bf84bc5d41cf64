package model

import (
	"fmt"
	"strings"
)

// Attribute keys as they appear in classifier responses, in fingerprint order
const (
	KeyCaseShape   = "CASE_SHAPE"
	KeyCaseColor   = "CASE_COLOR"
	KeyDialColor   = "DIAL_COLOR"
	KeyDialMarkers = "DIAL_MARKERS"
	KeyStrapType   = "STRAP_TYPE"
	KeyStrapColor  = "STRAP_COLOR"
)

// AttributeKeys lists the six required attribute keys in fingerprint order
var AttributeKeys = []string{
	KeyCaseShape,
	KeyCaseColor,
	KeyDialColor,
	KeyDialMarkers,
	KeyStrapType,
	KeyStrapColor,
}

// FingerprintSeparator joins attribute values inside a fingerprint
const FingerprintSeparator = "|"

// ValueOther is the fallback value every vocabulary accepts
const ValueOther = "other"

// CaseShape is the shape of the watch case
type CaseShape string

// CaseColor is the colour of the watch case
type CaseColor string

// DialColor is the colour of the dial face
type DialColor string

// DialMarkers is the style of hour markers on the dial
type DialMarkers string

// StrapType is the fastening mechanism
type StrapType string

// StrapColor is the colour of the fastening mechanism
type StrapColor string

// Vocabulary holds the allowed values per attribute key (ValueOther is implied)
var Vocabulary = map[string][]string{
	KeyCaseShape:   {"round", "square", "rectangular", "oval", "triangular"},
	KeyCaseColor:   {"gold", "silver", "rose-gold", "black"},
	KeyDialColor:   {"white", "black", "gold", "blue", "pink"},
	KeyDialMarkers: {"roman", "arabic", "minimalist", "crystals", "mixed"},
	KeyStrapType:   {"metal-bracelet", "leather", "fabric"},
	KeyStrapColor:  {"gold", "silver", "black", "brown", "tan", "pink"},
}

// AttributeSet describes the visual design of one watch.
// All six fields are required; a set with an empty field is not a valid design.
type AttributeSet struct {
	CaseShape   CaseShape   `json:"case_shape"`
	CaseColor   CaseColor   `json:"case_color"`
	DialColor   DialColor   `json:"dial_color"`
	DialMarkers DialMarkers `json:"dial_markers"`
	StrapType   StrapType   `json:"strap_type"`
	StrapColor  StrapColor  `json:"strap_color"`
}

// FingerprintKey is the semantic "same design" key derived from an AttributeSet
type FingerprintKey string

// Values returns the attribute values in fingerprint order
func (a AttributeSet) Values() []string {
	return []string{
		string(a.CaseShape),
		string(a.CaseColor),
		string(a.DialColor),
		string(a.DialMarkers),
		string(a.StrapType),
		string(a.StrapColor),
	}
}

// Missing returns the keys whose values are empty
func (a AttributeSet) Missing() []string {
	var missing []string
	for i, v := range a.Values() {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, AttributeKeys[i])
		}
	}
	return missing
}

// Validate reports an error if any of the six fields is empty
func (a AttributeSet) Validate() error {
	if missing := a.Missing(); len(missing) > 0 {
		return fmt.Errorf("missing attributes: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Fingerprint derives the canonical fingerprint of an attribute set.
// The field order is fixed, so equal sets always yield equal keys.
func Fingerprint(a AttributeSet) FingerprintKey {
	return FingerprintKey(strings.Join(a.Values(), FingerprintSeparator))
}

// AttributeSetFromMap builds an AttributeSet from key/value pairs.
// Values are lowercased and values outside the vocabulary become "other";
// absent keys stay empty so Validate can reject them.
func AttributeSetFromMap(m map[string]string) AttributeSet {
	get := func(key string) string {
		return NormalizeValue(key, m[key])
	}
	return AttributeSet{
		CaseShape:   CaseShape(get(KeyCaseShape)),
		CaseColor:   CaseColor(get(KeyCaseColor)),
		DialColor:   DialColor(get(KeyDialColor)),
		DialMarkers: DialMarkers(get(KeyDialMarkers)),
		StrapType:   StrapType(get(KeyStrapType)),
		StrapColor:  StrapColor(get(KeyStrapColor)),
	}
}

// NormalizeValue maps a raw classifier value onto the vocabulary for key
func NormalizeValue(key, raw string) string {
	v := strings.ToLower(strings.TrimSpace(raw))
	v = strings.Trim(v, "[]\"'.*` ")
	v = strings.Join(strings.Fields(v), "-")
	if v == "" {
		return ""
	}
	if v == ValueOther {
		return v
	}
	for _, allowed := range Vocabulary[key] {
		if v == allowed {
			return v
		}
	}
	return ValueOther
}

// ParseFingerprint splits a fingerprint back into an attribute set
func ParseFingerprint(fp FingerprintKey) (AttributeSet, error) {
	parts := strings.Split(string(fp), FingerprintSeparator)
	if len(parts) != len(AttributeKeys) {
		return AttributeSet{}, fmt.Errorf("fingerprint %q has %d parts, want %d", fp, len(parts), len(AttributeKeys))
	}
	return AttributeSet{
		CaseShape:   CaseShape(parts[0]),
		CaseColor:   CaseColor(parts[1]),
		DialColor:   DialColor(parts[2]),
		DialMarkers: DialMarkers(parts[3]),
		StrapType:   StrapType(parts[4]),
		StrapColor:  StrapColor(parts[5]),
	}, nil
}
