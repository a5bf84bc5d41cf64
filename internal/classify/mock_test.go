package classify

import (
	"context"
	"sync/atomic"

	"github.com/ppiankov/thumbsieve/internal/model"
)

// fakeClassifier returns fixed answers and counts calls
type fakeClassifier struct {
	multiplicity    Multiplicity
	attrs           model.AttributeSet
	err             error
	multiplicityHit atomic.Int32
	attributesHit   atomic.Int32
}

func (f *fakeClassifier) CheckMultiplicity(ctx context.Context, img Image) (Multiplicity, error) {
	f.multiplicityHit.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return f.multiplicity, nil
}

func (f *fakeClassifier) ExtractAttributes(ctx context.Context, img Image) (model.AttributeSet, error) {
	f.attributesHit.Add(1)
	if f.err != nil {
		return model.AttributeSet{}, f.err
	}
	return f.attrs, nil
}

// fakeGenerator answers every prompt with text, or fails with err
type fakeGenerator struct {
	text    map[string]string
	err     error
	prompts []string
}

func (g *fakeGenerator) Name() string { return "fake" }

func (g *fakeGenerator) Generate(ctx context.Context, img Image, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return g.text[prompt], nil
}

func sampleAttrs() model.AttributeSet {
	return model.AttributeSet{
		CaseShape:   "round",
		CaseColor:   "gold",
		DialColor:   "white",
		DialMarkers: "roman",
		StrapType:   "leather",
		StrapColor:  "brown",
	}
}
