// Package classify asks a vision model whether a thumbnail shows a single
// watch and, if so, which of the six design attributes it has.
package classify

import (
	"context"
	"strings"

	"github.com/ppiankov/thumbsieve/internal/model"
)

// Image is a downloaded thumbnail as sent to the model
type Image struct {
	Data     []byte
	MIMEType string // e.g. image/jpeg
}

// Format returns the MIME subtype ("jpeg", "png", ...)
func (i Image) Format() string {
	if _, sub, ok := strings.Cut(i.MIMEType, "/"); ok && sub != "" {
		return sub
	}
	return "jpeg"
}

// Multiplicity is the answer to "how many products are in this image"
type Multiplicity string

const (
	Single   Multiplicity = "SINGLE"
	Multiple Multiplicity = "MULTIPLE"
	None     Multiplicity = "NONE"
)

// Purpose names the two questions asked about every image
type Purpose string

const (
	PurposeMultiplicity Purpose = "multiplicity"
	PurposeAttributes   Purpose = "attributes"
)

// Classifier answers both questions about an image.
// Every failure is an *Error.
type Classifier interface {
	CheckMultiplicity(ctx context.Context, img Image) (Multiplicity, error)
	ExtractAttributes(ctx context.Context, img Image) (model.AttributeSet, error)
}

// Generator is a vision model backend: one image plus one prompt in, text out.
// Implementations map rate limiting to KindRateLimit and everything else to
// KindAPIError.
type Generator interface {
	Name() string
	Generate(ctx context.Context, img Image, prompt string) (string, error)
}

// promptClassifier turns a Generator into a Classifier with the fixed prompts
type promptClassifier struct {
	gen Generator
}

// New wraps a backend in the prompt/parse layer
func New(gen Generator) Classifier {
	return &promptClassifier{gen: gen}
}

func (c *promptClassifier) CheckMultiplicity(ctx context.Context, img Image) (Multiplicity, error) {
	text, err := c.gen.Generate(ctx, img, MultiplicityPrompt)
	if err != nil {
		return "", wrapBackend(err)
	}
	return ParseMultiplicity(text)
}

func (c *promptClassifier) ExtractAttributes(ctx context.Context, img Image) (model.AttributeSet, error) {
	text, err := c.gen.Generate(ctx, img, AttributesPrompt)
	if err != nil {
		return model.AttributeSet{}, wrapBackend(err)
	}
	return ParseAttributes(text)
}
