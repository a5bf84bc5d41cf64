package classify

import (
	"strings"

	"github.com/ppiankov/thumbsieve/internal/model"
)

// MultiplicityPrompt asks how many distinct products an image shows
const MultiplicityPrompt = `Look at this image carefully.

How many DISTINCT watch/jewelry products are visible?

Count separate products, not:
- Same product shown from different angles
- Reflections or shadows of one product
- Product + packaging/box

Answer with ONLY ONE WORD:
- "SINGLE" if exactly one product
- "MULTIPLE" if two or more different products
- "NONE" if no products visible`

// AttributesPrompt asks for the six design attributes, one per line
var AttributesPrompt = buildAttributesPrompt()

func buildAttributesPrompt() string {
	var b strings.Builder
	b.WriteString("Analyze this watch and extract these attributes:\n\n")
	for i, key := range model.AttributeKeys {
		b.WriteString(string(rune('1' + i)))
		b.WriteString(". ")
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(strings.Join(append(append([]string(nil), model.Vocabulary[key]...), model.ValueOther), ", "))
		b.WriteString("\n")
	}
	b.WriteString("\nAnswer in this EXACT format (one per line):\n")
	for _, key := range model.AttributeKeys {
		b.WriteString(key)
		b.WriteString(": [value]\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// ParseMultiplicity reads a one-word multiplicity answer.
// SINGLE wins if the model hedges with several words.
func ParseMultiplicity(text string) (Multiplicity, error) {
	answer := strings.ToUpper(strings.TrimSpace(text))
	if answer == "" {
		return "", &Error{Kind: KindEmptyResponse}
	}
	switch {
	case strings.Contains(answer, string(Single)):
		return Single, nil
	case strings.Contains(answer, string(Multiple)):
		return Multiple, nil
	case strings.Contains(answer, string(None)):
		return None, nil
	}
	return "", &Error{Kind: KindInvalidResponse, Detail: truncate(answer)}
}

// ParseAttributes reads "KEY: value" lines into an AttributeSet.
// Unknown keys and prose are ignored; any of the six keys missing or empty
// fails with KindIncompleteAttributes.
func ParseAttributes(text string) (model.AttributeSet, error) {
	if strings.TrimSpace(text) == "" {
		return model.AttributeSet{}, &Error{Kind: KindEmptyResponse}
	}

	values := make(map[string]string, len(model.AttributeKeys))
	for _, line := range strings.Split(text, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		key = strings.ToUpper(strings.Trim(strings.TrimSpace(key), "*-#` 0123456789."))
		if _, known := model.Vocabulary[key]; !known {
			continue
		}
		values[key] = value
	}

	attrs := model.AttributeSetFromMap(values)
	if missing := attrs.Missing(); len(missing) > 0 {
		return model.AttributeSet{}, &Error{
			Kind:   KindIncompleteAttributes,
			Detail: "missing " + strings.Join(missing, ", "),
		}
	}
	return attrs, nil
}
