package ai

import (
	"blimp/domain"
	"fmt"

	"github.com/abadojack/whatlanggo"
)

// Prompt builds the provider request for one augmentation kind.
//
// Translation names the detected source language so the model does not
// have to guess it; improvement asks for the corrected text and
// nothing else, which keeps the response usable as a drop-in
// annotation.
func Prompt(kind domain.Kind, text string) string {
	switch kind {
	case domain.KindTranslate:
		info := whatlanggo.Detect(text)
		code := info.Lang.Iso6391()
		if code == "" {
			return fmt.Sprintf("Rewrite the following text as English. Return only the rewritten text:\n\n%s", text)
		}
		return fmt.Sprintf("Rewrite the following text (language code %q) as English. Return only the rewritten text:\n\n%s", code, text)
	case domain.KindImprove:
		return fmt.Sprintf("Correct the spelling and grammar of the following text. Preserve its meaning and return only the corrected text:\n\n%s", text)
	default:
		return text
	}
}
