// Package ai attaches asynchronous, memoized AI-derived annotations
// (translation, grammar improvement) to chat messages.
package ai

import "context"

// Provider is the external derived-text collaborator: given a prompt,
// it returns best-effort transformed text. Calls may fail; the
// augmentor never issues more than one concurrent call per message.
type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
