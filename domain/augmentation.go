package domain

// Kind selects the AI transformation applied to a message.
type Kind string

const (
	KindTranslate Kind = "translate"
	KindImprove   Kind = "improve"
)

// FailureText is the fixed sentinel shown when the derived-text call
// errors. Failures are terminal state, never a retry.
func (k Kind) FailureText() string {
	switch k {
	case KindTranslate:
		return "Translation failed."
	case KindImprove:
		return "Improvement failed."
	default:
		return "Augmentation failed."
	}
}

// Valid reports whether k is a known augmentation kind.
func (k Kind) Valid() bool {
	return k == KindTranslate || k == KindImprove
}

// State tracks the lifecycle of one augmentation.
type State string

const (
	StatePending State = "pending"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

// Augmentation is an asynchronous, memoized AI-derived annotation
// attached to one message. A message carries at most one.
type Augmentation struct {
	Kind  Kind
	State State
	Value string // derived text when done, failure sentinel when failed
}

// Terminal reports whether the augmentation reached a final state.
func (a Augmentation) Terminal() bool {
	return a.State == StateDone || a.State == StateFailed
}
