package core

import "fmt"

// InteractionType classifies a conversational exchange and governs the
// persistence policy applied by the conversation store. The set is closed;
// policy sites switch exhaustively over it.
type InteractionType int

const (
	// InteractionChat is a long-lived coaching conversation: durable history
	// pruned to a configured tail.
	InteractionChat InteractionType = iota
	// InteractionTransaction is a short task exchange (e.g. logging a meal):
	// in-memory only, discarded when the exchange completes.
	InteractionTransaction
	// InteractionHybrid is durable for the active exchange window and
	// discarded or archived after an inactivity timeout.
	InteractionHybrid
)

// String returns the canonical lowercase name of the interaction type.
func (t InteractionType) String() string {
	switch t {
	case InteractionChat:
		return "chat"
	case InteractionTransaction:
		return "transaction"
	case InteractionHybrid:
		return "hybrid"
	default:
		return fmt.Sprintf("InteractionType(%d)", int(t))
	}
}

// ParseInteractionType converts a config / wire string into the enum.
func ParseInteractionType(s string) (InteractionType, error) {
	switch s {
	case "chat":
		return InteractionChat, nil
	case "transaction":
		return InteractionTransaction, nil
	case "hybrid":
		return InteractionHybrid, nil
	default:
		return 0, fmt.Errorf("unknown interaction type %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler for config serialization.
func (t InteractionType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *InteractionType) UnmarshalText(b []byte) error {
	v, err := ParseInteractionType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
