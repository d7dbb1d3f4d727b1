package types

import "fmt"

// BlockTag represents a named block reference accepted by the node.
type BlockTag string

const (
	// TagLatest refers to the most recent block (no finality guarantees)
	TagLatest BlockTag = "latest"

	// TagSafe refers to the safe block (medium level of finality)
	TagSafe BlockTag = "safe"

	// TagFinalized refers to the finalized block (highest level of finality)
	TagFinalized BlockTag = "finalized"

	// TagPending refers to the pending block
	TagPending BlockTag = "pending"
)

// String returns the string representation of BlockTag.
func (t BlockTag) String() string {
	return string(t)
}

// IsValid checks if the BlockTag value is valid.
func (t BlockTag) IsValid() bool {
	switch t {
	case TagLatest, TagSafe, TagFinalized, TagPending:
		return true
	default:
		return false
	}
}

// ParseBlockTag parses a string into a BlockTag type.
func ParseBlockTag(s string) (BlockTag, error) {
	t := BlockTag(s)
	if !t.IsValid() {
		return "", fmt.Errorf("invalid block tag: %s (must be one of: latest, safe, finalized, pending)", s)
	}
	return t, nil
}
