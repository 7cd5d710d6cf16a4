package message

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// Identity is the fixed-size value uniquely identifying the writer that
// produced a sample. It renders as 32 lowercase hex digits.
type Identity [16]byte

// NewIdentity returns a freshly generated writer identity.
func NewIdentity() Identity { return Identity(uuid.New()) }

// ParseIdentity parses 32 hex digits into an Identity.
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	if len(s) != 2*len(id) {
		return id, fmt.Errorf("identity must be %d hex digits, got %d", 2*len(id), len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("parse identity: %w", err)
	}
	copy(id[:], b)
	return id, nil
}

func (id Identity) String() string { return hex.EncodeToString(id[:]) }

// IsZero reports whether the identity is unset.
func (id Identity) IsZero() bool { return id == Identity{} }

// RequestID is the (writer identity, sequence number) pair correlating a
// reply to the request that caused it. A reply matches a request iff both
// values are bit-identical.
type RequestID struct {
	Writer   Identity
	Sequence int64
}

// IsZero reports whether the pair is unset.
func (r RequestID) IsZero() bool { return r.Writer.IsZero() && r.Sequence == 0 }

func (r RequestID) String() string {
	return fmt.Sprintf("%s/%d", r.Writer, r.Sequence)
}
