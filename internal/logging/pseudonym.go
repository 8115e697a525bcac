package logging

import (
	"encoding/binary"
	"encoding/hex"
	"strconv"

	"golang.org/x/crypto/blake2b"
)

// Pseudonymizer turns platform user ids into stable, keyed tokens so logs
// can correlate a user's activity without recording who they are.
type Pseudonymizer struct {
	key []byte
}

// NewPseudonymizer returns a Pseudonymizer keyed with key. Keys longer than
// BLAKE2b accepts are compressed first. An empty key still hashes, it only
// makes the tokens guessable.
func NewPseudonymizer(key string) *Pseudonymizer {
	k := []byte(key)
	if len(k) > blake2b.Size {
		sum := blake2b.Sum512(k)
		k = sum[:]
	}
	return &Pseudonymizer{key: k}
}

// UserID returns the 16 hex character token for id. A nil Pseudonymizer
// returns the id unchanged, which is what local debugging wants.
func (p *Pseudonymizer) UserID(id int64) string {
	if p == nil {
		return strconv.FormatInt(id, 10)
	}

	h, err := blake2b.New(8, p.key)
	if err != nil {
		return "invalid-key"
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(id))
	h.Write(buf[:])

	return hex.EncodeToString(h.Sum(nil))
}
