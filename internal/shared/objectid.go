package shared

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// ObjectIDLength is the length of a hex encoded object id.
const ObjectIDLength = 24

var objectIDCounter atomic.Uint32

func init() {
	var seed [4]byte
	_, _ = rand.Read(seed[:])
	objectIDCounter.Store(binary.BigEndian.Uint32(seed[:]))
}

// NewObjectID returns a 12-byte identifier rendered as 24 lowercase hex characters:
// 4 bytes of unix seconds, 5 random bytes and a 3 byte counter.
func NewObjectID() string {
	var b [12]byte
	binary.BigEndian.PutUint32(b[0:4], uint32(time.Now().Unix()))
	_, _ = rand.Read(b[4:9])
	c := objectIDCounter.Add(1)
	b[9] = byte(c >> 16)
	b[10] = byte(c >> 8)
	b[11] = byte(c)
	return hex.EncodeToString(b[:])
}

// ParseObjectID normalises id and rejects anything that is not a 24 character hex string.
func ParseObjectID(id string) (string, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if len(id) != ObjectIDLength {
		return "", fmt.Errorf("id %q: %w", id, ErrInvalidReference)
	}
	if _, err := hex.DecodeString(id); err != nil {
		return "", fmt.Errorf("id %q: %w", id, ErrInvalidReference)
	}
	return id, nil
}
