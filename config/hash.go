package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Hash returns a stable content hash of the record: sha256 over the canonical
// JSON serialisation (struct field order is fixed, map keys are sorted by the
// encoder), truncated to 16 hex characters. Used as the daemon staleness
// signal: any field change flips the hash.
func (r *Record) Hash() string {
	data, err := json.Marshal(r)
	if err != nil {
		// Record is plain data; marshalling cannot fail for valid catalogues.
		data = []byte(r.Name)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}
