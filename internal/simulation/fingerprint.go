package simulation

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Fingerprint is the canonical form of a simulation's input configuration.
// Two input maps with the same entries produce the same Fingerprint
// regardless of insertion order. A Fingerprint is immutable.
type Fingerprint struct {
	canonical []byte
	key       string
}

// NewFingerprint canonicalizes an input map. Values must be JSON-encodable
// scalars, lists, or nested maps of those.
func NewFingerprint(inputs map[string]any) (Fingerprint, error) {
	if inputs == nil {
		inputs = map[string]any{}
	}

	// encoding/json writes map keys in sorted order at every level.
	data, err := json.Marshal(inputs)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("canonicalizing inputs: %w", err)
	}

	sum := sha256.Sum256(data)
	return Fingerprint{
		canonical: data,
		key:       hex.EncodeToString(sum[:]),
	}, nil
}

// FingerprintFromInputs builds the fingerprint the dashboard submits for a
// set of input widgets. Each widget id is a "-"-joined path into the
// simulator's settings tree; the id maps to {"sim_name": path, "value": v}.
func FingerprintFromInputs(values map[string]any) (Fingerprint, error) {
	inputs := make(map[string]any, len(values))
	for id, v := range values {
		if id == "" {
			return Fingerprint{}, fmt.Errorf("input id is empty")
		}
		inputs[id] = map[string]any{
			"sim_name": strings.Split(id, "-"),
			"value":    v,
		}
	}
	return NewFingerprint(inputs)
}

// Key returns the hex SHA-256 of the canonical encoding, used as cache key.
func (f Fingerprint) Key() string {
	return f.key
}

// Canonical returns a copy of the canonical JSON encoding.
func (f Fingerprint) Canonical() []byte {
	return append([]byte(nil), f.canonical...)
}

// IsZero reports whether the fingerprint was never built.
func (f Fingerprint) IsZero() bool {
	return f.key == ""
}

// Values decodes the canonical encoding into a fresh map the caller may modify.
func (f Fingerprint) Values() (map[string]any, error) {
	out := map[string]any{}
	if len(f.canonical) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(f.canonical, &out); err != nil {
		return nil, fmt.Errorf("decoding fingerprint: %w", err)
	}
	return out, nil
}

// String returns a short form of the key for logs.
func (f Fingerprint) String() string {
	if len(f.key) < 12 {
		return f.key
	}
	return f.key[:12]
}
