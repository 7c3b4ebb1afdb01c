// Package integrity computes content-addressable checksums for tamper detection.
package integrity

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Canonicalize serializes a record as JSON with object keys sorted at every level.
// Structs are first flattened through their JSON form, so field order in the Go
// type and map insertion order never affect the output.
func Canonicalize(record any) ([]byte, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}

	// encoding/json writes map keys in sorted order
	canonical, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("marshal canonical form: %w", err)
	}
	return canonical, nil
}

// ComputeChecksum returns the hex SHA-256 of the record's canonical form
func ComputeChecksum(record any) (string, error) {
	canonical, err := Canonicalize(record)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Verify recomputes the checksum of record and compares it with expected
func Verify(record any, expected string) (bool, error) {
	actual, err := ComputeChecksum(record)
	if err != nil {
		return false, err
	}
	return actual == expected, nil
}
