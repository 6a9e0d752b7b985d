// Package content computes the fingerprints used to deduplicate stored
// template payloads and attachments.
package content

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
)

// CanonicalJSON re-encodes a JSON document with sorted object keys and no
// insignificant whitespace. Numbers keep their original textual form.
func CanonicalJSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("decode json: trailing data")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// TemplateFingerprint returns the canonical form of a template payload and
// the hash identifying it.
func TemplateFingerprint(raw []byte) (canonical []byte, hash string, err error) {
	canonical, err = CanonicalJSON(raw)
	if err != nil {
		return nil, "", err
	}
	return canonical, Fingerprint(canonical), nil
}

// Fingerprint hashes raw bytes. Attachments are fingerprinted byte-for-byte.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
