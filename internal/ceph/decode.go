package ceph

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxPayloadBytes is the largest admin socket reply accepted.
const MaxPayloadBytes = 16 << 20

// ErrDecode reports an admin socket reply that is not a JSON object.
var ErrDecode = errors.New("decode admin socket reply")

// DecodeTree parses an admin socket reply into a nested mapping.
// Numbers stay json.Number so that time values keep their exact text.
// Params: payload raw reply bytes.
// Returns: root object or error wrapping ErrDecode.
func DecodeTree(payload []byte) (map[string]any, error) {
	if len(payload) > MaxPayloadBytes {
		return nil, fmt.Errorf("%w: payload exceeds %d bytes", ErrDecode, MaxPayloadBytes)
	}

	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty reply", ErrDecode)
	}
	if trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: root must be an object", ErrDecode)
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var tree map[string]any
	if err := decoder.Decode(&tree); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after object", ErrDecode)
	}

	return tree, nil
}
