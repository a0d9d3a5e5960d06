package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/jdziat/simple-tube-jobs/pkg/core"
	"github.com/jdziat/simple-tube-jobs/pkg/security"
)

var nullLiteral = []byte("null")

// Encode serializes a unit of work. args must marshal to a JSON object
// (a map with string keys or a struct); nil encodes as an empty object.
func Encode(name string, args any, style core.Style, opts core.StyleOptions) ([]byte, error) {
	if err := security.ValidateJobName(name); err != nil {
		return nil, err
	}

	argsJSON, err := marshalObject(args)
	if err != nil {
		return nil, fmt.Errorf("jobs: failed to marshal args: %w", err)
	}

	payload, err := json.Marshal([]any{
		name,
		argsJSON,
		style == core.StyleExtended,
		opts,
	})
	if err != nil {
		return nil, fmt.Errorf("jobs: failed to marshal envelope: %w", err)
	}

	if len(payload) > security.MaxEnvelopeSize {
		return nil, core.ErrEnvelopeTooLarge
	}
	return payload, nil
}

// EncodeEnvelope serializes env.
func EncodeEnvelope(env core.Envelope) ([]byte, error) {
	return Encode(env.Name, env.Args, env.Style, env.Options)
}

func marshalObject(v any) (json.RawMessage, error) {
	if v == nil {
		return json.RawMessage("{}"), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, nullLiteral) {
		return json.RawMessage("{}"), nil
	}
	if len(b) == 0 || b[0] != '{' {
		return nil, fmt.Errorf("args must encode to a JSON object, got %s", truncate(b))
	}
	return b, nil
}

// Decode parses a payload produced by Encode. Any payload that is not a
// [string, object, bool, object] array fails with an error wrapping
// core.ErrMalformedEnvelope, with one exception: the two-element
// [string, object] form written by classic-only producers is accepted and
// decodes as a classic unit with zero StyleOptions. Every other length,
// including one and three elements, is malformed.
func Decode(payload []byte) (core.Envelope, error) {
	var env core.Envelope

	var fields []json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return env, malformed("not a JSON array: %v", err)
	}
	if len(fields) != 4 && len(fields) != 2 {
		return env, malformed("expected 4 elements, got %d", len(fields))
	}

	if err := json.Unmarshal(fields[0], &env.Name); err != nil || isNull(fields[0]) {
		return env, malformed("job name must be a string")
	}

	args, err := decodeArgs(fields[1])
	if err != nil {
		return env, err
	}
	env.Args = args

	if len(fields) == 2 {
		return env, nil
	}

	var extended bool
	if err := json.Unmarshal(fields[2], &extended); err != nil || isNull(fields[2]) {
		return env, malformed("style flag must be a boolean")
	}
	if extended {
		env.Style = core.StyleExtended
	}

	if !isNull(fields[3]) {
		if trimmed := bytes.TrimSpace(fields[3]); len(trimmed) == 0 || trimmed[0] != '{' {
			return env, malformed("style options must be an object")
		}
		if err := json.Unmarshal(fields[3], &env.Options); err != nil {
			return env, malformed("style options: %v", err)
		}
	}

	return env, nil
}

func decodeArgs(raw json.RawMessage) (map[string]any, error) {
	args := make(map[string]any)
	if isNull(raw) {
		return args, nil
	}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, malformed("args must be an object")
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, malformed("args: %v", err)
	}
	return args, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), nullLiteral)
}

func malformed(format string, a ...any) error {
	return fmt.Errorf("%w: %s", core.ErrMalformedEnvelope, fmt.Sprintf(format, a...))
}

func truncate(b []byte) string {
	if len(b) > 32 {
		return string(b[:32]) + "..."
	}
	return string(b)
}
