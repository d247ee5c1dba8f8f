package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Do calls endpoint and decodes the response into T. A null body yields the
// zero value.
func Do[T any](ctx context.Context, g *Gateway, endpoint string, opts Options) (T, error) {
	var out T
	raw, err := g.Call(ctx, endpoint, opts)
	if err != nil {
		return out, err
	}
	if isNull(raw) {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, &Error{Method: opts.Method, Endpoint: endpoint, Message: DefaultErrorMessage, Body: raw, Err: fmt.Errorf("%w: %v", ErrDecode, err)}
	}
	return out, nil
}

// List calls endpoint and decodes a collection. See [DecodeList].
func List[T any](ctx context.Context, g *Gateway, endpoint string, opts Options, fields ...string) ([]T, error) {
	raw, err := g.Call(ctx, endpoint, opts)
	if err != nil {
		return nil, err
	}
	items, err := DecodeList[T](raw, fields...)
	if err != nil {
		return nil, &Error{Method: opts.Method, Endpoint: endpoint, Message: DefaultErrorMessage, Body: raw, Err: err}
	}
	return items, nil
}

// DecodeList accepts either a bare JSON array or an object wrapping the
// array under one of fields ("data" when none are given). null decodes to
// an empty slice.
func DecodeList[T any](raw json.RawMessage, fields ...string) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if isNull(raw) {
		return []T{}, nil
	}
	if len(raw) > 0 && raw[0] == '[' {
		var items []T
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return items, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(fields) == 0 {
		fields = []string{"data"}
	}
	for _, f := range fields {
		inner, ok := wrapper[f]
		if !ok {
			continue
		}
		if isNull(inner) {
			return []T{}, nil
		}
		var items []T
		if err := json.Unmarshal(inner, &items); err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrDecode, f, err)
		}
		return items, nil
	}
	return nil, fmt.Errorf("%w: no list under %v", ErrDecode, fields)
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
