package nursery

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Response is a fully read API response.
type Response struct {
	Method   string
	Path     string
	Status   int
	Header   http.Header
	Body     []byte
	Duration time.Duration
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Expect returns a *StatusError unless the status is one of codes.
func (r *Response) Expect(codes ...int) error {
	if slices.Contains(codes, r.Status) {
		return nil
	}
	return &StatusError{Method: r.Method, Path: r.Path, Status: r.Status, Body: string(r.Body), Expected: codes}
}

// JSON decodes the body into v, naming the endpoint on failure.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decoding %s %s response (status %d): %w\nBody: %s", r.Method, r.Path, r.Status, err, truncate(r.Body))
	}
	return nil
}

// IsJSONArray reports whether the body is a top-level JSON array.
func (r *Response) IsJSONArray() bool {
	var arr []json.RawMessage
	return json.Unmarshal(r.Body, &arr) == nil
}

// JSONPath looks up a dotted path with optional indexes, e.g. "content[0].plant.name".
func (r *Response) JSONPath(path string) (any, error) {
	var data any
	if err := json.Unmarshal(r.Body, &data); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	current := data
	for _, part := range strings.Split(path, ".") {
		if idx := strings.Index(part, "["); idx != -1 {
			key := part[:idx]
			indexStr := strings.TrimSuffix(part[idx+1:], "]")
			index, err := strconv.Atoi(indexStr)
			if err != nil {
				return nil, fmt.Errorf("invalid array index: %s", indexStr)
			}

			if key != "" {
				obj, ok := current.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("expected object at %s", key)
				}
				current = obj[key]
			}

			arr, ok := current.([]any)
			if !ok {
				return nil, fmt.Errorf("expected array at %s", part)
			}
			if index < 0 || index >= len(arr) {
				return nil, fmt.Errorf("array index out of bounds: %d", index)
			}
			current = arr[index]
			continue
		}

		obj, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected object at %s", part)
		}
		var exists bool
		current, exists = obj[part]
		if !exists {
			return nil, fmt.Errorf("key not found: %s", part)
		}
	}

	return current, nil
}

// StatusError reports an unexpected status from a call that setup code
// depends on.
type StatusError struct {
	Method   string
	Path     string
	Status   int
	Body     string
	Expected []int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: expected status %v, got %d\nBody: %s", e.Method, e.Path, e.Expected, e.Status, truncate([]byte(e.Body)))
}

func truncate(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
