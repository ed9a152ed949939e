package steps

import (
	"crypto/rand"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var placeholder = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Variables expands {{...}} placeholders in step arguments so entity names
// can stay unique across repeated runs against the same backend.
//
// Supported placeholders:
//   - {{uuid}} - random UUID v4
//   - {{timestamp}} - current RFC 3339 time
//   - {{timestamp:unix}} - Unix seconds
//   - {{random:N}} - random alphanumeric string of length N
//   - {{random:N:numeric}} - random digits of length N
//   - {{sequence:name}} - counter per name, starting at 1
//   - {{name}} - a value stored with Set
//
// A given argument text expands to the same result for the lifetime of the
// Variables, so "Rose{{random:4}}" names one entity in every step of a
// scenario.
type Variables struct {
	mu        sync.Mutex
	values    map[string]string
	sequences map[string]int
	expanded  map[string]string
}

func NewVariables() *Variables {
	return &Variables{
		values:    make(map[string]string),
		sequences: make(map[string]int),
		expanded:  make(map[string]string),
	}
}

func (v *Variables) Set(key, value string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.values[key] = value
}

func (v *Variables) Get(key string) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	val, ok := v.values[key]
	return val, ok
}

// Replace expands every placeholder in input. Unknown placeholders are left
// untouched.
func (v *Variables) Replace(input string) string {
	if !strings.Contains(input, "{{") {
		return input
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if out, ok := v.expanded[input]; ok {
		return out
	}

	out := placeholder.ReplaceAllStringFunc(input, func(match string) string {
		name := strings.TrimSuffix(strings.TrimPrefix(match, "{{"), "}}")
		if generated, ok := v.generate(name); ok {
			return generated
		}
		if val, ok := v.values[name]; ok {
			return val
		}
		return match
	})
	v.expanded[input] = out
	return out
}

func (v *Variables) generate(name string) (string, bool) {
	switch {
	case name == "uuid":
		return uuid.New().String(), true
	case name == "timestamp":
		return time.Now().UTC().Format(time.RFC3339), true
	case name == "timestamp:unix":
		return strconv.FormatInt(time.Now().Unix(), 10), true
	case strings.HasPrefix(name, "random:"):
		return randomString(name)
	case strings.HasPrefix(name, "sequence:"):
		seq := strings.TrimPrefix(name, "sequence:")
		if seq == "" {
			return "", false
		}
		v.sequences[seq]++
		return strconv.Itoa(v.sequences[seq]), true
	}
	return "", false
}

// randomString handles random:N and random:N:numeric.
func randomString(name string) (string, bool) {
	parts := strings.Split(name, ":")
	length, err := strconv.Atoi(parts[1])
	if err != nil || length <= 0 {
		return "", false
	}

	charset := "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	if len(parts) >= 3 && parts[2] == "numeric" {
		charset = "0123456789"
	}

	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", false
	}
	for i := range buf {
		buf[i] = charset[int(buf[i])%len(charset)]
	}
	return string(buf), true
}
