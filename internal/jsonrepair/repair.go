// Package jsonrepair recovers structured data from slightly malformed LLM
// output: trailing commas, unbalanced braces or brackets, and stray
// whitespace. One repair pass is attempted; anything worse is an error.
package jsonrepair

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrUnrepairable is returned when the body cannot be decoded after repair.
var ErrUnrepairable = errors.New("json body unrepairable")

var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// Decode unmarshals body into v, applying the repair pass when a direct
// decode fails. The repair removes trailing commas, closes unbalanced
// braces/brackets counted during a scan, and normalizes whitespace.
func Decode(body string, v any) error {
	candidate := extractObject(body)
	if json.Unmarshal([]byte(candidate), v) == nil {
		return nil
	}
	repaired := Repair(candidate)
	if !gjson.Valid(repaired) {
		return ErrUnrepairable
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return ErrUnrepairable
	}
	return nil
}

// Repair applies the single repair pass and returns the candidate body.
func Repair(body string) string {
	s := strings.TrimSpace(body)
	s = trailingCommaRe.ReplaceAllString(s, "$1")

	// Count unbalanced openers outside string literals and close them in
	// reverse opening order.
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{' || ch == '[':
			stack = append(stack, ch)
		case ch == '}' || ch == ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if inString {
		s += `"`
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			s += "}"
		} else {
			s += "]"
		}
	}
	// Closing may have turned a truncation-trailing comma into `,}`.
	return trailingCommaRe.ReplaceAllString(s, "$1")
}

// extractObject slices out the first JSON object or array from free text,
// tolerating LLM chatter and markdown fences around the payload.
func extractObject(body string) string {
	s := strings.TrimSpace(body)
	if idx := strings.Index(s, "```json"); idx >= 0 {
		s = s[idx+len("```json"):]
	} else if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)
	obj := strings.IndexByte(s, '{')
	arr := strings.IndexByte(s, '[')
	start := obj
	if arr >= 0 && (obj < 0 || arr < obj) {
		start = arr
	}
	if start > 0 {
		s = s[start:]
	}
	return s
}
