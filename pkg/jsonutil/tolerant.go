package jsonutil

import (
	"encoding/json"
	"fmt"
	"html"
	"regexp"
)

var (
	// JS-style view flags the portal leaks into its JSON (viewDashboard:true,).
	jsViewFieldRe = regexp.MustCompile(`\s*view[A-Za-z]+\s*:\s*[^,\n]+,?`)
	// Leftover boolean expressions (": true && false &&  ...,").
	boolExprRe = regexp.MustCompile(`\s*:\s*true\s*&&.*?,`)
	// Backslashes that do not start a valid JSON escape sequence.
	badEscapeRe = regexp.MustCompile(`\\([^"\\/bfnrtu])`)
)

// Sanitize repairs the known defects in the monitoring portal's hand-built
// JSON: JS-style view fields, dangling boolean expressions, invalid backslash
// escapes and HTML entities.
func Sanitize(text string) string {
	text = jsViewFieldRe.ReplaceAllString(text, "")
	text = boolExprRe.ReplaceAllString(text, ": false,")
	text = badEscapeRe.ReplaceAllString(text, `\\$1`)
	return html.UnescapeString(text)
}

// Decode unmarshals text into v, retrying once on a sanitized copy when the
// payload is not valid JSON as delivered.
func Decode(text string, v any) error {
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(Sanitize(text)), v); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}
