package service

import (
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// RenderTemplate substitutes {{name}}-style placeholders from vars.
// Placeholders with no entry in vars are left intact so the user can see
// what their template referenced.
func RenderTemplate(text string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		key := placeholderRe.FindStringSubmatch(match)[1]
		if v, ok := vars[key]; ok {
			return v
		}
		return match
	})
}

// HTMLBody converts rendered plain text to the HTML fragment the message
// builder wraps: newlines become <br>, nothing else is touched.
func HTMLBody(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\n", "<br>")
}
