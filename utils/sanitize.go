package utils

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	richText  = bluemonday.UGCPolicy()
	plainText = bluemonday.StrictPolicy()
)

// Sanitize keeps safe user-generated HTML, used for quiz descriptions.
func Sanitize(input string) string {
	return strings.TrimSpace(richText.Sanitize(input))
}

// SanitizePlain strips all markup, used for titles, prompts and options. The
// result is plain text, so the entities the policy emits are decoded again and
// escaping is left to whoever renders it.
func SanitizePlain(input string) string {
	return strings.TrimSpace(html.UnescapeString(plainText.Sanitize(input)))
}
