// Package sanitize cleans user-entered text before it is shown as a label.
package sanitize

import (
	"regexp"
	"strings"
)

var htmlTag = regexp.MustCompile(`<[^>]*>`)

var entities = strings.NewReplacer(
	"&lt;", "<",
	"&gt;", ">",
	"&amp;", "&",
	"&quot;", `"`,
	"&#39;", "'",
	"&nbsp;", " ",
)

// StripHTML removes tags, decodes common entities and strips again so
// encoded tags cannot survive.
func StripHTML(s string) string {
	out := htmlTag.ReplaceAllString(s, "")
	out = entities.Replace(out)
	return strings.TrimSpace(htmlTag.ReplaceAllString(out, ""))
}

// Text is StripHTML with whitespace runs collapsed to one space.
func Text(s string) string {
	return strings.Join(strings.Fields(StripHTML(s)), " ")
}
