// Package scrape holds the small HTML helpers used by the adapters that read
// search pages instead of an API. Pages are treated as text: blocks are cut at
// a start marker and fields are picked out with regular expressions, which is
// enough for the handful of stable class names each service exposes.
package scrape

import (
	"html"
	"regexp"
	"strings"
)

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// Blocks splits page at every match of start. Each block runs from one match
// to the next, or to the end of the page for the last one.
func Blocks(page string, start *regexp.Regexp) []string {
	locs := start.FindAllStringIndex(page, -1)
	out := make([]string, 0, len(locs))
	for i, loc := range locs {
		end := len(page)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		out = append(out, page[loc[0]:end])
	}
	return out
}

// Text strips tags, unescapes entities and collapses whitespace.
func Text(fragment string) string {
	s := tagPattern.ReplaceAllString(fragment, " ")
	s = html.UnescapeString(s)
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}

// Attr returns the unescaped value of attribute name in the first tag of
// fragment, or "" when absent.
func Attr(fragment, name string) string {
	end := strings.Index(fragment, ">")
	if end == -1 {
		end = len(fragment)
	}
	tag := fragment[:end]
	re := regexp.MustCompile(`\s` + regexp.QuoteMeta(name) + `\s*=\s*(?:"([^"]*)"|'([^']*)')`)
	m := re.FindStringSubmatch(tag)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return html.UnescapeString(m[1])
	}
	return html.UnescapeString(m[2])
}

// Element returns the first element matched by open together with its
// content up to the closing tag name. ok is false when open does not match.
// Nested elements of the same name are not tracked.
func Element(fragment string, open *regexp.Regexp, name string) (tag, inner string, ok bool) {
	loc := open.FindStringIndex(fragment)
	if loc == nil {
		return "", "", false
	}
	rest := fragment[loc[0]:]
	gt := strings.Index(rest, ">")
	if gt == -1 {
		return rest, "", true
	}
	tag = rest[:gt+1]
	body := rest[gt+1:]
	if end := strings.Index(body, "</"+name); end != -1 {
		body = body[:end]
	}
	return tag, body, true
}

// ClassTag builds a pattern matching the opening tag of element name whose
// class attribute contains class as a whole word.
func ClassTag(name, class string) *regexp.Regexp {
	return regexp.MustCompile(`<` + name + `\b[^>]*\bclass\s*=\s*["'][^"']*\b` + regexp.QuoteMeta(class) + `\b[^"']*["'][^>]*>`)
}
