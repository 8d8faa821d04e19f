// Package parse holds tolerant extraction helpers shared by the site
// extractors. None of the helpers fail: unparseable input yields nil or "".
package parse

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var numberPattern = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?|\.\d+`)

// Float extracts the first number in s, ignoring currency symbols and
// thousands separators. "$1,234/hr" yields 1234.
func Float(s string) *float64 {
	m := numberPattern.FindString(s)
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return nil
	}
	return &v
}

// Int extracts the first integer in s.
func Int(s string) *int {
	f := Float(s)
	if f == nil {
		return nil
	}
	v := int(*f)
	return &v
}

// Match returns the first capture group of re in s, or "".
func Match(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// MatchFloat applies re and parses the capture as a float.
func MatchFloat(re *regexp.Regexp, s string) *float64 {
	return Float(Match(re, s))
}

// MatchInt applies re and parses the capture as an integer.
func MatchInt(re *regexp.Regexp, s string) *int {
	return Int(Match(re, s))
}

// Text returns the trimmed text of the first node in sel.
func Text(sel *goquery.Selection) string {
	return strings.TrimSpace(sel.First().Text())
}

// OwnText returns the trimmed text of the first node in sel, excluding
// descendant elements.
func OwnText(sel *goquery.Selection) string {
	first := sel.First()
	var b strings.Builder
	first.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			b.WriteString(c.Text())
		}
	})
	return strings.TrimSpace(b.String())
}

// Attr returns the trimmed attribute of the first node in sel.
func Attr(sel *goquery.Selection, name string) string {
	v, _ := sel.First().Attr(name)
	return strings.TrimSpace(v)
}

// Texts returns the trimmed, non-empty texts of every node in sel.
func Texts(sel *goquery.Selection) []string {
	out := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			out = append(out, t)
		}
	})
	return out
}

// Attrs returns the trimmed, non-empty attribute values of every node in sel.
func Attrs(sel *goquery.Selection, name string) []string {
	out := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr(name); ok && strings.TrimSpace(v) != "" {
			out = append(out, strings.TrimSpace(v))
		}
	})
	return out
}

// Absolute resolves ref against base. It returns ref unchanged when either
// side cannot be parsed.
func Absolute(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// Slug lowercases s and joins its words with hyphens.
func Slug(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "-")
}

// FirstFloat returns the first non-nil value.
func FirstFloat(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

// FirstInt returns the first non-nil value.
func FirstInt(values ...*int) *int {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

// FirstString returns the first non-blank value, trimmed.
func FirstString(values ...string) string {
	for _, v := range values {
		if t := strings.TrimSpace(v); t != "" {
			return t
		}
	}
	return ""
}
