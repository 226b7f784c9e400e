package content

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

const noiseSelector = "script, style, head, meta, noscript, iframe"

var (
	otherEscape = regexp.MustCompile(`\\([^n"])`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// StripNoise removes non-content markup in place: script-like tags, comments,
// inline event handlers and javascript: hrefs.
func StripNoise(doc *goquery.Document) {
	doc.Find(noiseSelector).Remove()

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			switch c.Type {
			case html.CommentNode:
				n.RemoveChild(c)
			case html.ElementNode:
				c.Attr = scrubAttrs(c.Attr)
				walk(c)
			default:
				walk(c)
			}
			c = next
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
}

func scrubAttrs(attrs []html.Attribute) []html.Attribute {
	kept := attrs[:0]
	for _, a := range attrs {
		key := strings.ToLower(a.Key)
		if strings.HasPrefix(key, "on") {
			continue
		}
		if key == "href" && strings.HasPrefix(strings.ToLower(strings.TrimSpace(a.Val)), "javascript:") {
			continue
		}
		kept = append(kept, a)
	}
	return kept
}

// CleanText normalizes scraped text: literal escape sequences and
// non-breaking spaces become plain characters and runs of whitespace collapse.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, `\n`, " ")
	s = strings.ReplaceAll(s, `\"`, `"`)
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = otherEscape.ReplaceAllString(s, "$1")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
