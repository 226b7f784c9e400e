package content

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
)

const ancestorDepth = 5

var (
	primaryTags   = set("p", "h1", "h2", "h3", "h4", "h5", "h6", "li")
	semanticTags  = set("article", "section", "aside")
	secondaryTags = set("a", "span", "strong", "em", "b", "i", "td", "th")
)

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// ExtractTexts returns the deduplicated sentences of an HTML page.
func ExtractTexts(body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "parse html")
	}
	StripNoise(doc)

	var texts []string
	for _, n := range textNodes(doc) {
		text := CleanText(goquery.NewDocumentFromNode(n).Text())
		if utf8.RuneCountInString(text) < 2 {
			continue
		}
		texts = append(texts, SplitSentences(text)...)
	}
	return RemoveDuplicates(texts), nil
}

// textNodes picks the elements that carry readable text, in document order:
// headings, paragraphs and list items always; semantic containers and divs only
// for their own text; inline tags only outside a nearby primary ancestor.
func textNodes(doc *goquery.Document) []*html.Node {
	var out []*html.Node
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		name := n.Data
		switch {
		case primaryTags[name]:
			out = append(out, n)
		case semanticTags[name]:
			if !hasChildIn(n, primaryTags) && hasDirectText(n) {
				out = append(out, n)
			}
		case name == "div":
			if !hasChildIn(n, primaryTags) && !hasChildIn(n, secondaryTags) && hasDirectText(n) {
				out = append(out, n)
			}
		case secondaryTags[name]:
			if !hasAncestorIn(n, primaryTags, ancestorDepth) && strings.TrimSpace(s.Text()) != "" {
				out = append(out, n)
			}
		}
	})
	return out
}

func hasChildIn(n *html.Node, tags map[string]bool) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && tags[c.Data] {
			return true
		}
	}
	return false
}

func hasDirectText(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode && strings.TrimSpace(c.Data) != "" {
			return true
		}
	}
	return false
}

func hasAncestorIn(n *html.Node, tags map[string]bool, depth int) bool {
	p := n.Parent
	for i := 0; p != nil && i < depth; i++ {
		if p.Type == html.ElementNode && tags[p.Data] {
			return true
		}
		p = p.Parent
	}
	return false
}
