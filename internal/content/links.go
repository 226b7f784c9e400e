package content

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/oranjParker/Pawmap/internal/fetch"
	"github.com/oranjParker/Pawmap/internal/utils"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const DefaultMaxRedirectHops = 3

var (
	blockedURLPatterns = []string{
		"blog", "profile", "board", "shop", "product", "kakao", "naver", "store",
		"login", "logout", "signin", "facebook", "instagram", "youtube", "linktr",
		"policy", "privacy",
	}
	blockedTextPatterns = []string{"개인정보", "이용약관", "고객지원", "리뷰", "문의"}

	badSegment  = regexp.MustCompile(`^[0-9]+$|[가-힣]`)
	metaRefresh = regexp.MustCompile(`(?i)url\s*=\s*["']?([^"'>\s]+)`)
)

type Getter interface {
	Get(ctx context.Context, url string) (*fetch.Page, error)
}

// LinkExtractor lists the in-site pages worth reading for a homepage.
type LinkExtractor struct {
	Getter  Getter
	MaxHops int
	logger  *zap.Logger
}

func NewLinkExtractor(getter Getter, maxHops int, logger *zap.Logger) *LinkExtractor {
	if maxHops < 0 {
		maxHops = DefaultMaxRedirectHops
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LinkExtractor{Getter: getter, MaxHops: maxHops, logger: logger.Named("links")}
}

// Extract fetches seed, follows server or meta-refresh redirects up to MaxHops
// without revisiting a URL, and returns the sorted set of same-site links that
// pass the URL and anchor text filters. The seed is included when it passes.
func (e *LinkExtractor) Extract(ctx context.Context, seed string) ([]string, error) {
	visited := make(map[string]bool)
	current := seed

	for hop := 0; ; hop++ {
		visited[current] = true
		page, err := e.Getter.Get(ctx, current)
		if err != nil {
			return nil, eris.Wrapf(err, "extract links from %s", current)
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
		if err != nil {
			return nil, eris.Wrapf(err, "parse %s", current)
		}

		target := redirectTarget(page, doc, current)
		if target != "" {
			switch {
			case visited[target]:
				e.logger.Warn("redirect cycle", zap.String("url", current), zap.String("target", target))
			case hop >= e.MaxHops:
				e.logger.Warn("redirect hop limit reached", zap.String("url", current), zap.Int("hops", hop))
			default:
				e.logger.Debug("following redirect", zap.String("url", current), zap.String("target", target))
				current = target
				continue
			}
		}

		links := collectLinks(doc, current)
		if len(links) > 0 {
			e.logger.Info("links extracted", zap.String("url", current), zap.Int("count", len(links)))
		}
		return links, nil
	}
}

func collectLinks(doc *goquery.Document, base string) []string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil
	}

	found := make(map[string]struct{})
	if ValidLink(base, base) {
		found[strings.TrimRight(base, "/")] = struct{}{}
	}

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := baseURL.ResolveReference(ref)
		abs.Fragment = ""
		full := abs.String()

		if !ValidLink(full, base) {
			return
		}
		text := strings.TrimSpace(a.Text())
		for _, p := range blockedTextPatterns {
			if strings.Contains(text, p) {
				return
			}
		}
		found[strings.TrimRight(full, "/")] = struct{}{}
	})

	out := make([]string, 0, len(found))
	for l := range found {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// ValidLink applies the URL-level filters: http(s) only, same registered domain
// as base, no numeric or Hangul path segment, no blocklisted substring.
func ValidLink(link, base string) bool {
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if !utils.SameSite(link, base) {
		return false
	}
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" && badSegment.MatchString(seg) {
			return false
		}
	}
	lower := strings.ToLower(link)
	for _, p := range blockedURLPatterns {
		if strings.Contains(lower, p) {
			return false
		}
	}
	return true
}

func redirectTarget(page *fetch.Page, doc *goquery.Document, base string) string {
	raw := ""
	if page.Redirect() {
		raw = page.Header.Get("Location")
	} else {
		doc.Find("meta[http-equiv]").EachWithBreak(func(_ int, m *goquery.Selection) bool {
			if !strings.EqualFold(strings.TrimSpace(m.AttrOr("http-equiv", "")), "refresh") {
				return true
			}
			content := m.AttrOr("content", "")
			idx := strings.Index(content, ";")
			if idx < 0 {
				return false
			}
			if match := metaRefresh.FindStringSubmatch(content[idx+1:]); match != nil {
				raw = match[1]
			}
			return false
		})
	}
	if raw == "" {
		return ""
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return baseURL.ResolveReference(ref).String()
}
