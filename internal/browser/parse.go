package browser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/oranjParker/Pawmap/internal/place"
)

var (
	days       = []string{"월", "화", "수", "목", "금", "토", "일"}
	timeRange  = regexp.MustCompile(`\d{2}:\d{2}\s*-\s*\d{2}:\d{2}`)
	excluded   = []string{"cafe.naver.com", "pf.kakao.com"}
	linkLabels = []struct{ host, label string }{
		{"instagram.com", "인스타그램"},
		{"blog.naver.com", "블로그"},
		{"youtube.com", "유튜브"},
		{"youtu.be", "유튜브"},
	}
)

const (
	homepageLabel = "홈페이지"
	reviewSep     = " 리뷰 "
)

// ParseHours reads the per-day opening table of the home tab. When the
// toggle was not present only the collapsed summary exists, and it is used
// only if it reads "매일".
func ParseHours(doc *goquery.Document, expanded bool) map[string]string {
	hours := make(map[string]string, len(days))
	for _, d := range days {
		hours[d] = ""
	}

	if !expanded {
		summary := doc.Find("div.U7pYf").First().Text()
		if strings.Contains(summary, "매일") {
			if m := timeRange.FindString(summary); m != "" {
				for _, d := range days {
					hours[d] = m
				}
			}
		}
		return hours
	}

	doc.Find("a.gKP9i.RMgN0 .A_cdD").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		children := row.Children()
		if children.Length() < 2 {
			return true
		}
		label := children.Eq(0)
		if goquery.NodeName(label) == "em" {
			return true
		}
		value := formatHours(children.Eq(1))
		name := strings.TrimSpace(label.Text())

		if strings.Contains(name, "매일") {
			for _, d := range days {
				hours[d] = value
			}
			return false
		}
		if _, ok := hours[name]; ok {
			hours[name] = value
		}
		return true
	})
	return hours
}

func formatHours(s *goquery.Selection) string {
	if goquery.NodeName(s) != "ul" {
		return strings.TrimSpace(s.Text())
	}
	var lines []string
	s.Children().Each(func(_ int, li *goquery.Selection) {
		spans := li.Find("span")
		if spans.Length() < 2 {
			return
		}
		lines = append(lines, "["+spans.Eq(0).Text()+"] "+spans.Eq(1).Text())
	})
	return strings.Join(lines, "\n")
}

// SummarizeHours turns a per-day table into the same summary the state
// parser produces. A day without a time range counts as its description.
func SummarizeHours(hours map[string]string) place.BusinessHours {
	rows := make([]place.DayHours, 0, len(days))
	for _, d := range days {
		v := hours[d]
		if m := timeRange.FindString(v); m != "" {
			rows = append(rows, place.DayHours{Day: d, Hours: normalizeRange(m)})
			continue
		}
		rows = append(rows, place.DayHours{Day: d, Description: v})
	}
	return place.Summarize(place.DefaultHours, rows)
}

func normalizeRange(r string) string {
	parts := strings.SplitN(r, "-", 2)
	return place.FormatRange(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
}

// ParseReviews reads "방문자 리뷰 128" style anchors into counts keyed like
// the state parser ("방문자리뷰").
func ParseReviews(doc *goquery.Document) map[string]int {
	counts := make(map[string]int)
	doc.Find("span.PXMot > a").Each(func(_ int, a *goquery.Selection) {
		name, count, ok := strings.Cut(strings.TrimSpace(a.Text()), reviewSep)
		if !ok {
			return
		}
		n, err := strconv.Atoi(strings.ReplaceAll(strings.TrimSpace(count), ",", ""))
		if err != nil {
			return
		}
		counts[strings.TrimSpace(name)+"리뷰"] = n
	})
	return counts
}

// ParseImageCount reads the carousel position label ("1 / 12") and returns
// the total.
func ParseImageCount(label string) int {
	parts := strings.Split(label, "/")
	n, err := strconv.Atoi(strings.TrimSpace(parts[len(parts)-1]))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Information is what the information tab adds to a place.
type Information struct {
	Description  string
	Conveniences []string
	Keywords     []string
	Links        []place.Link
	Parking      bool
	ValetParking bool
}

func ParseInformation(doc *goquery.Document) Information {
	info := Information{
		Description:  strings.TrimSpace(doc.Find("div.T8RFa").First().Text()),
		Conveniences: texts(doc.Find("div.owG4q")),
		Keywords:     texts(doc.Find("div.FbEj5 > .RLvZP")),
		Links:        []place.Link{},
	}

	doc.Find("a.eBr5V").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || href == "" {
			return
		}
		for _, ex := range excluded {
			if strings.Contains(href, ex) {
				return
			}
		}
		info.Links = append(info.Links, place.Link{Name: labelFor(href), URL: href})
	})

	doc.Find("div.SGJcE .TZ6eS").Each(func(_ int, s *goquery.Selection) {
		t := s.Text()
		switch {
		case strings.Contains(t, "주차가능"):
			info.Parking = true
		case strings.Contains(t, "발렛가능"):
			info.ValetParking = true
		}
	})
	return info
}

func labelFor(href string) string {
	for _, l := range linkLabels {
		if strings.Contains(href, l.host) {
			return l.label
		}
	}
	return homepageLabel
}

func texts(s *goquery.Selection) []string {
	out := []string{}
	s.Each(func(_ int, el *goquery.Selection) {
		if t := strings.TrimSpace(el.Text()); t != "" {
			out = append(out, t)
		}
	})
	return out
}
