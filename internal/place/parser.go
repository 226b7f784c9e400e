package place

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/oranjParker/Pawmap/internal/core"
	"github.com/rotisserie/eris"
)

const MapURL = "https://map.naver.com/p/entry/place/%s"

// Record keys contributed by the detail stage.
const (
	KeyMenuImageURLs = "menu_image_urls"
	KeyBusinessHours = "business_hours"
	KeyMenus         = "menus"
	KeyReviewCounts  = "review_counts"
	KeyLinks         = "links"
	KeyMapLink       = "map_link"
	KeyDescription   = "description"
	KeyKeywords      = "keywords"
	KeyConveniences  = "conveniences"
	KeyParking       = "parking"
	KeyValetParking  = "valet_parking"
)

const (
	ReviewVisitor = "방문자리뷰"
	ReviewBlog    = "블로그리뷰"
)

type Menu struct {
	Name  string `json:"name"`
	Price int    `json:"price"`
}

type Link struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Detail is everything the place page knows about one place.
type Detail struct {
	ID            string
	MenuImageURLs []string
	BusinessHours []BusinessHours
	Menus         []Menu
	ReviewCounts  map[string]int
	Links         []Link
	MapLink       string
	Description   string
	Keywords      []string
	Conveniences  []string
	Parking       bool
	ValetParking  bool
}

func (d *Detail) Record() core.Record {
	return core.Record{
		core.KeyID:       d.ID,
		KeyMenuImageURLs: d.MenuImageURLs,
		KeyBusinessHours: d.BusinessHours,
		KeyMenus:         d.Menus,
		KeyReviewCounts:  d.ReviewCounts,
		KeyLinks:         d.Links,
		KeyMapLink:       d.MapLink,
		KeyDescription:   d.Description,
		KeyKeywords:      d.Keywords,
		KeyConveniences:  d.Conveniences,
		KeyParking:       d.Parking,
		KeyValetParking:  d.ValetParking,
	}
}

// LinkURLs returns the urls of the links stored on r by the detail stage.
// MenuImageURLs returns the price image URLs of a merged record.
func MenuImageURLs(r core.Record) []string {
	return r.Strings(KeyMenuImageURLs)
}

func LinkURLs(r core.Record) []string {
	switch links := r[KeyLinks].(type) {
	case []Link:
		out := make([]string, 0, len(links))
		for _, l := range links {
			if l.URL != "" {
				out = append(out, l.URL)
			}
		}
		return out
	case []any:
		var out []string
		for _, item := range links {
			if m, ok := item.(map[string]any); ok {
				if u, _ := m["url"].(string); u != "" {
					out = append(out, u)
				}
			}
		}
		return out
	}
	return nil
}

// Parse projects the detail entity of an Apollo state onto a Detail.
// Missing sub-objects leave their fields at zero values; only a state without
// any placeDetail query is an error.
func Parse(state map[string]any) (*Detail, error) {
	g := NewGraph(state)

	root := g.Object(state["ROOT_QUERY"])
	raw, ok := FindByPrefix(root, "placeDetail")
	if !ok {
		return nil, eris.Wrap(core.ErrStateNotFound, "no placeDetail in ROOT_QUERY")
	}
	detail := g.Object(raw)
	base := g.Object(detail["base"])
	info := g.Object(g.Field(detail, "informationTab"))

	d := &Detail{
		ID:            str(base["id"]),
		MenuImageURLs: parseMenuImages(g, detail),
		BusinessHours: parseBusinessHours(g, detail),
		Menus:         parseMenus(g, detail),
		ReviewCounts: map[string]int{
			ReviewVisitor: toInt(base["visitorReviewsTotal"]),
			ReviewBlog:    toInt(g.Object(g.Field(detail, "fsasReviews"))["total"]),
		},
		Links:        parseLinks(g, detail),
		Description:  str(g.Field(detail, "description")),
		Keywords:     strs(g.List(info["keywordList"])),
		Conveniences: strs(g.List(base["conveniences"])),
	}
	if d.ID != "" {
		d.MapLink = fmt.Sprintf(MapURL, d.ID)
	}

	if parking, ok := g.Resolve(info["parkingInfo"]).(map[string]any); ok && len(parking) > 0 {
		d.Parking = parking["basicParking"] != nil
		d.ValetParking = parking["valetParking"] != nil
	}
	return d, nil
}

func parseMenuImages(g *Graph, detail map[string]any) []string {
	out := []string{}
	for _, item := range g.List(detail["menuImages"]) {
		if m, ok := item.(map[string]any); ok {
			if u := str(m["imageUrl"]); u != "" {
				out = append(out, u)
			}
		}
	}
	return out
}

func parseBusinessHours(g *Graph, detail map[string]any) []BusinessHours {
	out := []BusinessHours{}
	for _, item := range g.List(g.Field(detail, "newBusinessHours")) {
		loc, ok := item.(map[string]any)
		if !ok {
			continue
		}
		var days []DayHours
		for _, h := range g.List(loc["businessHours"]) {
			hour, ok := h.(map[string]any)
			if !ok {
				continue
			}
			bh := g.Object(hour["businessHours"])
			days = append(days, DayHours{
				Day:         str(hour["day"]),
				Hours:       FormatRange(str(bh["start"]), str(bh["end"])),
				Description: str(hour["description"]),
			})
		}
		out = append(out, Summarize(str(loc["name"]), days))
	}
	return out
}

func parseMenus(g *Graph, detail map[string]any) []Menu {
	out := []Menu{}
	for _, item := range g.List(detail["menus"]) {
		m, ok := item.(map[string]any)
		if !ok || len(m) == 0 {
			continue
		}
		out = append(out, Menu{Name: str(m["name"]), Price: toInt(m["price"])})
	}
	return out
}

func parseLinks(g *Graph, detail map[string]any) []Link {
	homepages := g.Object(g.Field(detail, "homepages"))
	entries := g.List(homepages["etc"])
	if repr := g.Resolve(homepages["repr"]); repr != nil {
		entries = append(entries, repr)
	}

	out := []Link{}
	for _, e := range entries {
		if m, ok := e.(map[string]any); ok {
			out = append(out, Link{Name: str(m["type"]), URL: str(m["url"])})
		}
	}
	return out
}

func str(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}

func strs(items []any) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := str(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// toInt coerces a price or count to an int. Empty and non-numeric values are 0.
func toInt(v any) int {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
		if f, err := n.Float64(); err == nil {
			return int(math.Trunc(f))
		}
	case float64:
		return int(math.Trunc(n))
	case int:
		return n
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
	}
	return 0
}
