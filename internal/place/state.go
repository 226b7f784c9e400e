package place

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/oranjParker/Pawmap/internal/core"
	"github.com/rotisserie/eris"
)

const (
	StateVariable = "window.__APOLLO_STATE__"
	MaxRefDepth   = 8
	refKey        = "__ref"
)

// ExtractState finds the script that assigns variable and decodes the JSON
// object on the right-hand side. Only the first complete value is read, so
// trailing statements in the same script are ignored.
func ExtractState(body []byte, variable string) (map[string]any, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "parse detail html")
	}

	var state map[string]any
	var decodeErr error
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src := s.Text()
		idx := strings.Index(src, variable)
		if idx < 0 {
			return true
		}
		rest := strings.TrimLeft(src[idx+len(variable):], " \t\r\n")
		if !strings.HasPrefix(rest, "=") {
			return true
		}

		dec := json.NewDecoder(strings.NewReader(rest[1:]))
		dec.UseNumber()
		if err := dec.Decode(&state); err != nil {
			decodeErr = eris.Wrapf(err, "decode %s", variable)
			return true
		}
		return false
	})

	if state != nil {
		return state, nil
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return nil, eris.Wrapf(core.ErrStateNotFound, "%s not assigned in page", variable)
}

// Graph is the normalized client cache: entities keyed by "Type:id" with
// {"__ref": key} edges between them.
type Graph struct {
	entities map[string]any
}

func NewGraph(state map[string]any) *Graph {
	return &Graph{entities: state}
}

// Resolve follows reference edges from v until it reaches a value that is not
// a reference. Cycles, dangling keys and chains longer than MaxRefDepth
// resolve to nil.
func (g *Graph) Resolve(v any) any {
	visited := make(map[string]bool)
	for depth := 0; depth <= MaxRefDepth; depth++ {
		key, ok := refOf(v)
		if !ok {
			return v
		}
		if visited[key] {
			return nil
		}
		visited[key] = true

		next, found := g.entities[key]
		if !found {
			return nil
		}
		v = next
	}
	return nil
}

// Object resolves v and returns it as an object, or an empty one.
func (g *Graph) Object(v any) map[string]any {
	if m, ok := g.Resolve(v).(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// List resolves v as an array and resolves each element.
func (g *Graph) List(v any) []any {
	items, ok := g.Resolve(v).([]any)
	if !ok {
		return nil
	}
	out := make([]any, 0, len(items))
	for _, item := range items {
		if r := g.Resolve(item); r != nil {
			out = append(out, r)
		}
	}
	return out
}

// Field reads name from m, falling back to the first key that starts with
// name. Parameterized fields such as `fsasReviews({"display":3})` are stored
// under the call signature.
func (g *Graph) Field(m map[string]any, name string) any {
	if v, ok := m[name]; ok {
		return g.Resolve(v)
	}
	if v, ok := FindByPrefix(m, name); ok {
		return g.Resolve(v)
	}
	return nil
}

// FindByPrefix returns the value of the lexicographically first key of m that
// starts with prefix.
func FindByPrefix(m map[string]any, prefix string) (any, bool) {
	keys := make([]string, 0, 1)
	for k := range m {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, false
	}
	sort.Strings(keys)
	return m[keys[0]], true
}

func refOf(v any) (string, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	key, ok := m[refKey].(string)
	return key, ok
}
