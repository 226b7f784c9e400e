package llm_provider

import (
	"context"
	"sync"
)

const MockResponse = "```json\n" + `{
	"categories": ["유치원", "호텔"],
	"services": {"서비스(강아지)": {"분반": null, "성향분석": true}},
	"menus": [{"type": "단일권", "name": "1회(3시간)", "weight_range": "전체중", "price": 30000, "count": 1, "package": "유치원", "note": null}]
}` + "\n```"

// MockProvider for free local testing. It records the requests it was given.
type MockProvider struct {
	Response string
	Err      error

	mu       sync.Mutex
	Requests []Request
}

func (m *MockProvider) Generate(ctx context.Context, req Request) (string, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()

	if m.Err != nil {
		return "", m.Err
	}
	if m.Response == "" {
		return MockResponse, nil
	}
	return m.Response, nil
}
