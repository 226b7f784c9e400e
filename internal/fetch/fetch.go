package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/oranjParker/Pawmap/internal/core"
	"github.com/oranjParker/Pawmap/internal/utils"
	"github.com/rotisserie/eris"
)

const DefaultMaxBody = 5 << 20

// Page is one fetched response. URL is the address asked for and FinalURL
// the one that answered, which differ after followed redirects.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (p *Page) Redirect() bool {
	return p.StatusCode >= 300 && p.StatusCode < 400 && p.Header.Get("Location") != ""
}

// Fetcher issues single GET requests with a fixed user agent. The client is
// shared and safe for concurrent use.
type Fetcher struct {
	Client    *http.Client
	UserAgent string
	Header    http.Header
	MaxBody   int64
}

type Options struct {
	UserAgent       string
	Timeout         time.Duration
	FollowRedirects bool
	AllowInternal   bool
	Header          http.Header
}

func New(opts Options) *Fetcher {
	return &Fetcher{
		Client: utils.NewSafeHTTPClient(utils.ClientConfig{
			Timeout:         opts.Timeout,
			AllowInternal:   opts.AllowInternal,
			FollowRedirects: opts.FollowRedirects,
		}),
		UserAgent: opts.UserAgent,
		Header:    opts.Header,
		MaxBody:   DefaultMaxBody,
	}
}

// Get fetches rawURL. Non-2xx responses are errors wrapping core.ErrHTTPStatus,
// except redirects which come back as pages when the client does not follow them.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, eris.Wrapf(core.ErrInvalidURL, "%q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "build request for %s", rawURL)
	}
	for k, vs := range f.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "get %s", rawURL)
	}
	defer resp.Body.Close()

	limit := f.MaxBody
	if limit <= 0 {
		limit = DefaultMaxBody
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, eris.Wrapf(err, "read body of %s", rawURL)
	}

	page := &Page{
		URL:        rawURL,
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}
	if page.Redirect() {
		return page, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return page, eris.Wrapf(core.ErrHTTPStatus, "get %s: status %d", rawURL, resp.StatusCode)
	}
	return page, nil
}
