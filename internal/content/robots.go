package content

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/jimsmart/grobotstxt"
	"github.com/oranjParker/Pawmap/internal/cache"
	"github.com/oranjParker/Pawmap/internal/core"
	"go.uber.org/zap"
)

const RobotsTTL = 24 * time.Hour

type RobotsGuard struct {
	Getter    Getter
	Cache     cache.Cache
	UserAgent string
	TTL       time.Duration
	logger    *zap.Logger
}

func NewRobotsGuard(getter Getter, c cache.Cache, ua string, logger *zap.Logger) *RobotsGuard {
	if c == nil {
		c = cache.NewMemory()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RobotsGuard{Getter: getter, Cache: c, UserAgent: ua, TTL: RobotsTTL, logger: logger.Named("robots")}
}

// Allowed reports whether the user agent may fetch rawURL. A robots.txt that
// cannot be read allows everything; a missing one is cached as empty.
func (g *RobotsGuard) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}

	body, err := g.robots(ctx, u)
	if err != nil {
		g.logger.Debug("robots.txt unavailable", zap.String("host", u.Host), zap.Error(err))
		return true
	}
	if body == "" {
		return true
	}
	return grobotstxt.AgentAllowed(body, g.UserAgent, rawURL)
}

func (g *RobotsGuard) robots(ctx context.Context, u *url.URL) (string, error) {
	key := "robots:" + u.Host
	if body, ok, err := g.Cache.Get(ctx, key); err == nil && ok {
		return body, nil
	}

	robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"
	page, err := g.Getter.Get(ctx, robotsURL)
	if err != nil {
		if page != nil && page.StatusCode == http.StatusNotFound && errors.Is(err, core.ErrHTTPStatus) {
			_ = g.Cache.Set(ctx, key, "", g.TTL)
			return "", nil
		}
		return "", err
	}

	body := string(page.Body)
	if len(body) > 64*1024 {
		body = body[:64*1024]
	}
	_ = g.Cache.Set(ctx, key, body, g.TTL)
	return body, nil
}
