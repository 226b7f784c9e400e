package utils

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oranjParker/Pawmap/internal/core"
	"github.com/rotisserie/eris"
	"golang.org/x/net/publicsuffix"
)

func GetBaseDomain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	host := u.Hostname()

	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host, nil
	}

	return domain, nil
}

// SameSite reports whether both URLs share a registered domain.
func SameSite(a, b string) bool {
	da, err := GetBaseDomain(a)
	if err != nil || da == "" {
		return false
	}
	db, err := GetBaseDomain(b)
	if err != nil {
		return false
	}
	return strings.EqualFold(da, db)
}

func SanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "")
}

func IsPrivateIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}

type ClientConfig struct {
	Timeout time.Duration
	// AllowInternal permits loopback and private targets (tests, local S3).
	AllowInternal bool
	// FollowRedirects=false hands 3xx responses back to the caller.
	FollowRedirects bool
	MaxIdleConns    int
}

// NewSafeHTTPClient returns a pooled client whose dialer refuses private
// addresses unless AllowInternal is set. Homepage links come from third-party
// listings, so every outbound fetch goes through it.
func NewSafeHTTPClient(cfg ClientConfig) *http.Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 100
	}

	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
			if err != nil {
				return nil, err
			}
			if len(ips) == 0 {
				return nil, eris.Errorf("no addresses for %s", host)
			}
			if !cfg.AllowInternal {
				for _, ip := range ips {
					if IsPrivateIP(ip) {
						return nil, eris.Wrapf(core.ErrBlockedAddress, "blocked connection to private IP %s", ip)
					}
				}
			}
			return dialer.DialContext(ctx, network, net.JoinHostPort(ips[0].String(), port))
		},
	}

	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}
	if !cfg.FollowRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client
}
