package storage

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

const DefaultExt = "jpg"

func ThumbnailKey(location, id, ext string) string {
	return fmt.Sprintf("%s/%s/thumbnail.%s", location, id, ext)
}

func MenuImageKey(location, id string, index int, ext string) string {
	return fmt.Sprintf("%s/%s/menu_images/%d.%s", location, id, index, ext)
}

// Ext is the file extension of the last path segment of rawURL, without the
// query string. URLs without a usable extension get DefaultExt.
func Ext(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	ext := strings.TrimPrefix(path.Ext(p), ".")
	if ext == "" || len(ext) > 5 {
		return DefaultExt
	}
	for _, r := range ext {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return DefaultExt
		}
	}
	return strings.ToLower(ext)
}
