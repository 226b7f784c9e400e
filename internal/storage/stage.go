package storage

import (
	"bytes"
	"context"
	"mime"
	"sync"
	"time"

	"github.com/oranjParker/Pawmap/internal/core"
	"github.com/oranjParker/Pawmap/internal/place"
	"github.com/oranjParker/Pawmap/internal/scraper"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	KeyThumbnailS3Key  = "thumbnail_s3_key"
	KeyMenuImageS3Keys = "menu_image_s3_keys"
	DefaultConcurrency = 8
)

var (
	uploads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pawmap",
		Subsystem: "storage",
		Name:      "uploads_total",
		Help:      "Image uploads by outcome.",
	}, []string{"outcome"})

	uploadedBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pawmap",
		Subsystem: "storage",
		Name:      "uploaded_bytes_total",
		Help:      "Bytes written to the bucket.",
	})
)

func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{uploads, uploadedBytes} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ImageStage copies the thumbnail and menu images of every place into the
// bucket under the location prefix.
type ImageStage struct {
	Getter   scraper.Getter
	Uploader *Uploader
	Location string
	Policy   core.RetryPolicy
	sem      *semaphore.Weighted
	logger   *zap.Logger
}

func NewImageStage(getter scraper.Getter, uploader *Uploader, location string, concurrency int, policy core.RetryPolicy, logger *zap.Logger) *ImageStage {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageStage{
		Getter:   getter,
		Uploader: uploader,
		Location: location,
		Policy:   policy,
		sem:      semaphore.NewWeighted(int64(concurrency)),
		logger:   logger.Named("images"),
	}
}

func (s *ImageStage) Name() string { return "images" }

type upload struct {
	url string
	key string
	ok  bool
}

type placeUploads struct {
	id        string
	thumbnail *upload
	menus     []*upload
}

// Run uploads every image and returns {id, thumbnail_s3_key,
// menu_image_s3_keys} per place. Only keys whose upload succeeded are
// reported; menu keys keep their source index.
func (s *ImageStage) Run(ctx context.Context, records []core.Record) ([]core.Record, error) {
	var plans []*placeUploads
	var all []*upload
	for _, r := range records {
		id := r.ID()
		if id == "" {
			continue
		}
		p := &placeUploads{id: id}
		if u := r.String(place.KeyThumbnailURL); u != "" {
			p.thumbnail = &upload{url: u, key: ThumbnailKey(s.Location, id, Ext(u))}
			all = append(all, p.thumbnail)
		}
		for i, u := range place.MenuImageURLs(r) {
			up := &upload{url: u, key: MenuImageKey(s.Location, id, i, Ext(u))}
			p.menus = append(p.menus, up)
			all = append(all, up)
		}
		plans = append(plans, p)
	}

	start := time.Now()
	var wg sync.WaitGroup
	for _, up := range all {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(up *upload) {
			defer wg.Done()
			defer s.sem.Release(1)
			up.ok = s.copy(ctx, up.url, up.key)
		}(up)
	}
	wg.Wait()

	out := make([]core.Record, 0, len(plans))
	var done int
	for _, p := range plans {
		r := core.Record{core.KeyID: p.id}
		if p.thumbnail != nil && p.thumbnail.ok {
			r[KeyThumbnailS3Key] = p.thumbnail.key
			done++
		}
		keys := make([]string, 0, len(p.menus))
		for _, up := range p.menus {
			if up.ok {
				keys = append(keys, up.key)
				done++
			}
		}
		r[KeyMenuImageS3Keys] = keys
		out = append(out, r)
	}

	s.logger.Info("images uploaded",
		zap.Int("images", len(all)),
		zap.Int("uploaded", done),
		zap.Duration("took", time.Since(start)),
	)
	return out, ctx.Err()
}

func (s *ImageStage) copy(ctx context.Context, imageURL, key string) bool {
	err := s.Policy.Do(ctx, func(ctx context.Context, _ int) error {
		page, err := s.Getter.Get(ctx, imageURL)
		if err != nil {
			return err
		}
		contentType := page.Header.Get("Content-Type")
		if contentType == "" {
			contentType = mime.TypeByExtension("." + Ext(imageURL))
		}
		if err := s.Uploader.Upload(ctx, key, bytes.NewReader(page.Body), contentType); err != nil {
			return err
		}
		uploadedBytes.Add(float64(len(page.Body)))
		return nil
	})
	if err != nil {
		uploads.WithLabelValues("failed").Inc()
		s.logger.Warn("image upload failed", zap.String("url", imageURL), zap.String("key", key), zap.Error(err))
		return false
	}
	uploads.WithLabelValues("ok").Inc()
	return true
}
