package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"github.com/oranjParker/Pawmap/internal/scraper"
	"github.com/rotisserie/eris"
	"github.com/rwcarlsen/goexif/exif"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxDimension = 1024
	DefaultQuality      = 85
	DefaultDir          = "temp"
)

// Image is an optimized image on disk together with its encoded bytes.
type Image struct {
	Path   string
	Format string
	Data   []byte
}

// DataURL renders the image as a data: URL for multimodal prompts.
func (i Image) DataURL() string {
	return "data:image/" + i.Format + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Optimizer downloads images, fixes their orientation, bounds their size and
// writes them back as JPEG, or PNG when the source was PNG.
type Optimizer struct {
	Getter       scraper.Getter
	MaxDimension int
	Quality      int
	Dir          string
	logger       *zap.Logger
}

func NewOptimizer(getter scraper.Getter, maxDimension, quality int, dir string, logger *zap.Logger) *Optimizer {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	if dir == "" {
		dir = DefaultDir
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Optimizer{
		Getter:       getter,
		MaxDimension: maxDimension,
		Quality:      quality,
		Dir:          dir,
		logger:       logger.Named("imaging"),
	}
}

// Optimize fetches imageURL and writes the result to dst plus the extension
// of the chosen format.
func (o *Optimizer) Optimize(ctx context.Context, imageURL, dst string) (Image, error) {
	page, err := o.Getter.Get(ctx, imageURL)
	if err != nil {
		return Image{}, err
	}

	data, format, err := o.Transform(page.Body)
	if err != nil {
		return Image{}, eris.Wrapf(err, "optimize %s", imageURL)
	}

	path := dst + "." + format
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Image{}, eris.Wrap(err, "create image dir")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Image{}, eris.Wrapf(err, "write %s", path)
	}
	return Image{Path: path, Format: format, Data: data}, nil
}

// PrepareAll optimizes the images of one place into {Dir}/{id}/{i}.{ext}.
// Images that fail are logged and skipped.
func (o *Optimizer) PrepareAll(ctx context.Context, id string, urls []string) []Image {
	out := make([]Image, 0, len(urls))
	for i, u := range urls {
		if ctx.Err() != nil {
			break
		}
		img, err := o.Optimize(ctx, u, filepath.Join(o.Dir, id, fmt.Sprint(i)))
		if err != nil {
			o.logger.Warn("image skipped", zap.String("id", id), zap.String("url", u), zap.Error(err))
			continue
		}
		out = append(out, img)
	}
	return out
}

// Cleanup removes the working files of one place.
func (o *Optimizer) Cleanup(id string) error {
	return os.RemoveAll(filepath.Join(o.Dir, id))
}

// Transform decodes src, applies its EXIF orientation, scales it so the
// longest side is at most MaxDimension and re-encodes it. It returns the
// encoded bytes and the format name ("jpeg" or "png").
func (o *Optimizer) Transform(src []byte) ([]byte, string, error) {
	img, format, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, "", eris.Wrap(err, "decode image")
	}

	img = Orient(img, orientation(src))
	img = Fit(img, o.MaxDimension)

	var buf bytes.Buffer
	if format == "png" {
		if err := png.Encode(&buf, img); err != nil {
			return nil, "", eris.Wrap(err, "encode png")
		}
		return buf.Bytes(), "png", nil
	}
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: o.Quality}); err != nil {
		return nil, "", eris.Wrap(err, "encode jpeg")
	}
	return buf.Bytes(), "jpeg", nil
}

// Fit scales img down so its longest side is max, keeping the aspect ratio.
// Smaller images are returned as is.
func Fit(img image.Image, max int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := w
	if h > longest {
		longest = h
	}
	if longest <= max {
		return img
	}

	ratio := float64(max) / float64(longest)
	nw, nh := int(float64(w)*ratio), int(float64(h)*ratio)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

func orientation(src []byte) int {
	x, err := exif.Decode(bytes.NewReader(src))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return v
}

// Orient applies an EXIF orientation (1-8) so the image displays upright.
func Orient(img image.Image, o int) image.Image {
	if o < 2 || o > 8 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	dw, dh := w, h
	if o >= 5 {
		dw, dh = h, w
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))

	for y := 0; y < dh; y++ {
		for x := 0; x < dw; x++ {
			var sx, sy int
			switch o {
			case 2:
				sx, sy = w-1-x, y
			case 3:
				sx, sy = w-1-x, h-1-y
			case 4:
				sx, sy = x, h-1-y
			case 5:
				sx, sy = y, x
			case 6:
				sx, sy = y, h-1-x
			case 7:
				sx, sy = w-1-y, h-1-x
			case 8:
				sx, sy = w-1-y, x
			}
			dst.Set(x, y, img.At(b.Min.X+sx, b.Min.Y+sy))
		}
	}
	return dst
}
