package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/oranjParker/Pawmap/internal/place"
	"github.com/rotisserie/eris"
)

const (
	HomeURL        = "https://m.place.naver.com/place/%s/home"
	InformationURL = "https://m.place.naver.com/place/%s/information"

	hoursToggle  = "a.gKP9i.RMgN0"
	priceButton  = `//a[contains(@class, 'place_bluelink') and contains(@class, 'iBUwB') and starts-with(normalize-space(text()), '가격')]`
	imageCounter = "span.rCaLC"
	priceImage   = "div.yJgpY._imgWrapperAreaRef > img"
	nextImage    = "a.BU49A"
	imageWait    = 5 * time.Second
)

// PlaceCrawler reads one place at a time. Implementations are not safe for
// concurrent use.
type PlaceCrawler interface {
	Crawl(ctx context.Context, id string) (*place.Detail, error)
	Close() error
}

// Crawler drives the home and information tabs of a place in one session.
type Crawler struct {
	Session *Session
}

func NewCrawler(ctx context.Context, opts Options) (*Crawler, error) {
	s, err := NewSession(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Crawler{Session: s}, nil
}

func (c *Crawler) Close() error {
	return c.Session.Close()
}

func (c *Crawler) Crawl(ctx context.Context, id string) (*place.Detail, error) {
	home, err := c.Home(ctx, id)
	if err != nil {
		return nil, err
	}
	info, err := c.Information(ctx, id)
	if err != nil {
		return nil, err
	}

	home.Description = info.Description
	home.Keywords = info.Keywords
	home.Conveniences = info.Conveniences
	home.Links = info.Links
	home.Parking = info.Parking
	home.ValetParking = info.ValetParking
	return home, nil
}

// Home opens the home tab, expands the opening hours when possible and walks
// the price image carousel.
func (c *Crawler) Home(ctx context.Context, id string) (*place.Detail, error) {
	var toggles []*cdp.Node
	err := c.Session.Run(ctx,
		chromedp.Navigate(fmt.Sprintf(HomeURL, id)),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Nodes(hoursToggle, &toggles, chromedp.ByQueryAll, chromedp.AtLeast(0)),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "open home tab of %s", id)
	}

	expanded := len(toggles) > 0
	if expanded {
		if err := c.Session.Run(ctx, chromedp.Click(hoursToggle, chromedp.ByQuery)); err != nil {
			return nil, eris.Wrapf(err, "expand hours of %s", id)
		}
	}

	doc, err := c.document(ctx)
	if err != nil {
		return nil, eris.Wrapf(err, "read home tab of %s", id)
	}

	images, err := c.priceImages(ctx)
	if err != nil {
		return nil, eris.Wrapf(err, "price images of %s", id)
	}

	return &place.Detail{
		ID:            id,
		MenuImageURLs: images,
		BusinessHours: []place.BusinessHours{SummarizeHours(ParseHours(doc, expanded))},
		Menus:         []place.Menu{},
		ReviewCounts:  ParseReviews(doc),
		MapLink:       fmt.Sprintf(place.MapURL, id),
	}, nil
}

func (c *Crawler) Information(ctx context.Context, id string) (Information, error) {
	err := c.Session.Run(ctx,
		chromedp.Navigate(fmt.Sprintf(InformationURL, id)),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return Information{}, eris.Wrapf(err, "open information tab of %s", id)
	}
	doc, err := c.document(ctx)
	if err != nil {
		return Information{}, eris.Wrapf(err, "read information tab of %s", id)
	}
	return ParseInformation(doc), nil
}

func (c *Crawler) document(ctx context.Context) (*goquery.Document, error) {
	var html string
	if err := c.Session.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// priceImages clicks the price button and collects every carousel image.
// A place without the button has no price images.
func (c *Crawler) priceImages(ctx context.Context) ([]string, error) {
	var buttons []*cdp.Node
	if err := c.Session.Run(ctx, chromedp.Nodes(priceButton, &buttons, chromedp.BySearch, chromedp.AtLeast(0))); err != nil {
		return nil, err
	}
	if len(buttons) == 0 {
		return []string{}, nil
	}

	var counter, src string
	var ok bool
	err := c.Session.Run(ctx,
		chromedp.MouseClickNode(buttons[0]),
		chromedp.Text(imageCounter, &counter, chromedp.ByQuery),
		chromedp.AttributeValue(priceImage, "src", &src, &ok, chromedp.ByQuery),
	)
	if err != nil {
		return nil, err
	}

	total := ParseImageCount(counter)
	urls := []string{src}
	for i := 1; i < total; i++ {
		prev := src
		var changed bool
		err := c.Session.Run(ctx,
			chromedp.Click(nextImage, chromedp.ByQuery, chromedp.NodeVisible),
			chromedp.Poll(
				fmt.Sprintf(`(() => { const img = document.querySelector(%q); return !!img && img.src !== %q; })()`, priceImage, prev),
				&changed,
				chromedp.WithPollingTimeout(imageWait),
			),
			chromedp.AttributeValue(priceImage, "src", &src, &ok, chromedp.ByQuery),
		)
		if err != nil {
			return urls, err
		}
		urls = append(urls, src)
	}
	return urls, nil
}
