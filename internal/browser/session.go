package browser

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
)

const DefaultTimeout = 30 * time.Second

type Options struct {
	Headless  bool
	UserAgent string
	// Timeout bounds each Run call, not the session.
	Timeout time.Duration
}

// Session owns one browser process and tab. It is used by a single worker
// for its whole batch and must not be shared between goroutines.
type Session struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
}

func NewSession(parent context.Context, opts Options) (*Session, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1920, 1080),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// starts the browser so a broken install fails here and not mid-batch
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, eris.Wrap(err, "start browser")
	}

	return &Session{
		ctx: tabCtx,
		cancel: func() {
			tabCancel()
			allocCancel()
		},
		timeout: opts.Timeout,
	}, nil
}

// Run executes actions on the session tab within the per-call timeout. It
// also stops when ctx is done.
func (s *Session) Run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (s *Session) Close() error {
	s.cancel()
	return nil
}
