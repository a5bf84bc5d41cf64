package source

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ppiankov/thumbsieve/internal/model"
	"go.uber.org/zap"
)

const (
	defaultMaxScrolls  = 200
	defaultScrollPause = 2 * time.Second
	defaultPageTimeout = 30 * time.Minute

	desktopUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

// scrollJS scrolls the feed container (or the window) to the bottom and
// returns the new scroll height
const scrollJS = `(() => {
	const el = document.querySelector('.route-scroll-container') || document.scrollingElement;
	el.scrollTo(0, el.scrollHeight);
	return el.scrollHeight;
})()`

const videoCountJS = `document.querySelectorAll('a[href*="/video/"]').length`

// LivePage loads a Douyin user page in headless Chrome, scrolls until no
// more videos appear and extracts the thumbnails
type LivePage struct {
	MaxScrolls  int
	ScrollPause time.Duration
	Timeout     time.Duration
	Headless    bool
	UserAgent   string

	// Ready is called after navigation and before scrolling, e.g. to let the
	// user solve a CAPTCHA in a visible browser
	Ready func(ctx context.Context) error

	Logger *zap.Logger
}

// NewLivePage returns a LivePage with the scraper's scroll limits
func NewLivePage(logger *zap.Logger) *LivePage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LivePage{
		MaxScrolls:  defaultMaxScrolls,
		ScrollPause: defaultScrollPause,
		Timeout:     defaultPageTimeout,
		Headless:    true,
		UserAgent:   desktopUserAgent,
		Logger:      logger,
	}
}

// Fetch opens pageURL, scrolls it and returns the candidates found
func (l *LivePage) Fetch(ctx context.Context, pageURL string) ([]model.CandidateItem, error) {
	ctx, cancel := context.WithTimeout(ctx, l.Timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(l.UserAgent),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	if l.Ready != nil {
		if err := l.Ready(ctx); err != nil {
			return nil, err
		}
	}

	if err := l.scroll(taskCtx); err != nil {
		return nil, err
	}

	var htmlContent string
	if err := chromedp.Run(taskCtx, chromedp.OuterHTML("html", &htmlContent)); err != nil {
		return nil, fmt.Errorf("failed to read page: %w", err)
	}

	return FromHTML(htmlContent, pageURL)
}

// scroll loads more videos until the page height stops growing, the scroll
// budget runs out or the context ends. Hitting the time limit is not an error.
func (l *LivePage) scroll(ctx context.Context) error {
	var previous int64 = -1
	for i := 0; i < l.MaxScrolls; i++ {
		var height int64
		var videos int
		err := chromedp.Run(ctx,
			chromedp.Evaluate(scrollJS, &height),
			chromedp.Sleep(l.ScrollPause),
			chromedp.Evaluate(videoCountJS, &videos),
		)
		if err != nil {
			if ctx.Err() != nil {
				l.Logger.Info("scroll time limit reached", zap.Int("passes", i))
				return nil
			}
			return fmt.Errorf("failed to scroll page: %w", err)
		}

		if height == previous {
			l.Logger.Info("no more content to load", zap.Int("videos", videos))
			return nil
		}
		l.Logger.Debug("loaded more videos", zap.Int("videos", videos), zap.Int("pass", i+1))
		previous = height
	}
	return nil
}
