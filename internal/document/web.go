package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"

	"github.com/docent-ai/docent/internal/log"
	"github.com/docent-ai/docent/internal/security"
)

// ErrEmptyDocument marks a source that yielded no usable text. Such
// documents are skipped, never ingested.
var ErrEmptyDocument = errors.New("document has no extractable text")

// CrawlConfig bounds a crawl run.
type CrawlConfig struct {
	// StartURLs seed the crawl.
	StartURLs []string

	// AllowedDomains restricts the crawl; links outside them are not
	// followed. Empty means the start URLs' domains only would be too
	// permissive, so callers should always set this.
	AllowedDomains []string

	// MaxDepth limits link following from the seeds. Zero means unlimited.
	MaxDepth int

	// Parallelism caps concurrent fetches. Zero selects 4.
	Parallelism int

	// UserAgent overrides the default colly user agent when set.
	UserAgent string
}

// Crawler fetches documentation pages and extracts their main text.
type Crawler struct {
	cfg    CrawlConfig
	urls   *security.URLValidator
	logger log.Logger
}

// NewCrawler creates a Crawler. logger may be nil.
func NewCrawler(cfg CrawlConfig, logger log.Logger) *Crawler {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Crawler{cfg: cfg, urls: security.NewURLValidator(), logger: logger}
}

// Crawl walks the configured site and returns one Document per HTML page
// with extractable text, sorted by URL for a deterministic order. Pages
// that fail to fetch or extract are logged and skipped; only a canceled
// context aborts the run.
func (c *Crawler) Crawl(ctx context.Context) ([]Document, error) {
	opts := []colly.CollectorOption{colly.Async(true)}
	if len(c.cfg.AllowedDomains) > 0 {
		opts = append(opts, colly.AllowedDomains(c.cfg.AllowedDomains...))
	}
	if c.cfg.MaxDepth > 0 {
		opts = append(opts, colly.MaxDepth(c.cfg.MaxDepth))
	}
	if c.cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(c.cfg.UserAgent))
	}

	collector := colly.NewCollector(opts...)
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: c.cfg.Parallelism,
	}); err != nil {
		return nil, fmt.Errorf("configure crawl limits: %w", err)
	}
	// Re-validates resolved addresses at dial time, so a page linking to
	// internal infrastructure cannot pull the crawler inside.
	collector.WithTransport(c.urls.Transport())

	var (
		mu   sync.Mutex
		docs []Document
	)

	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		link := e.Request.AbsoluteURL(e.Attr("href"))
		if link == "" {
			return
		}
		// Visit dedupes and enforces domain and depth rules itself.
		_ = e.Request.Visit(link)
	})

	collector.OnResponse(func(r *colly.Response) {
		if !strings.Contains(r.Headers.Get("Content-Type"), "text/html") {
			return
		}
		doc, err := ExtractPage(r.Request.URL.String(), r.Body)
		if err != nil {
			c.logger.Warn("skipping page", "url", r.Request.URL, "error", err)
			return
		}
		mu.Lock()
		docs = append(docs, doc)
		mu.Unlock()
	})

	collector.OnError(func(r *colly.Response, err error) {
		c.logger.Warn("fetch failed", "url", r.Request.URL, "error", err)
	})

	for _, u := range c.cfg.StartURLs {
		if err := c.urls.Validate(u); err != nil {
			c.logger.Warn("rejecting unsafe seed", "url", u, "error", err)
			continue
		}
		if err := collector.Visit(u); err != nil {
			c.logger.Warn("seed visit failed", "url", u, "error", err)
		}
	}
	collector.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Source < docs[j].Source })
	c.logger.Info("crawl finished", "pages", len(docs))
	return docs, nil
}

// ExtractPage turns one fetched HTML page into a Document. Main-text
// extraction strips navigation and boilerplate; when it finds nothing the
// whole body text is used before giving up with ErrEmptyDocument.
func ExtractPage(pageURL string, body []byte) (Document, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return Document{}, fmt.Errorf("parse url %q: %w", pageURL, err)
	}

	var title, text string
	if article, err := readability.FromReader(bytes.NewReader(body), parsed); err == nil {
		title = strings.TrimSpace(article.Title)
		text = strings.TrimSpace(article.TextContent)
	}

	if title == "" || text == "" {
		gq, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return Document{}, fmt.Errorf("parse html of %q: %w", pageURL, err)
		}
		if title == "" {
			title = strings.TrimSpace(gq.Find("title").First().Text())
		}
		if text == "" {
			text = normalizeSpace(gq.Find("body").Text())
		}
	}

	if text == "" {
		return Document{}, fmt.Errorf("%q: %w", pageURL, ErrEmptyDocument)
	}

	return Document{
		Source:     pageURL,
		SourceType: SourceTypeWeb,
		Title:      title,
		Text:       text,
	}, nil
}

// normalizeSpace collapses runs of blank lines left behind by tag
// stripping while keeping paragraph breaks for the chunker.
func normalizeSpace(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blank := 0
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
