package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"

	"github.com/augmenthq/compete/internal/models"
)

// Renderer turns a page URL into its HTML, rendering JavaScript when needed.
type Renderer interface {
	Render(ctx context.Context, pageURL string) (string, error)
}

// ChromeRenderer renders pages in headless Chrome so client-side navigation
// and lazy-loaded listings still produce links.
type ChromeRenderer struct{}

func (ChromeRenderer) Render(ctx context.Context, pageURL string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(pageURL),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("failed to render page: %w", err)
	}
	return html, nil
}

// HTTPRenderer fetches the raw HTML without a browser. Used as the fallback
// when Chrome is unavailable and for static pages.
type HTTPRenderer struct {
	Client *http.Client
}

func (r HTTPRenderer) Render(ctx context.Context, pageURL string) (string, error) {
	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; compete/1.0)")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", NewRetryableError(fmt.Errorf("page returned %s", resp.Status))
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("page returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse page: %w", err)
	}
	html, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("failed to serialize page: %w", err)
	}
	return html, nil
}

// ScrapeFetcher discovers article links on listing pages such as a
// competitor's blog index. Each discovered link becomes one item; the page's
// own content is not stored.
type ScrapeFetcher struct {
	renderer Renderer
	fallback Renderer
	logger   *slog.Logger
}

// NewScrapeFetcher creates a scrape fetcher. When renderer is nil the plain
// HTTP renderer is used for everything.
func NewScrapeFetcher(renderer Renderer, logger *slog.Logger) *ScrapeFetcher {
	return &ScrapeFetcher{
		renderer: renderer,
		fallback: HTTPRenderer{},
		logger:   logger,
	}
}

// SourceType returns the source type this fetcher handles.
func (f *ScrapeFetcher) SourceType() models.SourceType {
	return models.SourceTypeWebScrape
}

// Fetch renders the configured page and extracts article links. Finding no
// links is a successful empty fetch, not an error.
func (f *ScrapeFetcher) Fetch(ctx context.Context, source *models.Source) (*FetchResult, error) {
	if source.Scrape == nil {
		return nil, fmt.Errorf("source %s has no scrape configuration", source.ID)
	}

	html, err := f.render(ctx, source.Scrape.PageURL)
	if err != nil {
		return nil, err
	}

	links, err := ExtractArticleLinks(html, source.Scrape.PageURL, source.Scrape.CSSSelector)
	if err != nil {
		return nil, err
	}
	f.logger.Debug("extracted article links", "page", source.Scrape.PageURL, "count", len(links))

	now := time.Now().UTC()
	result := &FetchResult{FetchedAt: now}
	for _, link := range links {
		result.Items = append(result.Items, models.Item{
			ID:        uuid.NewString(),
			SourceID:  source.ID,
			GUID:      link.URL,
			Title:     link.Title,
			URL:       link.URL,
			CreatedAt: now,
		})
	}
	return result, nil
}

func (f *ScrapeFetcher) render(ctx context.Context, pageURL string) (string, error) {
	if f.renderer != nil {
		html, err := f.renderer.Render(ctx, pageURL)
		if err == nil {
			return html, nil
		}
		f.logger.Warn("browser render failed, falling back to plain fetch",
			"page", pageURL, "error", err)
	}
	return f.fallback.Render(ctx, pageURL)
}

// ArticleLink is one discovered article on a listing page.
type ArticleLink struct {
	URL   string
	Title string
}

// articlePathHints marks URL paths that usually point at articles.
var articlePathHints = []string{"/blog/", "/news/", "/post/", "/posts/", "/article/", "/articles/", "/press/", "/updates/", "/changelog/"}

// excludedLinkFragments rejects navigation and account links that match the
// path hints by accident.
var excludedLinkFragments = []string{"mailto:", "tel:", "/tag/", "/tags/", "/category/", "/author/", "/page/", "/login", "/signup", "/subscribe"}

// ExtractArticleLinks parses a listing page and returns candidate article
// links. With a CSS selector it trusts the selector; without one it keeps
// same-host links whose path looks like an article.
func ExtractArticleLinks(html, pageURL, selector string) ([]ArticleLink, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url %s: %w", pageURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	sel := selector
	if sel == "" {
		sel = "a[href]"
	}

	seen := map[string]struct{}{}
	var links []ArticleLink

	doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
		anchor := s
		if !s.Is("a") {
			anchor = s.Find("a[href]").First()
		}
		href, ok := anchor.Attr("href")
		if !ok {
			return
		}

		canonical, ok := canonicalArticleURL(base, href, selector != "")
		if !ok {
			return
		}
		if _, dup := seen[canonical]; dup {
			return
		}
		seen[canonical] = struct{}{}

		links = append(links, ArticleLink{
			URL:   canonical,
			Title: strings.TrimSpace(anchor.Text()),
		})
	})

	return links, nil
}

// canonicalArticleURL resolves href against the listing page, drops fragments
// and tracking noise, and decides whether the link looks like an article.
// trusted skips the path heuristic for selector-scoped links.
func canonicalArticleURL(base *url.URL, href string, trusted bool) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	lower := strings.ToLower(href)
	for _, frag := range excludedLinkFragments {
		if strings.Contains(lower, frag) {
			return "", false
		}
	}

	resolved, err := base.Parse(href)
	if err != nil {
		return "", false
	}
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	if !strings.EqualFold(resolved.Host, base.Host) {
		return "", false
	}

	resolved.Fragment = ""
	resolved.RawQuery = ""
	canonical := strings.TrimSuffix(resolved.String(), "/")

	if canonical == strings.TrimSuffix(base.String(), "/") {
		return "", false
	}
	if trusted {
		return canonical, true
	}

	path := strings.ToLower(resolved.Path)
	for _, hint := range articlePathHints {
		if strings.Contains(path+"/", hint) && strings.TrimSuffix(path, "/") != strings.TrimSuffix(hint, "/") {
			return canonical, true
		}
	}
	return "", false
}
