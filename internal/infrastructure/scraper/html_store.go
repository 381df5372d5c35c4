package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"PriceAggregator/internal/config"
	"PriceAggregator/internal/domain"
	"PriceAggregator/internal/store"
)

const (
	defaultUserAgent = "PriceAggregator/1.0"
	defaultMaxPages  = 20
	defaultTimeout   = 20 * time.Second
)

// ErrMissingName is returned when a detail page has no product name.
var ErrMissingName = errors.New("product name not found")

// HTMLStore scrapes a store whose catalog and product pages are plain HTML,
// driven entirely by CSS selectors from configuration.
type HTMLStore struct {
	id        string
	client    *http.Client
	catalog   []config.CatalogConfig
	selectors config.SelectorConfig
	prices    map[string]string
	types     []domain.ProductType
	maxPages  int
	userAgent string
	logger    *slog.Logger
}

var _ store.Plugin = (*HTMLStore)(nil)

// NewHTMLStore wires an HTTP client; a nil client gets the configured timeout.
func NewHTMLStore(cfg config.StoreConfig, client *http.Client, logger *slog.Logger) *HTMLStore {
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	var types []domain.ProductType
	seen := map[domain.ProductType]struct{}{}
	for _, c := range cfg.Catalog {
		t := domain.ProductType(c.Type)
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		types = append(types, t)
	}

	return &HTMLStore{
		id:        cfg.ID,
		client:    client,
		catalog:   cfg.Catalog,
		selectors: cfg.Selectors,
		prices:    cfg.Prices,
		types:     types,
		maxPages:  maxPages,
		userAgent: userAgent,
		logger:    logger,
	}
}

// ID identifies the store inside the registry.
func (h *HTMLStore) ID() string {
	return h.id
}

// SupportedTypes lists the product types that have a catalog URL.
func (h *HTMLStore) SupportedTypes() []domain.ProductType {
	return h.types
}

// Enumerate walks every catalog listing of the requested types, following
// next-page links, and returns each product URL once.
func (h *HTMLStore) Enumerate(ctx context.Context, requested domain.TypeSet) ([]domain.CatalogEntry, error) {
	wanted := domain.NewTypeSet(store.FilterTypes(requested, h.types)...)

	results := make([]domain.CatalogEntry, 0)
	seen := map[string]struct{}{}

	for _, cat := range h.catalog {
		productType := domain.ProductType(cat.Type)
		if !wanted.Contains(productType) {
			continue
		}

		pageURL := cat.URL
		for page := 0; page < h.maxPages && pageURL != ""; page++ {
			doc, err := h.fetchDocument(ctx, pageURL)
			if err != nil {
				return nil, fmt.Errorf("catalog %s: %w", cat.Type, err)
			}

			for _, link := range h.extractLinks(doc, pageURL) {
				if _, ok := seen[link]; ok {
					continue
				}
				seen[link] = struct{}{}
				results = append(results, domain.CatalogEntry{URL: link, ProductType: productType})
			}

			pageURL = h.nextPage(doc, pageURL)
		}
	}

	h.debug("catalog enumerated", "store", h.id, "entries", len(results))
	return results, nil
}

// FetchDetail downloads one product page and extracts its name and raw
// price text per payment method. A page marked unavailable, or with no price
// text at all, yields an empty quote.
func (h *HTMLStore) FetchDetail(ctx context.Context, productURL string) (domain.Product, error) {
	doc, err := h.fetchDocument(ctx, productURL)
	if err != nil {
		return domain.Product{}, &store.FetchError{Store: h.id, URL: productURL, Err: err}
	}

	name := collapseSpace(doc.Find(h.selectors.Name).First().Text())
	if name == "" {
		return domain.Product{}, &store.FetchError{Store: h.id, URL: productURL, Err: ErrMissingName}
	}

	product := domain.Product{Name: name}
	if h.selectors.Unavailable != "" && doc.Find(h.selectors.Unavailable).Length() > 0 {
		return product, nil
	}

	raw := make(map[string]string, len(h.prices))
	for method, selector := range h.prices {
		text := strings.TrimSpace(doc.Find(selector).First().Text())
		if text == "" {
			continue
		}
		raw[method] = text
	}
	if len(raw) > 0 {
		product.RawPrices = raw
	}

	return product, nil
}

func (h *HTMLStore) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", h.userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %s", h.id, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

func (h *HTMLStore) extractLinks(doc *goquery.Document, pageURL string) []string {
	var links []string
	doc.Find(h.selectors.ProductLink).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		if abs, err := resolveURL(pageURL, href); err == nil {
			links = append(links, abs)
		}
	})
	return links
}

func (h *HTMLStore) nextPage(doc *goquery.Document, pageURL string) string {
	if h.selectors.NextPage == "" {
		return ""
	}
	href, ok := doc.Find(h.selectors.NextPage).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return ""
	}
	next, err := resolveURL(pageURL, href)
	if err != nil || next == pageURL {
		return ""
	}
	return next
}

func resolveURL(base, href string) (string, error) {
	parsedBase, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid page url %s: %w", base, err)
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("invalid link %s: %w", href, err)
	}
	resolved := parsedBase.ResolveReference(ref)
	resolved.Fragment = ""
	return resolved.String(), nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (h *HTMLStore) debug(msg string, args ...any) {
	if h.logger != nil {
		h.logger.Debug(msg, args...)
	}
}
