package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/auswanderer-plattform/backend/internal/models"
)

const (
	maxPageChars     = 10000
	defaultUserAgent = "Mozilla/5.0 (compatible; AuswandererBot/1.0)"
	maxPageBytes     = 4 << 20
)

// PricingURLs are the vendor pages the agent compares against
var PricingURLs = map[models.Provider]string{
	models.ProviderClaude: "https://www.anthropic.com/pricing",
	models.ProviderOpenAI: "https://openai.com/api/pricing",
	models.ProviderGemini: "https://ai.google.dev/pricing",
	models.ProviderGroq:   "https://groq.com/pricing",
}

// Fetcher downloads pricing pages as plain text
type Fetcher struct {
	client    *http.Client
	userAgent string
	urls      map[models.Provider]string
}

// NewFetcher creates a fetcher. Empty userAgent or nil urls use the defaults.
func NewFetcher(timeout time.Duration, userAgent string, urls map[models.Provider]string) *Fetcher {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	if urls == nil {
		urls = PricingURLs
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		urls:      urls,
	}
}

// FetchAll fetches every provider page concurrently. Failures never abort
// the batch; the page text becomes a bracketed placeholder instead.
func (f *Fetcher) FetchAll(ctx context.Context) map[models.Provider]string {
	providers := make([]models.Provider, 0, len(f.urls))
	for _, p := range models.Providers {
		if _, ok := f.urls[p]; ok {
			providers = append(providers, p)
		}
	}
	pages := make([]string, len(providers))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range providers {
		g.Go(func() error {
			pages[i] = f.fetch(gctx, f.urls[p])
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[models.Provider]string, len(providers))
	for i, p := range providers {
		out[p] = pages[i]
	}
	return out
}

func (f *Fetcher) fetch(ctx context.Context, url string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Sprintf("[Error: %v]", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Sprintf("[Error: %v]", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Sprintf("[Fetch failed: %d]", resp.StatusCode)
	}

	text, err := ExtractText(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return fmt.Sprintf("[Error: %v]", err)
	}
	return text
}

// ExtractText reduces an HTML document to whitespace-collapsed visible text,
// capped at maxPageChars. Script and style contents are dropped.
func ExtractText(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)

	var (
		b    strings.Builder
		skip int
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() != io.EOF {
				return "", z.Err()
			}
			text := strings.Join(strings.Fields(b.String()), " ")
			return truncate(text, maxPageChars), nil

		case html.StartTagToken:
			if isHidden(z) {
				skip++
			}

		case html.EndTagToken:
			if isHidden(z) && skip > 0 {
				skip--
			}

		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func isHidden(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	switch string(name) {
	case "script", "style", "noscript":
		return true
	}
	return false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
