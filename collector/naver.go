// Package collector fetches Korean financial news from the Naver News Search
// API.
package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/news2vector/newsrag/common/httpx"
	"github.com/news2vector/newsrag/common/logger"
	"github.com/news2vector/newsrag/config"
)

const baseURL = "https://openapi.naver.com/v1/search/news.json"

// naverDateLayout matches pubDate strings like "Sat, 21 Dec 2024 15:30:00 +0900".
const naverDateLayout = "Mon, 02 Jan 2006 15:04:05 -0700"

// NewsItem is one collected article before preprocessing.
type NewsItem struct {
	Title       string
	Description string
	URL         string
	PublishedAt string
	Source      string
}

// FullText combines title and description, the unit that gets embedded.
func (n NewsItem) FullText() string {
	return n.Title + "\n" + n.Description
}

// Collector calls the Naver API with credential headers and bounded retries.
type Collector struct {
	clientID     string
	clientSecret string
	keywords     []string
	display      int
	attempts     int
	client       *httpx.Client
	now          func() time.Time
	endpoint     string
}

// New builds a collector from config.
func New(cfg *config.CollectorConfig, client *httpx.Client) *Collector {
	if client == nil {
		client = httpx.NewFromConfig(&httpx.Config{TimeoutMs: 30000})
	}
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	return &Collector{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		keywords:     cfg.Keywords,
		display:      cfg.Display,
		attempts:     attempts,
		client:       client,
		now:          time.Now,
		endpoint:     baseURL,
	}
}

type naverResponse struct {
	Items []struct {
		Title        string `json:"title"`
		Description  string `json:"description"`
		Link         string `json:"link"`
		OriginalLink string `json:"originallink"`
		PubDate      string `json:"pubDate"`
	} `json:"items"`
}

// Search fetches one page of results for a keyword, newest first.
func (c *Collector) Search(ctx context.Context, query string, start int) ([]NewsItem, error) {
	display := c.display
	if display <= 0 || display > 100 {
		display = 100
	}
	if start < 1 {
		start = 1
	}

	var items []NewsItem
	err := retry.Do(
		func() error {
			got, err := c.searchOnce(ctx, query, display, start)
			if err != nil {
				return err
			}
			items = got
			return nil
		},
		retry.Attempts(uint(c.attempts)),
		retry.Delay(2*time.Second),
		retry.MaxDelay(10*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			logger.Warnf("collector: search %q attempt %d failed: %v", query, n+1, err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	logger.Infof("collector: found %d news items for %q", len(items), query)
	return items, nil
}

func (c *Collector) searchOnce(ctx context.Context, query string, display, start int) ([]NewsItem, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("display", strconv.Itoa(display))
	params.Set("start", strconv.Itoa(start))
	params.Set("sort", "date")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Naver-Client-Id", c.clientID)
	req.Header.Set("X-Naver-Client-Secret", c.clientSecret)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("naver api returned %d: %s", resp.StatusCode, string(body))
	}

	var nr naverResponse
	if err := json.NewDecoder(resp.Body).Decode(&nr); err != nil {
		return nil, fmt.Errorf("decode naver response: %w", err)
	}

	items := make([]NewsItem, 0, len(nr.Items))
	for _, it := range nr.Items {
		u := it.OriginalLink
		if u == "" {
			u = it.Link
		}
		items = append(items, NewsItem{
			Title:       cleanHTML(it.Title),
			Description: cleanHTML(it.Description),
			URL:         u,
			PublishedAt: c.parseDate(it.PubDate),
			Source:      extractSource(it.Link),
		})
	}
	return items, nil
}

// CollectByKeywords walks the configured keywords and merges results,
// dropping URL repeats across keywords.
func (c *Collector) CollectByKeywords(ctx context.Context, keywords []string) ([]NewsItem, error) {
	if len(keywords) == 0 {
		keywords = c.keywords
	}
	var all []NewsItem
	seen := map[string]struct{}{}
	for _, kw := range keywords {
		items, err := c.Search(ctx, kw, 1)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if _, dup := seen[item.URL]; dup {
				continue
			}
			seen[item.URL] = struct{}{}
			all = append(all, item)
		}
	}
	logger.Infof("collector: collected %d unique news items", len(all))
	return all, nil
}

var htmlTagRe = regexp.MustCompile(`<[^>]+>`)

var entityReplacer = strings.NewReplacer(
	"&quot;", `"`,
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&nbsp;", " ",
)

func cleanHTML(text string) string {
	text = htmlTagRe.ReplaceAllString(text, "")
	return strings.TrimSpace(entityReplacer.Replace(text))
}

// parseDate converts Naver's RFC1123-style pubDate to "YYYY-MM-DD HH:mm",
// falling back to the current time for unparseable input.
func (c *Collector) parseDate(s string) string {
	t, err := time.Parse(naverDateLayout, s)
	if err != nil {
		return c.now().Format("2006-01-02 15:04")
	}
	return t.Format("2006-01-02 15:04")
}

func extractSource(link string) string {
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
