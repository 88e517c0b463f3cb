package retrieval

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/go-shiori/go-readability"
)

const maxDocumentBytes = 50000

var excessiveLinesRe = regexp.MustCompile(`\n{4,}`)

// Ingester fetches web pages, extracts the readable article and stores it as
// a markdown document in the corpus.
type Ingester struct {
	store     *Store
	client    *http.Client
	converter *md.Converter
	userAgent string
}

// NewIngester creates an ingester writing into the given store.
func NewIngester(store *Store) *Ingester {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())

	return &Ingester{
		store:     store,
		client:    &http.Client{Timeout: 30 * time.Second},
		converter: converter,
		userAgent: "thinker/1.0",
	}
}

// IngestURL fetches the page, extracts its main article, converts it to
// markdown and adds it to the corpus under the given domain.
func (i *Ingester) IngestURL(ctx context.Context, pageURL, domain string) (*Document, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", i.userAgent)

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch url: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	article, err := readability.FromReader(strings.NewReader(string(body)), parsed)
	if err != nil {
		return nil, fmt.Errorf("extract article: %w", err)
	}

	markdown, err := i.converter.ConvertString(article.Content)
	if err != nil {
		return nil, fmt.Errorf("convert to markdown: %w", err)
	}
	markdown = cleanMarkdown(markdown)
	if markdown == "" {
		return nil, fmt.Errorf("no readable content at %s", pageURL)
	}
	if len(markdown) > maxDocumentBytes {
		markdown = markdown[:maxDocumentBytes]
	}

	doc := &Document{
		Title:   article.Title,
		Content: markdown,
		Source:  pageURL,
		Domain:  domain,
		Tags:    []string{"ingested", parsed.Hostname()},
	}
	if err := i.store.Add(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// cleanMarkdown trims trailing whitespace per line and collapses runs of
// blank lines.
func cleanMarkdown(content string) string {
	content = excessiveLinesRe.ReplaceAllString(content, "\n\n\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
