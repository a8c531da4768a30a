// scraper/ofsted_resolver.go
package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DownloadURLResolver discovers the current month's inspection-outcomes
// workbook URL. Strategies are tried in order until one succeeds.
type DownloadURLResolver interface {
	Resolve(ctx context.Context) (string, error)
}

// ResolveDownloadURL runs each resolver in turn, returning the first URL
// found. Every strategy must fail before the whole discovery fails.
func ResolveDownloadURL(ctx context.Context, resolvers ...DownloadURLResolver) (string, error) {
	var failures []string
	for _, r := range resolvers {
		downloadURL, err := r.Resolve(ctx)
		if err == nil {
			return downloadURL, nil
		}
		log.Printf("Scraper: resolver %T failed: %v", r, err)
		failures = append(failures, fmt.Sprintf("%T: %v", r, err))
	}
	return "", fmt.Errorf("all download URL resolvers failed: %s", strings.Join(failures, "; "))
}

// ContentAPIResolver asks the GOV.UK content API for the dataset page and
// extracts the workbook attachment URL.
type ContentAPIResolver struct {
	Client       *http.Client
	APIURL       string
	LinkFragment string
}

func (r *ContentAPIResolver) Resolve(ctx context.Context) (string, error) {
	body, err := FetchURL(ctx, r.Client, r.APIURL)
	if err != nil {
		return "", err
	}

	var payload struct {
		Details struct {
			Attachments []struct {
				URL   string `json:"url"`
				Title string `json:"title"`
			} `json:"attachments"`
		} `json:"details"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("failed to decode content API response: %w", err)
	}

	for _, att := range payload.Details.Attachments {
		if matchesWorkbookLink(att.URL, r.LinkFragment) {
			return att.URL, nil
		}
	}
	return "", fmt.Errorf("content API listed no attachment matching %q with a .xlsx extension", r.LinkFragment)
}

// PageScrapeResolver is the fallback: fetch the public page HTML and pull
// the first matching download link out of it.
type PageScrapeResolver struct {
	Client       *http.Client
	PageURL      string
	LinkFragment string
}

func (r *PageScrapeResolver) Resolve(ctx context.Context) (string, error) {
	body, err := FetchURL(ctx, r.Client, r.PageURL)
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to parse page HTML from %s: %w", r.PageURL, err)
	}

	var found string
	doc.Find("a[href]").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		if matchesWorkbookLink(href, r.LinkFragment) {
			found = href
			return false
		}
		return true
	})
	if found == "" {
		return "", fmt.Errorf("no link matching %q with a .xlsx extension found on %s", r.LinkFragment, r.PageURL)
	}
	return r.absolute(found)
}

func (r *PageScrapeResolver) absolute(href string) (string, error) {
	u, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("malformed link %q: %w", href, err)
	}
	if u.IsAbs() {
		return href, nil
	}
	base, err := url.Parse(r.PageURL)
	if err != nil {
		return "", fmt.Errorf("malformed page URL %q: %w", r.PageURL, err)
	}
	return base.ResolveReference(u).String(), nil
}

func matchesWorkbookLink(href, fragment string) bool {
	h := strings.ToLower(href)
	return strings.HasSuffix(h, ".xlsx") && strings.Contains(h, strings.ToLower(fragment))
}
