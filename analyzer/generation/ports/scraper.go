package genports

import "context"

// Scraper fetches the readable text of a job posting page.
type Scraper interface {
	Fetch(ctx context.Context, url string) (string, error)
}
