package collect

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/charmbracelet/log"

	"kestrel/internal/domain"
	"kestrel/internal/parse"
)

const (
	maxScrapePages = 200
	maxPageBytes   = 4 << 20
)

// MarkupStrategy walks the portal's paginated HTML listing one page at a
// time and concatenates the page bodies into a single markup payload. It
// stops at the first page that yields zero parseable rows. A non-200 page is
// a hard failure.
type MarkupStrategy struct{}

func (s *MarkupStrategy) Name() string { return "markup" }

func (s *MarkupStrategy) Fetch(ctx context.Context, session *Session, _ DateRange) (*domain.RawPayload, error) {
	if session.Source.ListPath == "" {
		return nil, nil
	}

	pageParam := session.Source.PageParam
	if pageParam == "" {
		pageParam = "page"
	}

	var combined bytes.Buffer
	pages := 0

	for page := 1; page <= maxScrapePages; page++ {
		query := url.Values{}
		query.Set(pageParam, strconv.Itoa(page))

		req, err := session.NewRequest(ctx, http.MethodGet, session.Source.ListPath+"?"+query.Encode(), nil)
		if err != nil {
			return nil, transportError(s.Name(), err)
		}

		resp, err := session.Client.Do(req)
		if err != nil {
			return nil, transportError(s.Name(), err)
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, transportError(s.Name(), fmt.Errorf("listing page %d returned status %d", page, resp.StatusCode))
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
		resp.Body.Close()
		if err != nil {
			return nil, transportError(s.Name(), err)
		}

		if parse.CountMarkupRows(body) == 0 {
			break
		}

		combined.Write(body)
		pages++
	}

	if pages == 0 {
		return nil, nil
	}

	log.Debug("Markup scrape finished", "source", session.Source.Name, "pages", pages)
	return &domain.RawPayload{Kind: domain.PayloadMarkup, Body: combined.Bytes()}, nil
}
