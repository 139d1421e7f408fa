package collect

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"

	"kestrel/internal/domain"
)

// maxExportBytes caps how much of a bulk export is read into memory.
const maxExportBytes = 20 << 20

// ExportStrategy triggers the portal's bulk tabular export for a bounded date
// range. A response that is not an export content type usually means the
// session expired and the portal answered with its login page, which counts
// as a soft failure, not an error.
type ExportStrategy struct{}

func (s *ExportStrategy) Name() string { return "export" }

func (s *ExportStrategy) Fetch(ctx context.Context, session *Session, dates DateRange) (*domain.RawPayload, error) {
	if session.Source.ExportPath == "" {
		return nil, nil
	}

	query := url.Values{}
	query.Set("startDate", dates.From.Format("2006-01-02"))
	query.Set("endDate", dates.To.Format("2006-01-02"))

	req, err := session.NewRequest(ctx, http.MethodGet, session.Source.ExportPath+"?"+query.Encode(), nil)
	if err != nil {
		return nil, transportError(s.Name(), err)
	}

	resp, err := session.Client.Do(req)
	if err != nil {
		return nil, transportError(s.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, transportError(s.Name(), fmt.Errorf("export returned status %d", resp.StatusCode))
	}

	if !isExportContentType(resp.Header.Get("Content-Type"), resp.Header.Get("Content-Disposition")) {
		log.Debug("Export responded with non-export content type, treating as expired session",
			"source", session.Source.Name, "content_type", resp.Header.Get("Content-Type"))
		session.Expired()
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxExportBytes))
	if err != nil {
		return nil, transportError(s.Name(), err)
	}

	return &domain.RawPayload{Kind: domain.PayloadTabular, Body: body}, nil
}

func isExportContentType(contentType, disposition string) bool {
	if strings.Contains(strings.ToLower(disposition), "attachment") {
		return true
	}

	lowered := strings.ToLower(contentType)
	for _, accepted := range []string{"text/csv", "application/csv", "application/vnd.ms-excel", "application/octet-stream"} {
		if strings.Contains(lowered, accepted) {
			return true
		}
	}
	return false
}
