package collect

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"kestrel/internal/domain"
)

// ReplayStrategy re-issues a previously observed authenticated call sequence
// against the portal's internal endpoints. Used when the primary UI flow has
// changed; the recorded sequence comes from the source configuration. The
// final response body is the payload.
type ReplayStrategy struct{}

func (s *ReplayStrategy) Name() string { return "replay" }

func (s *ReplayStrategy) Fetch(ctx context.Context, session *Session, dates DateRange) (*domain.RawPayload, error) {
	steps := session.Source.Replay
	if len(steps) == 0 {
		return nil, nil
	}

	var lastBody []byte
	for idx, step := range steps {
		method := step.Method
		if method == "" {
			method = http.MethodGet
		}

		path := expandReplayPath(step.Path, dates)

		var body io.Reader
		if step.Body != "" {
			body = strings.NewReader(expandReplayPath(step.Body, dates))
		}

		req, err := session.NewRequest(ctx, method, path, body)
		if err != nil {
			return nil, transportError(s.Name(), err)
		}
		for key, value := range step.Headers {
			req.Header.Set(key, value)
		}

		resp, err := session.Client.Do(req)
		if err != nil {
			return nil, transportError(s.Name(), err)
		}

		payload, err := io.ReadAll(io.LimitReader(resp.Body, maxExportBytes))
		resp.Body.Close()
		if err != nil {
			return nil, transportError(s.Name(), err)
		}

		if resp.StatusCode != http.StatusOK {
			return nil, transportError(s.Name(), fmt.Errorf("replay step %d returned status %d", idx, resp.StatusCode))
		}

		lastBody = payload
	}

	if len(lastBody) == 0 {
		return nil, nil
	}
	return &domain.RawPayload{Kind: domain.PayloadStructured, Body: lastBody}, nil
}

// expandReplayPath substitutes the date-range placeholders a recorded call
// sequence may carry.
func expandReplayPath(path string, dates DateRange) string {
	replacer := strings.NewReplacer(
		"{startDate}", dates.From.Format("2006-01-02"),
		"{endDate}", dates.To.Format("2006-01-02"),
	)
	return replacer.Replace(path)
}
