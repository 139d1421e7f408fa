package collect

import (
	"context"
	"io"
	"net/http"
	"time"

	"kestrel/internal/config"
	"kestrel/internal/domain"
)

// DateRange bounds a collection run to the window the portal export accepts.
type DateRange struct {
	From time.Time
	To   time.Time
}

// LastDays builds the default trailing window ending today.
func LastDays(days int, now time.Time) DateRange {
	if days <= 0 {
		days = 7
	}
	return DateRange{From: now.AddDate(0, 0, -days), To: now}
}

// Session is an authenticated connection to one portal: the cookie-bearing
// client plus the bearer token the orchestrator attached. Strategies never
// authenticate themselves.
type Session struct {
	Client *http.Client
	Token  *domain.AuthToken
	Source config.SourceConfig

	// onExpired reports a session-expiry symptom back to the session owner.
	// Set by the orchestrator.
	onExpired func()
}

// Expired tells the session owner the portal stopped honoring the token, so
// the next strategy starts from a fresh handshake.
func (s *Session) Expired() {
	if s.onExpired != nil {
		s.onExpired()
	}
}

// NewRequest builds a request against the portal with the session token
// attached as a bearer header.
func (s *Session) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	target, err := resolveURL(s.Source.BaseURL, path)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if s.Token != nil && s.Token.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token.Token)
	}
	return req, nil
}

// Strategy is one concrete technique for retrieving raw data from an
// authenticated session. A nil payload with a nil error means the strategy
// came back empty, which the orchestrator treats as "try the next one".
type Strategy interface {
	Name() string
	Fetch(ctx context.Context, session *Session, dates DateRange) (*domain.RawPayload, error)
}

// BuildStrategies maps the ordered strategy names from a source's
// configuration onto concrete variants. Unknown names are skipped.
func BuildStrategies(source config.SourceConfig) []Strategy {
	names := source.Strategies
	if len(names) == 0 {
		names = []string{"export", "markup", "replay"}
	}

	var strategies []Strategy
	for _, name := range names {
		switch name {
		case "export":
			strategies = append(strategies, &ExportStrategy{})
		case "markup":
			strategies = append(strategies, &MarkupStrategy{})
		case "replay":
			strategies = append(strategies, &ReplayStrategy{})
		case "browser":
			strategies = append(strategies, &BrowserStrategy{})
		}
	}
	return strategies
}
