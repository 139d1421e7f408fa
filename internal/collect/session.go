package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/net/publicsuffix"

	"kestrel/internal/config"
	"kestrel/internal/domain"
)

// Clock supplies the current time. Injected so token-expiry logic is testable
// without wall-clock sleeps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the production clock.
var SystemClock Clock = systemClock{}

// fallbackTokenTTL is assumed when a portal hands out a token whose claims
// carry no decodable expiry.
const fallbackTokenTTL = time.Hour

// AuthSessionManager owns the credential-based login handshake against one
// portal, the resulting session cookies, and the expiry-aware token cache.
// The persisted token file is the only durable artifact it writes.
type AuthSessionManager struct {
	source    config.SourceConfig
	creds     config.Credentials
	tokenPath string
	clock     Clock
	client    *http.Client

	mu     sync.Mutex
	cached *domain.AuthToken
}

func NewAuthSessionManager(source config.SourceConfig, creds config.Credentials, tokenPath string, timeout time.Duration, clock Clock) *AuthSessionManager {
	if clock == nil {
		clock = SystemClock
	}

	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	client := &http.Client{
		Jar:     jar,
		Timeout: timeout,
	}

	return &AuthSessionManager{
		source:    source,
		creds:     creds,
		tokenPath: tokenPath,
		clock:     clock,
		client:    client,
	}
}

// Client exposes the cookie-bearing HTTP client so strategies reuse the
// authenticated session instead of opening their own.
func (m *AuthSessionManager) Client() *http.Client {
	return m.client
}

// GetValidToken returns a usable token, in order of preference: the in-memory
// cache, the persisted slot, a fresh login handshake. A nil token with a
// classified error is the failure signal; it never panics.
func (m *AuthSessionManager) GetValidToken(ctx context.Context) (*domain.AuthToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()

	if m.cached.Valid(now) {
		return m.cached, nil
	}

	if persisted := m.loadPersistedToken(); persisted.Valid(now) {
		log.Debug("Adopted persisted session token", "source", m.source.Name, "expires_at", persisted.ExpiresAt)
		m.cached = persisted
		return persisted, nil
	}

	token, err := m.login(ctx)
	if err != nil {
		return nil, err
	}

	m.cached = token
	m.persistToken(token)
	return token, nil
}

// Invalidate discards the cached token, durable slot included, so the next
// call performs a fresh handshake. Called when a strategy observes a
// session-expiry response.
func (m *AuthSessionManager) Invalidate() {
	m.mu.Lock()
	m.cached = nil
	if m.tokenPath != "" {
		if err := os.Remove(m.tokenPath); err != nil && !os.IsNotExist(err) {
			log.Warn("Failed to remove persisted token", "path", m.tokenPath, "error", err)
		}
	}
	m.mu.Unlock()
}

func (m *AuthSessionManager) login(ctx context.Context) (*domain.AuthToken, error) {
	if m.creds.Username == "" || m.creds.Password == "" {
		return nil, authError("missing credentials for source %s", m.source.Name)
	}

	// Visiting the entry page first collects any anti-automation cookies the
	// portal expects to see on the login post.
	if m.source.EntryPath != "" {
		if err := m.visit(ctx, m.source.EntryPath); err != nil {
			return nil, authError("entry page: %v", err)
		}
	}
	if m.source.LoginPagePath != "" {
		if err := m.visit(ctx, m.source.LoginPagePath); err != nil {
			return nil, authError("login page: %v", err)
		}
	}

	form := url.Values{}
	form.Set(m.usernameField(), m.creds.Username)
	form.Set(m.passwordField(), m.creds.Password)

	loginURL, err := resolveURL(m.source.BaseURL, m.source.LoginPath)
	if err != nil {
		return nil, authError("login url: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, authError("build login request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, authError("login post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, authError("login post returned status %d", resp.StatusCode)
	}

	raw := m.tokenFromJar(loginURL)
	if raw == "" {
		return nil, authError("no session token cookie after login for source %s", m.source.Name)
	}

	return m.decodeToken(raw), nil
}

func (m *AuthSessionManager) visit(ctx context.Context, path string) error {
	pageURL, err := resolveURL(m.source.BaseURL, path)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return fmt.Errorf("unexpected status %d for %s", resp.StatusCode, path)
	}
	return nil
}

func (m *AuthSessionManager) tokenFromJar(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	names := m.source.TokenCookies
	if len(names) == 0 {
		names = []string{"token", "access_token", "jwt", "session"}
	}

	for _, cookie := range m.client.Jar.Cookies(parsed) {
		for _, name := range names {
			if strings.EqualFold(cookie.Name, name) && cookie.Value != "" {
				return cookie.Value
			}
		}
	}
	return ""
}

// decodeToken reads the expiry and subject out of the bearer token's own
// claims. The signature is deliberately not verified; the portal is the
// authority on its own tokens.
func (m *AuthSessionManager) decodeToken(raw string) *domain.AuthToken {
	now := m.clock.Now()
	token := &domain.AuthToken{
		Token:     raw,
		IssuedFor: m.creds.Username,
		CachedAt:  now,
		ExpiresAt: now.Add(fallbackTokenTTL),
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		log.Warn("Session token is not a decodable JWT, assuming fallback TTL", "source", m.source.Name, "error", err)
		return token
	}

	if expiry, err := parsed.Claims.GetExpirationTime(); err == nil && expiry != nil {
		token.ExpiresAt = expiry.Time
	}
	if subject, err := parsed.Claims.GetSubject(); err == nil && subject != "" {
		token.IssuedFor = subject
	}
	return token
}

func (m *AuthSessionManager) loadPersistedToken() *domain.AuthToken {
	if m.tokenPath == "" {
		return nil
	}

	data, err := os.ReadFile(m.tokenPath)
	if err != nil {
		return nil
	}

	var token domain.AuthToken
	if err := json.Unmarshal(data, &token); err != nil {
		log.Warn("Discarding unreadable persisted token", "path", m.tokenPath, "error", err)
		return nil
	}
	return &token
}

func (m *AuthSessionManager) persistToken(token *domain.AuthToken) {
	if m.tokenPath == "" || token == nil {
		return
	}

	data, err := json.Marshal(token)
	if err != nil {
		log.Warn("Failed to serialize session token", "error", err)
		return
	}

	if err := os.MkdirAll(filepath.Dir(m.tokenPath), 0o700); err != nil {
		log.Warn("Failed to create token directory", "error", err)
		return
	}
	if err := os.WriteFile(m.tokenPath, data, 0o600); err != nil {
		log.Warn("Failed to persist session token", "path", m.tokenPath, "error", err)
	}
}

func (m *AuthSessionManager) usernameField() string {
	if m.source.UsernameField != "" {
		return m.source.UsernameField
	}
	return "username"
}

func (m *AuthSessionManager) passwordField() string {
	if m.source.PasswordField != "" {
		return m.source.PasswordField
	}
	return "password"
}

func resolveURL(base, path string) (string, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path, nil
	}

	parsed, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", err
	}
	return parsed.ResolveReference(ref).String(), nil
}
