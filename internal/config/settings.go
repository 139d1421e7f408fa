package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"kestrel/internal/support"
)

// Config is the on-disk settings shape. Credentials never live here; they are
// read from the environment per source (see Credentials).
type Config struct {
	Collector struct {
		Retries           uint32 `json:"retries"`
		RetryDelaySeconds uint32 `json:"retry_delay_seconds"`
		TimeoutSeconds    uint32 `json:"timeout_seconds"`
		DateRangeDays     uint32 `json:"date_range_days"`
		RefreshTimer      Timer  `json:"refresh_timer"`
	} `json:"collector"`

	Lookup struct {
		Workers uint32 `json:"workers"`
	} `json:"lookup"`

	GeoIP struct {
		DatabasePath string `json:"database_path"`
	} `json:"geoip"`

	Sources []SourceConfig `json:"sources"`
}

// SourceConfig describes one upstream portal and the ordered strategies to
// try against it.
type SourceConfig struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	BaseURL string `json:"base_url"`

	// Login handshake paths, relative to BaseURL.
	EntryPath     string `json:"entry_path"`
	LoginPagePath string `json:"login_page_path"`
	LoginPath     string `json:"login_path"`
	UsernameField string `json:"username_field"`
	PasswordField string `json:"password_field"`

	// Cookie names the session token may land under after login.
	TokenCookies []string `json:"token_cookies"`

	// Strategy endpoints.
	ExportPath string       `json:"export_path"`
	ListPath   string       `json:"list_path"`
	PageParam  string       `json:"page_param"`
	Replay     []ReplayStep `json:"replay"`

	// Strategies is the ordered fallback chain, e.g.
	// ["export", "markup", "replay"].
	Strategies []string `json:"strategies"`
}

// ReplayStep is one request of a previously observed authenticated call
// sequence, re-issued verbatim by the replay strategy.
type ReplayStep struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

// Credentials holds the injected username/password pair for one source.
type Credentials struct {
	Username string
	Password string
}

const settingsFilePath = "data/settings.json"

var (
	//go:embed default_settings.json
	defaultConfig []byte

	configValue atomic.Value
	configMu    sync.Mutex

	InProductionMode bool
)

func init() {
	configValue.Store(Config{})
}

func ReadSettings() {
	data, err := os.ReadFile(settingsFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("Settings file not found, creating with default configuration")

			if err := os.MkdirAll("data", os.ModePerm); err != nil {
				log.Error("Error creating directory for settings file:", err)
				return
			}
			if err := os.WriteFile(settingsFilePath, defaultConfig, os.ModePerm); err != nil {
				log.Error("Error writing default settings file:", err)
				return
			}

			data = defaultConfig
		} else {
			log.Error("Error reading settings file:", err)
			return
		}
	}

	var newConfig Config
	if err := json.Unmarshal(data, &newConfig); err != nil {
		log.Error("Error unmarshalling settings file:", err)
		return
	}

	if err := applyConfigUpdate(newConfig, configUpdateOptions{source: "file"}); err != nil {
		log.Error("Error applying configuration from settings file:", err)
		return
	}

	log.Debug("Settings file loaded successfully")
}

func SetConfig(newConfig Config) {
	if err := applyConfigUpdate(newConfig, configUpdateOptions{persistToFile: true, source: "local"}); err != nil {
		log.Error("Error applying configuration update:", err)
		return
	}

	log.Debug("Configuration updated and written to file successfully")
}

type configUpdateOptions struct {
	persistToFile bool
	source        string
}

func applyConfigUpdate(newConfig Config, opts configUpdateOptions) error {
	configMu.Lock()
	defer configMu.Unlock()

	configValue.Store(newConfig)
	SetBetweenTime()

	var errs []error

	if opts.persistToFile {
		data, err := json.MarshalIndent(newConfig, "", "  ")
		if err != nil {
			log.Error("Error marshalling new configuration:", err)
			errs = append(errs, err)
		} else if err := os.WriteFile(settingsFilePath, data, os.ModePerm); err != nil {
			log.Error("Error writing new configuration to file:", err)
			errs = append(errs, err)
		}
	}

	if opts.source != "" {
		log.Debug("Configuration applied", "source", opts.source)
	}

	return errors.Join(errs...)
}

func GetConfig() Config {
	return configValue.Load().(Config)
}

func SetProductionMode(productionMode bool) {
	InProductionMode = productionMode
}

// GetSource looks up one source configuration by name.
func GetSource(name string) (SourceConfig, bool) {
	for _, src := range GetConfig().Sources {
		if strings.EqualFold(src.Name, name) {
			return src, true
		}
	}
	return SourceConfig{}, false
}

// EnabledSources returns the sources the collector should run, in
// configuration order.
func EnabledSources() []SourceConfig {
	var out []SourceConfig
	for _, src := range GetConfig().Sources {
		if src.Enabled {
			out = append(out, src)
		}
	}
	return out
}

// GetCredentials reads the injected credential pair for a source from the
// environment, e.g. KESTREL_KISA_USERNAME / KESTREL_KISA_PASSWORD.
func GetCredentials(sourceName string) Credentials {
	key := strings.ToUpper(strings.ReplaceAll(sourceName, "-", "_"))
	return Credentials{
		Username: support.GetEnv("KESTREL_"+key+"_USERNAME", ""),
		Password: support.GetEnv("KESTREL_"+key+"_PASSWORD", ""),
	}
}
