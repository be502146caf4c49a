package webdav

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/viper"
)

// UserCredential is one entry of a realm's user_mapping: password, plus
// roles. Roles is decoded from the configuration but ConfigDomainController
// does not consult it.
type UserCredential struct {
	Password string   `mapstructure:"password"`
	Roles    []string `mapstructure:"roles"`
}

// ShareConfig binds one provider_mapping entry: a URL prefix and which
// backend kind mounts there.
type ShareConfig struct {
	Prefix   string `mapstructure:"prefix"`
	Kind     string `mapstructure:"kind"` // "filesystem" or "repository"
	Path     string `mapstructure:"path"` // filesystem root, ignored for "repository"
	ReadOnly bool   `mapstructure:"read_only"`
}

// DirBrowserConfig mirrors spec.md §6's dir_browser.* flags.
type DirBrowserConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Config is the full set of options spec.md §6 recognizes, bound from
// YAML/env/flags via viper exactly as crdffrance-bcrdf's pack entry binds
// its own Config struct.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`

	MountPath       string                                `mapstructure:"mount_path"`
	ProviderMapping []ShareConfig                         `mapstructure:"provider_mapping"`
	UserMapping     map[string]map[string]UserCredential `mapstructure:"user_mapping"`

	AcceptBasic   bool `mapstructure:"acceptbasic"`
	AcceptDigest  bool `mapstructure:"acceptdigest"`
	DefaultDigest bool `mapstructure:"defaultdigest"`

	LocksManager bool `mapstructure:"locksmanager"`
	PropsManager bool `mapstructure:"propsmanager"`

	Verbose int `mapstructure:"verbose"`

	DirBrowser DirBrowserConfig `mapstructure:"dir_browser"`

	DebugMethods []string `mapstructure:"debug_methods"`
	DebugLitmus  bool     `mapstructure:"debug_litmus"`
}

// defaultConfig accepts Basic and Digest authentication (which only takes
// effect once user_mapping has entries) and turns the lock and property
// manager keys on, listening on :8080 with shares mounted at "/".
func defaultConfig() Config {
	return Config{
		ListenAddr:    ":8080",
		MountPath:     "/",
		AcceptBasic:   true,
		AcceptDigest:  true,
		LocksManager:  true,
		PropsManager:  true,
		Verbose:       1,
	}
}

// LoadConfig reads configuration from path (if non-empty) layered over
// environment variables prefixed DAVSHARE_ and the built-in defaults,
// binding through v so callers can pre-register cobra flags with
// v.BindPFlag before calling this.
func LoadConfig(v *viper.Viper, path string) (Config, error) {
	cfg := defaultConfig()
	v.SetEnvPrefix("DAVSHARE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("loading config %s: %w", path, err)
		}
	}

	var out Config
	if err := v.Unmarshal(&out); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return out, nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("listen_addr", cfg.ListenAddr)
	v.SetDefault("mount_path", cfg.MountPath)
	v.SetDefault("acceptbasic", cfg.AcceptBasic)
	v.SetDefault("acceptdigest", cfg.AcceptDigest)
	v.SetDefault("defaultdigest", cfg.DefaultDigest)
	v.SetDefault("locksmanager", cfg.LocksManager)
	v.SetDefault("propsmanager", cfg.PropsManager)
	v.SetDefault("verbose", cfg.Verbose)
	v.SetDefault("dir_browser.enabled", cfg.DirBrowser.Enabled)
	v.SetDefault("debug_litmus", cfg.DebugLitmus)
}

// AuthScheme computes the Authenticator scheme bitmask this config
// requests; zero means authentication is fully disabled.
func (c Config) AuthScheme() AuthScheme {
	var s AuthScheme
	if c.AcceptBasic {
		s |= AuthBasic
	}
	if c.AcceptDigest {
		s |= AuthDigest
	}
	return s
}

// ConfigDomainController is the DomainController backed directly by
// Config.UserMapping: realm names are mount-path prefixes, consistent
// with spec.md §6's "realm → user → {password, roles}" shape. It is the
// in-memory realm map spec.md §1's Non-goals explicitly scope
// authentication storage down to.
type ConfigDomainController struct {
	cfg Config
}

// NewConfigDomainController builds a DomainController over cfg's
// user_mapping table.
func NewConfigDomainController(cfg Config) *ConfigDomainController {
	return &ConfigDomainController{cfg: cfg}
}

var _ DomainController = (*ConfigDomainController)(nil)

func (c *ConfigDomainController) GetDomainRealm(path string, r *http.Request) string {
	best := ""
	for realm := range c.cfg.UserMapping {
		if strings.HasPrefix(path, realm) && len(realm) > len(best) {
			best = realm
		}
	}
	if best == "" {
		return c.cfg.MountPath
	}
	return best
}

func (c *ConfigDomainController) RequireAuthentication(realm string, r *http.Request) bool {
	_, ok := c.cfg.UserMapping[realm]
	return ok
}

func (c *ConfigDomainController) IsRealmUser(realm, user string, r *http.Request) bool {
	users, ok := c.cfg.UserMapping[realm]
	if !ok {
		return false
	}
	_, ok = users[user]
	return ok
}

func (c *ConfigDomainController) GetRealmUserPassword(realm, user string, r *http.Request) string {
	users, ok := c.cfg.UserMapping[realm]
	if !ok {
		return ""
	}
	return users[user].Password
}

func (c *ConfigDomainController) AuthDomainUser(realm, user, password string, r *http.Request) bool {
	return false
}

// BuildRouter constructs the Router cfg.ProviderMapping describes,
// mounting a LocalFileSystem per "filesystem" entry and a fresh
// RepositoryProvider per "repository" entry, with the synthetic root
// listing wired in afterward (Router/RootProvider's construction cycle,
// see Router.SetRoot).
func BuildRouter(cfg Config) (*Router, error) {
	shares := make([]Share, 0, len(cfg.ProviderMapping))
	for _, sc := range cfg.ProviderMapping {
		if sc.Prefix == "" {
			return nil, fmt.Errorf("provider_mapping entry missing prefix")
		}
		var p Provider
		switch sc.Kind {
		case "filesystem", "":
			if sc.Path == "" {
				return nil, fmt.Errorf("provider_mapping %q: filesystem kind requires path", sc.Prefix)
			}
			p = NewLocalFileSystem(sc.Path, sc.ReadOnly)
		case "repository":
			p = NewRepositoryProvider(sc.ReadOnly)
		default:
			return nil, fmt.Errorf("provider_mapping %q: unknown kind %q", sc.Prefix, sc.Kind)
		}
		shares = append(shares, Share{Name: sc.Prefix, Provider: p})
	}

	router := NewRouter(nil, shares...)
	router.SetRoot(NewRootProvider(router))
	return router, nil
}
