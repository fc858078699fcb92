package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// WorkspaceDirName is the directory name for project-level devlink config.
	WorkspaceDirName = ".devlink"
	// WorkspaceConfigFile is the config file name inside the workspace directory.
	WorkspaceConfigFile = "config.yaml"
	// MaxSearchDepth limits how many parent directories to walk when discovering a workspace.
	MaxSearchDepth = 10
	// EnvPrefix namespaces the environment overrides applied by ApplyEnv.
	EnvPrefix = "DEVLINK_"
)

// WorkspaceOptions controls workspace discovery behavior.
type WorkspaceOptions struct {
	// Disable skips workspace discovery entirely (--no-workspace flag).
	Disable bool
	// ExplicitDir uses this directory as workspace root instead of walking up (--workspace-dir flag).
	ExplicitDir string
}

// Config captures all tunable settings for the devlink MCP server.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Connection ConnectionConfig `yaml:"connection"`
	Collector  CollectorConfig  `yaml:"collector"`
	MCP        MCPConfig        `yaml:"mcp"`
	Mangle     MangleConfig     `yaml:"mangle"`
	Recorder   RecorderConfig   `yaml:"recorder"`
}

type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	LogFile string `yaml:"log_file"`
}

// ConnectionConfig holds the defaults every connect call starts from.
type ConnectionConfig struct {
	// Primary strategy: launch | connect | discover. Empty picks connect when an endpoint is set.
	Strategy string   `yaml:"strategy"`
	Fallback []string `yaml:"fallback"`
	// Endpoint is a ws:// DevTools URL, an http debugger address, host:port or a bare port.
	Endpoint    string   `yaml:"endpoint"`
	ProjectPath string   `yaml:"project_path"`
	Binary      string   `yaml:"binary"`
	Port        int      `yaml:"port"`
	Headless    *bool    `yaml:"headless"`
	Stealth     bool     `yaml:"stealth"`
	URL         string   `yaml:"url"`
	Args        []string `yaml:"args"`
	// Discovery appends the discover strategy to the fallback chain.
	Discovery      bool     `yaml:"discovery"`
	DiscoveryHosts []string `yaml:"discovery_hosts"`
	DiscoveryPorts []int    `yaml:"discovery_ports"`
	// Per-attempt attach timeout (e.g., "15s").
	AttachTimeout string `yaml:"attach_timeout"`
	// Bound on the whole fallback chain. Empty or "0" means unbounded.
	TotalTimeout string `yaml:"total_timeout"`
	HealthCheck  *bool  `yaml:"health_check"`
	// Per-check timeout for the health prober.
	CheckTimeout string `yaml:"check_timeout"`
	// Bound on the best-effort close during teardown.
	CloseTimeout string `yaml:"close_timeout"`
	// AutoConnect runs one connect with these defaults at startup.
	AutoConnect bool `yaml:"auto_connect"`
}

// CollectorConfig sizes the console and network buffers.
type CollectorConfig struct {
	// Navigation segments retained per collector (current + preserved).
	MaxNavigations int `yaml:"max_navigations"`
	// Default page size for list tools.
	PageSize int `yaml:"page_size"`
}

type MCPConfig struct {
	// When set, starts an SSE server on this port instead of stdio-only.
	SSEPort int `yaml:"sse_port"`
}

// MangleConfig controls the embedded deductive engine.
type MangleConfig struct {
	Enable          bool   `yaml:"enable"`
	SchemaPath      string `yaml:"schema_path"`
	FactBufferLimit int    `yaml:"fact_buffer_limit"`
}

// RecorderConfig controls connection lifecycle traces.
type RecorderConfig struct {
	Enable   bool   `yaml:"enable"`
	Dir      string `yaml:"dir"`
	MaxFiles int    `yaml:"max_files"`
}

// DefaultConfig provides reasonable defaults for local development.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Name:    "devlink-mcp",
			Version: "0.1.0",
			LogFile: "devlink-mcp.log",
		},
		Connection: ConnectionConfig{
			AttachTimeout: "15s",
			CheckTimeout:  "5s",
			CloseTimeout:  "5s",
		},
		Collector: CollectorConfig{
			MaxNavigations: 3,
			PageSize:       20,
		},
		MCP: MCPConfig{
			SSEPort: 0,
		},
		Mangle: MangleConfig{
			Enable:          true,
			FactBufferLimit: 4096,
		},
		Recorder: RecorderConfig{
			Enable:   false,
			Dir:      "data/traces",
			MaxFiles: 3,
		},
	}
}

// Load reads YAML config from disk and overlays defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, errors.New("config path is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// DiscoverWorkspace walks up from startDir looking for a .devlink/config.yaml file.
// Returns the workspace root directory (parent of .devlink/) or empty string if not found.
func DiscoverWorkspace(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving start directory: %w", err)
	}

	for i := 0; i < MaxSearchDepth; i++ {
		candidate := filepath.Join(dir, WorkspaceDirName, WorkspaceConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			break
		}
		dir = parent
	}

	return "", nil
}

// LoadWithWorkspace implements multi-layer config merge:
//
//	DefaultConfig() <- .devlink/config.yaml <- explicit --config <- DEVLINK_* env <- CLI flags
//
// Returns the merged config and the workspace directory (empty if none found).
func LoadWithWorkspace(explicitConfig string, opts WorkspaceOptions) (Config, string, error) {
	cfg := DefaultConfig()
	wsDir := ""

	// Layer 1: Workspace config (if not disabled)
	if !opts.Disable {
		var err error
		if opts.ExplicitDir != "" {
			candidate := filepath.Join(opts.ExplicitDir, WorkspaceDirName, WorkspaceConfigFile)
			if _, statErr := os.Stat(candidate); statErr == nil {
				wsDir = opts.ExplicitDir
			}
		} else {
			cwd, cwdErr := os.Getwd()
			if cwdErr != nil {
				return cfg, "", fmt.Errorf("getting working directory: %w", cwdErr)
			}
			wsDir, err = DiscoverWorkspace(cwd)
			if err != nil {
				return cfg, "", fmt.Errorf("discovering workspace: %w", err)
			}
		}

		if wsDir != "" {
			wsConfigPath := filepath.Join(wsDir, WorkspaceDirName, WorkspaceConfigFile)
			raw, err := os.ReadFile(wsConfigPath)
			if err != nil {
				return cfg, "", fmt.Errorf("reading workspace config %s: %w", wsConfigPath, err)
			}
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, "", fmt.Errorf("parsing workspace config %s: %w", wsConfigPath, err)
			}
			cfg = resolveWorkspacePaths(cfg, wsDir)
		}
	}

	// Layer 2: Explicit config file (--config flag)
	if explicitConfig != "" {
		raw, err := os.ReadFile(explicitConfig)
		if err != nil {
			return cfg, wsDir, fmt.Errorf("reading explicit config %s: %w", explicitConfig, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, wsDir, fmt.Errorf("parsing explicit config %s: %w", explicitConfig, err)
		}
	}

	// Layer 3: Environment
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, wsDir, err
	}

	return cfg, wsDir, cfg.Validate()
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays DEVLINK_* variables found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = splitList(v)
		}
	}
	var firstErr error
	fail := func(name, v string, err error) {
		if firstErr == nil {
			firstErr = fmt.Errorf("%s%s=%q: %w", EnvPrefix, name, v, err)
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				fail(name, v, err)
				return
			}
			*dst = n
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				fail(name, v, err)
				return
			}
			*dst = b
		}
	}
	optBool := func(name string, dst **bool) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				fail(name, v, err)
				return
			}
			*dst = &b
		}
	}

	str("LOG_FILE", &c.Server.LogFile)

	str("STRATEGY", &c.Connection.Strategy)
	list("FALLBACK", &c.Connection.Fallback)
	str("ENDPOINT", &c.Connection.Endpoint)
	str("PROJECT_PATH", &c.Connection.ProjectPath)
	str("BINARY", &c.Connection.Binary)
	integer("PORT", &c.Connection.Port)
	optBool("HEADLESS", &c.Connection.Headless)
	boolean("STEALTH", &c.Connection.Stealth)
	str("URL", &c.Connection.URL)
	boolean("DISCOVERY", &c.Connection.Discovery)
	list("DISCOVERY_HOSTS", &c.Connection.DiscoveryHosts)
	if v, ok := lookup(EnvPrefix + "DISCOVERY_PORTS"); ok && v != "" {
		ports, err := parsePorts(v)
		if err != nil {
			fail("DISCOVERY_PORTS", v, err)
		} else {
			c.Connection.DiscoveryPorts = ports
		}
	}
	str("ATTACH_TIMEOUT", &c.Connection.AttachTimeout)
	str("TOTAL_TIMEOUT", &c.Connection.TotalTimeout)
	optBool("HEALTH_CHECK", &c.Connection.HealthCheck)
	boolean("AUTO_CONNECT", &c.Connection.AutoConnect)

	integer("MAX_NAVIGATIONS", &c.Collector.MaxNavigations)
	integer("PAGE_SIZE", &c.Collector.PageSize)
	integer("SSE_PORT", &c.MCP.SSEPort)
	boolean("MANGLE", &c.Mangle.Enable)
	boolean("RECORDER", &c.Recorder.Enable)
	str("RECORDER_DIR", &c.Recorder.Dir)

	return firstErr
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parsePorts(v string) ([]int, error) {
	parts := splitList(v)
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// InitWorkspace creates a .devlink/ directory with template files at root.
func InitWorkspace(root string) error {
	wsDir := filepath.Join(root, WorkspaceDirName)

	if _, err := os.Stat(wsDir); err == nil {
		return fmt.Errorf("workspace directory already exists: %s", wsDir)
	}

	dirs := []string{
		wsDir,
		filepath.Join(wsDir, "schemas"),
		filepath.Join(wsDir, "data"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	templateConfig := `# devlink project-level configuration
# Values here override defaults but are overridden by --config, DEVLINK_* env and CLI flags.

# connection:
#   strategy: launch
#   fallback: [connect]
#   endpoint: "ws://127.0.0.1:9421"
#   project_path: "."
#   headless: true
#   attach_timeout: "15s"
#   total_timeout: "45s"
#   auto_connect: false

# collector:
#   max_navigations: 3
#   page_size: 20

# mangle:
#   schema_path: "schemas/project.mg"

# recorder:
#   enable: true
#   dir: "data/traces"
`
	configPath := filepath.Join(wsDir, WorkspaceConfigFile)
	if err := os.WriteFile(configPath, []byte(templateConfig), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	gitignoreContent := "# Runtime data (logs, traces) - do not version control\ndata/\n*.log\n"
	gitignorePath := filepath.Join(wsDir, ".gitignore")
	if err := os.WriteFile(gitignorePath, []byte(gitignoreContent), 0644); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}

	return nil
}

// resolveWorkspacePaths resolves relative paths in the config against the workspace directory.
func resolveWorkspacePaths(cfg Config, wsDir string) Config {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(wsDir, p)
	}

	cfg.Server.LogFile = resolve(cfg.Server.LogFile)
	cfg.Mangle.SchemaPath = resolve(cfg.Mangle.SchemaPath)
	cfg.Recorder.Dir = resolve(cfg.Recorder.Dir)
	return cfg
}

// Validate ensures required fields exist so the server can start deterministically.
func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return errors.New("server.name is required")
	}
	for _, field := range []struct {
		name, value string
	}{
		{"connection.attach_timeout", c.Connection.AttachTimeout},
		{"connection.total_timeout", c.Connection.TotalTimeout},
		{"connection.check_timeout", c.Connection.CheckTimeout},
		{"connection.close_timeout", c.Connection.CloseTimeout},
	} {
		if field.value == "" {
			continue
		}
		d, err := time.ParseDuration(field.value)
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative", field.name)
		}
	}
	if c.Collector.MaxNavigations < 0 {
		return errors.New("collector.max_navigations must not be negative")
	}
	if c.Connection.AutoConnect && c.Connection.Endpoint == "" && c.Connection.ProjectPath == "" &&
		c.Connection.URL == "" && !c.Connection.Discovery && c.Connection.Strategy != "discover" {
		return errors.New("connection.auto_connect needs an endpoint, project_path, url or discovery")
	}
	return nil
}

func parseDuration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return def
	}
	return d
}

// AttachTimeoutDuration returns the per-attempt attach timeout with a sane default.
func (c ConnectionConfig) AttachTimeoutDuration() time.Duration {
	return parseDuration(c.AttachTimeout, 15*time.Second)
}

// TotalTimeoutDuration returns the fallback chain bound; zero means unbounded.
func (c ConnectionConfig) TotalTimeoutDuration() time.Duration {
	return parseDuration(c.TotalTimeout, 0)
}

// CheckTimeoutDuration returns the per-check health timeout with a sane default.
func (c ConnectionConfig) CheckTimeoutDuration() time.Duration {
	return parseDuration(c.CheckTimeout, 5*time.Second)
}

// CloseTimeoutDuration returns the teardown close bound with a sane default.
func (c ConnectionConfig) CloseTimeoutDuration() time.Duration {
	return parseDuration(c.CloseTimeout, 5*time.Second)
}

// IsHeadless returns whether a launched browser runs headless (default: true).
func (c ConnectionConfig) IsHeadless() bool {
	if c.Headless == nil {
		return true
	}
	return *c.Headless
}

// HealthCheckEnabled returns whether attach is followed by a health probe (default: true).
func (c ConnectionConfig) HealthCheckEnabled() bool {
	if c.HealthCheck == nil {
		return true
	}
	return *c.HealthCheck
}

// GetMaxNavigations returns the segment cap with a sane default.
func (c CollectorConfig) GetMaxNavigations() int {
	if c.MaxNavigations <= 0 {
		return 3
	}
	return c.MaxNavigations
}

// GetPageSize returns the default list page size with a sane default.
func (c CollectorConfig) GetPageSize() int {
	if c.PageSize <= 0 {
		return 20
	}
	return c.PageSize
}
