package config

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"sshmanager/pkg/remote"
	"sshmanager/pkg/transfer"
	"sshmanager/pkg/utils"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	SSH      SSHConfig
	Transfer TransferConfig
	Cleanup  CleanupConfig
	Watch    WatchConfig
	Paths    PathsConfig
	Log      LogConfig
}

type SSHConfig struct {
	Host                  string        `env:"SSH_HOST" validate:"required,hostname_rfc1123|ip"`
	Port                  int           `env:"SSH_PORT" validate:"min=1,max=65535"`
	Username              string        `env:"SSH_USER" validate:"required"`
	Password              string        `env:"SSH_PASSWORD"`
	KeyPath               string        `env:"SSH_KEY_PATH"`
	KeyPassphrase         string        `env:"SSH_KEY_PASSPHRASE"`
	KnownHostsPath        string        `env:"SSH_KNOWN_HOSTS"`
	InsecureIgnoreHostKey bool          `env:"SSH_INSECURE_IGNORE_HOST_KEY"`
	DialTimeout           time.Duration `env:"SSH_DIAL_TIMEOUT" validate:"gt=0"`
}

type TransferConfig struct {
	BufferSize int `env:"TRANSFER_BUFFER_SIZE" validate:"min=1024"`
	// ConflictPolicy is used when no interactive prompt is available.
	ConflictPolicy string        `env:"TRANSFER_CONFLICT_POLICY" validate:"oneof=ask overwrite skip resume keep-both"`
	StatsInterval  time.Duration `env:"TRANSFER_STATS_INTERVAL" validate:"gt=0"`
}

type CleanupConfig struct {
	Enabled bool          `env:"AUTO_CLEAR_COMPLETED"`
	Delay   time.Duration `env:"AUTO_CLEAR_DELAY" validate:"gte=0"`
}

type WatchConfig struct {
	Enabled   bool   `env:"WATCH_ENABLED"`
	Dir       string `env:"WATCH_DIR" validate:"required_if=Enabled true"`
	RemoteDir string `env:"WATCH_REMOTE_DIR" validate:"required_if=Enabled true"`
	// Patterns is a comma separated list of base name globs.
	Patterns      string        `env:"WATCH_PATTERNS"`
	SettlingDelay time.Duration `env:"WATCH_SETTLING_DELAY" validate:"gt=0"`
}

type PathsConfig struct {
	BaseDir     string `env:"BASE_DIR" validate:"required"`
	JournalDir  string `env:"JOURNAL_DIR"`
	DownloadDir string `env:"DOWNLOAD_DIR"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" validate:"oneof=trace debug info warn warning error fatal panic"`
	Format string `env:"LOG_FORMAT" validate:"oneof=text json"`
}

var defaultConfig = Config{
	SSH: SSHConfig{
		Port:        remote.DefaultPort,
		DialTimeout: remote.DefaultDialTimeout,
	},
	Transfer: TransferConfig{
		BufferSize:     remote.DefaultBufferSize,
		ConflictPolicy: "ask",
		StatsInterval:  transfer.DefaultStatsInterval,
	},
	Cleanup: CleanupConfig{
		Enabled: true,
		Delay:   transfer.DefaultCleanupDelay,
	},
	Watch: WatchConfig{
		Enabled:       false,
		SettlingDelay: transfer.DefaultSettlingDelay,
	},
	Paths: PathsConfig{
		BaseDir:     "data",
		JournalDir:  "journal",
		DownloadDir: "downloads",
	},
	Log: LogConfig{
		Level:  "info",
		Format: "text",
	},
}

var validate = validator.New()

// Load reads an optional .env file, applies environment overrides on top of
// the defaults and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig

	if err := cfg.loadFromEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to load environment config: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := cfg.resolveAndValidatePaths(); err != nil {
		return nil, fmt.Errorf("path validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) loadFromEnvironment() error {
	if _, err := env.UnmarshalFromEnviron(c); err != nil {
		return err
	}
	return nil
}

func (c *Config) resolveAndValidatePaths() error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	if !filepath.IsAbs(c.Paths.BaseDir) {
		c.Paths.BaseDir = filepath.Join(cwd, c.Paths.BaseDir)
	}
	// Journal and download dirs are relative to the base dir, not cwd.
	if !filepath.IsAbs(c.Paths.JournalDir) {
		c.Paths.JournalDir = filepath.Join(c.Paths.BaseDir, c.Paths.JournalDir)
	}
	if !filepath.IsAbs(c.Paths.DownloadDir) {
		c.Paths.DownloadDir = filepath.Join(c.Paths.BaseDir, c.Paths.DownloadDir)
	}

	requiredDirs := []string{
		c.Paths.BaseDir,
		c.Paths.JournalDir,
		c.Paths.DownloadDir,
	}

	for _, dir := range requiredDirs {
		if err := utils.ValidateWritableDir(dir); err != nil {
			return err
		}
	}

	if c.SSH.Password == "" && c.SSH.KeyPath == "" {
		return fmt.Errorf("either SSH_PASSWORD or SSH_KEY_PATH is required")
	}

	if c.SSH.KeyPath != "" && !utils.PathExists(c.SSH.KeyPath) {
		return fmt.Errorf("SSH key %s does not exist", c.SSH.KeyPath)
	}

	if !c.SSH.InsecureIgnoreHostKey && c.SSH.KnownHostsPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to locate known_hosts: %w", err)
		}
		c.SSH.KnownHostsPath = filepath.Join(home, ".ssh", "known_hosts")
	}

	if c.Watch.Enabled {
		if !filepath.IsAbs(c.Watch.Dir) {
			c.Watch.Dir = filepath.Join(cwd, c.Watch.Dir)
		}
		if err := utils.EnsureDir(c.Watch.Dir); err != nil {
			return fmt.Errorf("failed to create watch directory %s: %w", c.Watch.Dir, err)
		}
	}

	return nil
}

func (c *Config) GetWatchPatterns() []string {
	return utils.SplitList(c.Watch.Patterns)
}

// GetDownloadPath is where a download lands when no local directory is given.
func (c *Config) GetDownloadPath(remoteDir string) string {
	if remoteDir == "" {
		return c.Paths.DownloadDir
	}
	return utils.SafeJoin(c.Paths.DownloadDir, path.Base(utils.ToRemote(remoteDir)))
}

func (c *Config) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.SSH.Host, c.SSH.Port)
}
