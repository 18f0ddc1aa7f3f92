package mirror

import (
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cockroachdb/errors"
)

const defaultConcurrentResolve = 64

// tomlURL wraps url.URL for TOML decoding. Only http(s) bases are
// accepted, and a trailing slash is enforced so string-prefix matching
// and reference resolution behave.
type tomlURL struct {
	*url.URL
}

func (u *tomlURL) UnmarshalText(text []byte) error {
	parsedURL, err := url.Parse(string(text))
	if err != nil {
		return err
	}
	switch parsedURL.Scheme {
	case "http":
	case "https":
	default:
		return errors.New("unsupported scheme: " + parsedURL.Scheme)
	}

	if !strings.HasSuffix(parsedURL.Path, "/") {
		parsedURL.Path += "/"
		parsedURL.RawPath += "/"
	}

	u.URL = parsedURL
	return nil
}

// LogConfig represents slog configuration options.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Apply configures the global slog logger based on the configuration.
func (logConfig *LogConfig) Apply() error {
	var level slog.Level
	switch strings.ToLower(logConfig.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return errors.New("invalid log level: " + logConfig.Level)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(logConfig.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "plain", "", "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return errors.New("invalid log format: " + logConfig.Format)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

// TransferSection is the [transfer] table of the configuration file.
type TransferSection struct {
	Workers           int      `toml:"workers"`
	TimeoutSeconds    int      `toml:"timeout_seconds"`
	ConcurrentResolve int      `toml:"concurrent_resolve"`
	ExcludePatterns   []string `toml:"exclude_patterns"`
	Progress          bool     `toml:"progress"`
	Debug             bool     `toml:"debug"`
}

// Check validates the transfer parameters.
func (s *TransferSection) Check() error {
	if s.Workers < 0 {
		return errors.New("workers must not be negative")
	}
	if s.TimeoutSeconds < 0 {
		return errors.New("timeout_seconds must not be negative")
	}
	if s.ConcurrentResolve < 0 {
		return errors.New("concurrent_resolve must not be negative")
	}
	for _, pattern := range s.ExcludePatterns {
		if !doublestar.ValidatePattern(pattern) {
			return errors.New("invalid exclude pattern: " + pattern)
		}
	}
	return nil
}

// SourceSection is the [source] table. Exactly one backend must be set.
type SourceSection struct {
	PyPI  *PyPI  `toml:"pypi"`
	Rsync *Rsync `toml:"rsync"`
}

// Check validates the source configuration.
func (s *SourceSection) Check() error {
	switch {
	case s.PyPI != nil && s.Rsync != nil:
		return errors.New("more than one source backend configured")
	case s.PyPI != nil:
		return errors.Wrap(s.PyPI.Check(), "source.pypi")
	case s.Rsync != nil:
		return errors.Wrap(s.Rsync.Check(), "source.rsync")
	default:
		return errors.New("no source backend configured")
	}
}

// Build returns the configured source backend.
func (s *SourceSection) Build() (Source[SnapshotPath, TransferURL], error) {
	if err := s.Check(); err != nil {
		return nil, err
	}
	if s.PyPI != nil {
		return s.PyPI, nil
	}
	return s.Rsync, nil
}

// TargetSection is the [target] table. Exactly one backend must be set.
type TargetSection struct {
	File *FileTarget `toml:"file"`
	S3   *S3Target   `toml:"s3"`
}

// Check validates the target configuration.
func (s *TargetSection) Check() error {
	switch {
	case s.File != nil && s.S3 != nil:
		return errors.New("more than one target backend configured")
	case s.File != nil:
		return errors.Wrap(s.File.Check(), "target.file")
	case s.S3 != nil:
		return errors.Wrap(s.S3.Check(), "target.s3")
	default:
		return errors.New("no target backend configured")
	}
}

// Build returns the configured target backend.
func (s *TargetSection) Build() (Target[SnapshotPath, TransferURL], error) {
	if err := s.Check(); err != nil {
		return nil, err
	}
	if s.File != nil {
		return s.File, nil
	}
	return s.S3, nil
}

// Config is a struct to read TOML configurations.
//
// Use https://github.com/BurntSushi/toml as follows:
//
//	config := mirror.NewConfig()
//	md, err := toml.DecodeFile("/path/to/config.toml", config)
//	if err != nil {
//	    ...
//	}
type Config struct {
	// Site identifies this mirror in the User-Agent of every request.
	Site string `toml:"site"`

	Log      LogConfig       `toml:"log"`
	Transfer TransferSection `toml:"transfer"`
	Source   SourceSection   `toml:"source"`
	Target   TargetSection   `toml:"target"`
}

// Check validates the configuration.
func (c *Config) Check() error {
	if err := c.Transfer.Check(); err != nil {
		return errors.Wrap(err, "transfer")
	}
	if err := c.Source.Check(); err != nil {
		return err
	}
	return c.Target.Check()
}

// TransferConfig maps the decoded configuration onto engine parameters,
// filling in defaults.
func (c *Config) TransferConfig() TransferConfig {
	return TransferConfig{
		Progress:    c.Transfer.Progress,
		Workers:     c.Transfer.Workers,
		StepTimeout: time.Duration(c.Transfer.TimeoutSeconds) * time.Second,
		Site:        c.Site,
		Snapshot:    c.SnapshotConfig(),
	}
}

// SnapshotConfig maps the decoded configuration onto snapshot parameters.
func (c *Config) SnapshotConfig() SnapshotConfig {
	concurrent := c.Transfer.ConcurrentResolve
	if concurrent <= 0 {
		concurrent = defaultConcurrentResolve
	}
	return SnapshotConfig{
		ConcurrentResolve: concurrent,
		ExcludePatterns:   c.Transfer.ExcludePatterns,
		Debug:             c.Transfer.Debug,
	}
}

// NewConfig creates Config with default values.
func NewConfig() *Config {
	return &Config{
		Transfer: TransferSection{
			Workers:           defaultWorkers,
			TimeoutSeconds:    int(defaultStepTimeout / time.Second),
			ConcurrentResolve: defaultConcurrentResolve,
		},
	}
}
