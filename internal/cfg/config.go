package cfg

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pelletier/go-toml"
)

const (
	DefaultOrganization    = "openmicroscopy"
	DefaultLogFormat       = "logfmt"
	DefaultLogTimeKey      = "time_iso8601"
	DefaultLogLevel        = "info"
	DefaultPushRemote      = "team"
	DefaultAPIRetryTimeout = 10 * time.Minute
)

type Config struct {
	GithubAPIToken string `toml:"github_api_token"`
	// Organization is the GitHub organization whose public members'
	// pull requests are merged without an include label.
	Organization string `toml:"organization"`
	LogFormat    string `toml:"log_format"`
	LogTimeKey   string `toml:"log_time_key"`
	LogLevel     string `toml:"log_level"`
	// TestDirectoriesFile is the file "--test" directives are written to,
	// relative to the repository directory.
	TestDirectoriesFile string `toml:"test_directories_file"`
	ForkURLTemplate     string `toml:"fork_url_template"`
	PushRemote          string `toml:"push_remote"`
	FilterQuery         string `toml:"filter_query"`
	// MetricsTextfile is the path of a file prometheus metrics are written
	// to on termination, in the node-exporter textfile format.
	MetricsTextfile string `toml:"metrics_textfile"`
	// APIRetryTimeout is a duration string, e.g. "5m".
	APIRetryTimeout string `toml:"api_retry_timeout"`
}

// RetryTimeout returns the parsed APIRetryTimeout.
func (r *Config) RetryTimeout() (time.Duration, error) {
	if r.APIRetryTimeout == "" {
		return DefaultAPIRetryTimeout, nil
	}

	d, err := time.ParseDuration(r.APIRetryTimeout)
	if err != nil {
		return 0, fmt.Errorf("api_retry_timeout: %w", err)
	}

	if d <= 0 {
		return 0, fmt.Errorf("api_retry_timeout: must be positive, is %s", d)
	}

	return d, nil
}

// Default returns a Config with the default values.
func Default() *Config {
	return &Config{
		Organization:    DefaultOrganization,
		LogFormat:       DefaultLogFormat,
		LogTimeKey:      DefaultLogTimeKey,
		LogLevel:        DefaultLogLevel,
		PushRemote:      DefaultPushRemote,
		APIRetryTimeout: DefaultAPIRetryTimeout.String(),
	}
}

// Load reads a TOML configuration from reader.
// Settings that are missing in the file have their default value.
func Load(reader io.Reader) (*Config, error) {
	result := Default()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, result); err != nil {
		return nil, err
	}

	return result, nil
}

// LoadFile loads the configuration file at path.
// If path does not exist and mustExist is false, the default configuration
// is returned.
func LoadFile(path string, mustExist bool) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !mustExist {
			return Default(), nil
		}

		return nil, err
	}
	defer file.Close()

	result, err := Load(file)
	if err != nil {
		return nil, fmt.Errorf("parsing %s failed: %w", path, err)
	}

	return result, nil
}

func (r *Config) Marshal(writer io.Writer) error {
	return toml.NewEncoder(writer).Encode(r)
}
