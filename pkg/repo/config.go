package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
)

// ErrUnsupportedRepository is returned by Open for repositories whose format
// this package cannot read.
var ErrUnsupportedRepository = errors.New("unsupported repository format")

const defaultIdentity = "revlist <revlist@localhost>"

// Config holds the .git/config values the repository layer acts on.
type Config struct {
	FormatVersion int
	ObjectFormat  string
	Bare          bool
	UserName      string
	UserEmail     string
}

func configLoadOptions() ini.LoadOptions {
	return ini.LoadOptions{
		Insensitive:             true,
		AllowBooleanKeys:        true,
		SkipUnrecognizableLines: true,
	}
}

// readConfig parses gitDir/config. A missing file yields the defaults.
func readConfig(gitDir string) (*Config, error) {
	path := filepath.Join(gitDir, "config")
	cfg := &Config{ObjectFormat: "sha1"}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	f, err := ini.LoadSources(configLoadOptions(), data)
	if err != nil {
		return nil, fmt.Errorf("read config: parse %s: %w", path, err)
	}

	core := f.Section("core")
	cfg.FormatVersion = core.Key("repositoryformatversion").MustInt(0)
	cfg.Bare = core.Key("bare").MustBool(false)
	if f.HasSection("extensions") {
		cfg.ObjectFormat = strings.ToLower(f.Section("extensions").Key("objectformat").MustString("sha1"))
	}
	user := f.Section("user")
	cfg.UserName = strings.TrimSpace(user.Key("name").String())
	cfg.UserEmail = strings.TrimSpace(user.Key("email").String())

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.FormatVersion != 0 && c.FormatVersion != 1 {
		return fmt.Errorf("%w: repositoryformatversion %d", ErrUnsupportedRepository, c.FormatVersion)
	}
	if c.ObjectFormat != "" && c.ObjectFormat != "sha1" {
		return fmt.Errorf("%w: objectformat %q", ErrUnsupportedRepository, c.ObjectFormat)
	}
	return nil
}

// Identity returns "Name <email>" from user.name and user.email, falling
// back to a fixed identity when either is unset.
func (c *Config) Identity() string {
	if c == nil || c.UserName == "" || c.UserEmail == "" {
		return defaultIdentity
	}
	return fmt.Sprintf("%s <%s>", c.UserName, c.UserEmail)
}

// writeDefaultConfig writes the config Init creates.
func writeDefaultConfig(gitDir string, bare bool) error {
	f := ini.Empty()
	core, err := f.NewSection("core")
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	values := [][2]string{
		{"repositoryformatversion", "0"},
		{"filemode", "true"},
		{"bare", fmt.Sprintf("%t", bare)},
		{"logallrefupdates", "true"},
	}
	for _, kv := range values {
		if _, err := core.NewKey(kv[0], kv[1]); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
	}
	if err := f.SaveTo(filepath.Join(gitDir, "config")); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
