// Package config loads sqltes settings from an optional yaml or toml file and applies cli overrides.
package config

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/umputun/sqltes/pkg/inspector"
)

// Config defines the top-level config object
type Config struct {
	DataDir   string  `yaml:"data_dir" toml:"data_dir"`     // directory for database files
	DefaultDB string  `yaml:"default_db" toml:"default_db"` // database opened when none requested
	Listen    string  `yaml:"listen" toml:"listen"`         // address for serve mode
	Examples  []Level `yaml:"examples" toml:"examples"`     // example queries grouped by tutorial level
}

// Level is a named group of example queries
type Level struct {
	Name    string   `yaml:"level" toml:"level" json:"level"`
	Queries []string `yaml:"queries" toml:"queries" json:"queries"`
}

// Overrides defines values passed from cli, non-empty fields replace config values
type Overrides struct {
	DataDir   string
	DefaultDB string
	Listen    string
}

const defaultListen = "127.0.0.1:8080"

// DefaultExamples are the built-in tutorial queries, from simple inserts to joins.
var DefaultExamples = []Level{
	{Name: "Beginner", Queries: []string{
		"INSERT INTO users (name, age, city) VALUES ('Alice', 25, 'New York')",
		"SELECT * FROM users WHERE age > 20",
		"UPDATE users SET age = 30 WHERE name = 'Alice'",
	}},
	{Name: "Intermediate", Queries: []string{
		"CREATE TABLE students (id INTEGER PRIMARY KEY, name TEXT, grade INTEGER)",
		"SELECT name, city FROM users ORDER BY age DESC",
		"DELETE FROM users WHERE age < 18",
	}},
	{Name: "Advanced", Queries: []string{
		"CREATE TABLE orders (order_id INTEGER PRIMARY KEY, user_id INTEGER, amount REAL, FOREIGN KEY(user_id) REFERENCES users(id))",
		"SELECT u.name, o.amount FROM users u JOIN orders o ON u.id = o.user_id",
		"DROP TABLE IF EXISTS students",
	}},
}

// New makes Config from the file fname, if set, and applies overrides. Fields missing in the file
// get defaults. Returns an error if the file can't be read, parsed or has invalid values.
func New(fname string, overrides *Overrides) (*Config, error) {
	res := &Config{}
	if fname != "" {
		log.Printf("[DEBUG] request to load config %q", fname)
		data, err := os.ReadFile(fname) // nolint
		if err != nil {
			return nil, fmt.Errorf("can't read config %s: %w", fname, err)
		}
		if err = unmarshal(fname, data, res); err != nil {
			return nil, err
		}
	}

	if overrides != nil {
		if overrides.DataDir != "" {
			res.DataDir = overrides.DataDir
		}
		if overrides.DefaultDB != "" {
			res.DefaultDB = overrides.DefaultDB
		}
		if overrides.Listen != "" {
			res.Listen = overrides.Listen
		}
	}

	if res.DefaultDB == "" {
		res.DefaultDB = inspector.DefaultName
	}
	if res.Listen == "" {
		res.Listen = defaultListen
	}
	if len(res.Examples) == 0 {
		res.Examples = DefaultExamples
	}

	if err := res.checkConfig(); err != nil {
		if fname == "" {
			return nil, fmt.Errorf("config is invalid: %w", err)
		}
		return nil, fmt.Errorf("config %s is invalid: %w", fname, err)
	}
	log.Printf("[DEBUG] config loaded, data dir %q, default db %q, %d example levels", res.DataDir, res.DefaultDB, len(res.Examples))
	return res, nil
}

// Level returns example level by name, case-insensitive.
func (c *Config) Level(name string) (Level, error) {
	for _, l := range c.Examples {
		if strings.EqualFold(l.Name, name) {
			return l, nil
		}
	}
	return Level{}, fmt.Errorf("example level %q not found", name)
}

// LevelNames returns names of all example levels in config order.
func (c *Config) LevelNames() []string {
	res := make([]string, 0, len(c.Examples))
	for _, l := range c.Examples {
		res = append(res, l.Name)
	}
	return res
}

// unmarshal parses data by file extension, yaml for .yml/.yaml or no extension, toml for .toml.
// Both decoders reject unknown fields.
func unmarshal(fname string, data []byte, res *Config) error {
	switch {
	case strings.HasSuffix(fname, ".yml") || strings.HasSuffix(fname, ".yaml") || !strings.Contains(fname, "."):
		yamlDecoder := yaml.NewDecoder(bytes.NewReader(data))
		yamlDecoder.KnownFields(true)
		if err := yamlDecoder.Decode(res); err != nil {
			return fmt.Errorf("can't unmarshal yaml config %s: %w", fname, err)
		}
	case strings.HasSuffix(fname, ".toml"):
		tomlDecoder := toml.NewDecoder(bytes.NewReader(data))
		tomlDecoder.DisallowUnknownFields()
		if err := tomlDecoder.Decode(res); err != nil {
			return fmt.Errorf("can't unmarshal toml config %s: %w", fname, err)
		}
	default:
		return fmt.Errorf("unknown config format %s", fname)
	}
	return nil
}

// checkConfig validates the config, collecting all problems:
// - default database name must have usable characters
// - example levels must have unique, non-empty names and at least one non-empty query
func (c *Config) checkConfig() error {
	errs := new(multierror.Error)

	if inspector.SanitizeName(c.DefaultDB) == "" {
		errs = multierror.Append(errs, fmt.Errorf("default database name %q has no usable characters", c.DefaultDB))
	}

	names := make(map[string]bool)
	for i, l := range c.Examples {
		if l.Name == "" {
			errs = multierror.Append(errs, fmt.Errorf("example level #%d has no name", i))
			continue
		}
		key := strings.ToLower(l.Name)
		if names[key] {
			errs = multierror.Append(errs, fmt.Errorf("duplicate example level %q", l.Name))
		}
		names[key] = true
		if len(l.Queries) == 0 {
			errs = multierror.Append(errs, fmt.Errorf("example level %q has no queries", l.Name))
		}
		for j, q := range l.Queries {
			if strings.TrimSpace(q) == "" {
				errs = multierror.Append(errs, fmt.Errorf("example level %q, query #%d is empty", l.Name, j))
			}
		}
	}

	return errs.ErrorOrNil()
}
