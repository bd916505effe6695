// Package access resolves the effective paid/free decision for served
// paths from per-directory declaration files.
package access

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DeclarationFile is the per-directory access declaration filename.
const DeclarationFile = ".satgate.yaml"

// ErrMissingPrice reports a directory chain that declares paid access
// without any base price to charge.
var ErrMissingPrice = errors.New("paid access declared without a base price")

// ConfigError reports a broken or inconsistent access declaration. It is an
// operator problem, not a client one; handlers should surface it as a
// generic server error.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("access config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Price is an amount in satoshis.
type Price int64

var pricePattern = regexp.MustCompile(`^([0-9]+) sat$`)

// UnmarshalYAML parses the unit-suffixed form used in declaration files,
// e.g. "1000 sat".
func (p *Price) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("base-price must be a string like \"1000 sat\"")
	}
	m := pricePattern.FindStringSubmatch(raw)
	if m == nil {
		return fmt.Errorf("invalid price %q: expected \"<integer> sat\"", raw)
	}
	sats, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid price %q: %w", raw, err)
	}
	*p = Price(sats)
	return nil
}

func (p Price) String() string {
	return fmt.Sprintf("%d sat", int64(p))
}

// Config is one directory's access declaration. Nil fields mean the
// directory does not declare the setting and inherits it.
type Config struct {
	Paid      *bool  `yaml:"paid"`
	BasePrice *Price `yaml:"base-price"`
}

// FS is the read capability the loader and resolver need. content.Storage
// satisfies it.
type FS interface {
	ReadFile(ctx context.Context, name string) ([]byte, error)
}

// LoadConfig reads dir's declaration file. A missing file is not an error;
// it returns (nil, nil) and the directory inherits purely from ancestors.
// Note that paid:true without a local price is valid here: whether an
// effective price exists is decided over the whole chain by Resolve.
func LoadConfig(ctx context.Context, fsys FS, dir string) (*Config, error) {
	name := path.Join(dir, DeclarationFile)
	raw, err := fsys.ReadFile(ctx, name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &ConfigError{Path: name, Err: err}
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, &ConfigError{Path: name, Err: err}
	}
	return &cfg, nil
}
