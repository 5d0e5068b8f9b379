package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/termengine/internal/infrastructure/logging"
	"github.com/GriffinCanCode/termengine/internal/transport"
)

// ErrUnsupportedFormat is returned for profile files that are neither YAML nor TOML
var ErrUnsupportedFormat = errors.New("unsupported credentials format")

// Format is the encoding of a profile file
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// Profile describes where the secrets for one login live
type Profile struct {
	User          string   `yaml:"user" toml:"user"`
	KeyFile       string   `yaml:"key_file" toml:"key_file"`
	PassphraseEnv string   `yaml:"passphrase_env" toml:"passphrase_env"`
	PasswordEnv   string   `yaml:"password_env" toml:"password_env"`
	Agent         bool     `yaml:"agent" toml:"agent"`
	Hosts         []string `yaml:"hosts" toml:"hosts"`
}

type document struct {
	Profiles map[string]Profile `yaml:"profiles" toml:"profiles"`
}

// Store resolves references to profiles
type Store struct {
	profiles map[string]Profile
	names    []string
	logger   *zap.Logger
}

// FormatOf picks the format from a file extension
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Load reads a profile file
func Load(path string, logger *zap.Logger) (*Store, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	return Parse(data, format, logger)
}

// Parse decodes profiles and validates their host patterns
func Parse(data []byte, format Format, logger *zap.Logger) (*Store, error) {
	var doc document
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse credentials yaml: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse credentials toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	s := &Store{
		profiles: make(map[string]Profile, len(doc.Profiles)),
		logger:   logging.For(logger, logging.Credentials),
	}
	for name, p := range doc.Profiles {
		for _, pattern := range p.Hosts {
			if !doublestar.ValidatePattern(pattern) {
				return nil, fmt.Errorf("profile %q: invalid host pattern %q", name, pattern)
			}
		}
		s.profiles[name] = p
		s.names = append(s.names, name)
	}
	sort.Strings(s.names)

	s.logger.Info("credential profiles loaded", zap.Int("profiles", len(s.names)))
	return s, nil
}

// Names lists the profile names in order
func (s *Store) Names() []string {
	return append([]string(nil), s.names...)
}

// Resolve implements transport.CredentialResolver. An empty reference
// resolves to the zero Credential.
func (s *Store) Resolve(ctx context.Context, ref string) (transport.Credential, error) {
	if ref == "" {
		return transport.Credential{}, nil
	}
	p, ok := s.profiles[ref]
	if !ok {
		return transport.Credential{}, fmt.Errorf("%w: %q", transport.ErrUnknownCredential, ref)
	}
	return s.materialize(ctx, ref, p)
}

// ResolveHost implements transport.HostCredentialResolver
func (s *Store) ResolveHost(ctx context.Context, user, host string) (transport.Credential, error) {
	for _, name := range s.names {
		p := s.profiles[name]
		if user != "" && p.User != "" && p.User != user {
			continue
		}
		if matchHost(p.Hosts, host) {
			return s.materialize(ctx, name, p)
		}
	}
	return transport.Credential{}, fmt.Errorf("%w: no profile for host %q", transport.ErrUnknownCredential, host)
}

func matchHost(patterns []string, host string) bool {
	host = strings.ToLower(host)
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(strings.ToLower(pattern), host); ok {
			return true
		}
	}
	return false
}

// materialize reads the secrets a profile points at
func (s *Store) materialize(ctx context.Context, name string, p Profile) (transport.Credential, error) {
	if err := ctx.Err(); err != nil {
		return transport.Credential{}, err
	}

	cred := transport.Credential{User: p.User, UseAgent: p.Agent}

	if p.KeyFile != "" {
		path, err := expandHome(p.KeyFile)
		if err != nil {
			return transport.Credential{}, fmt.Errorf("profile %q: %w", name, err)
		}
		key, err := os.ReadFile(path)
		if err != nil {
			return transport.Credential{}, fmt.Errorf("profile %q: failed to read key: %w", name, err)
		}
		cred.PrivateKey = key
	}

	var err error
	if cred.Passphrase, err = fromEnv(p.PassphraseEnv); err != nil {
		return transport.Credential{}, fmt.Errorf("profile %q: %w", name, err)
	}
	if cred.Password, err = fromEnv(p.PasswordEnv); err != nil {
		return transport.Credential{}, fmt.Errorf("profile %q: %w", name, err)
	}

	s.logger.Debug("credential resolved",
		zap.String("profile", name),
		zap.Bool("key", len(cred.PrivateKey) > 0),
		zap.Bool("password", cred.Password != ""),
		zap.Bool("agent", cred.UseAgent))
	return cred, nil
}

func fromEnv(name string) (string, error) {
	if name == "" {
		return "", nil
	}
	v, ok := os.LookupEnv(name)
	if !ok {
		return "", fmt.Errorf("environment variable %s is not set", name)
	}
	return v, nil
}

func expandHome(path string) (string, error) {
	rest, ok := strings.CutPrefix(path, "~")
	if !ok || (rest != "" && rest[0] != '/') {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, rest), nil
}
