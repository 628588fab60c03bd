// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package wit

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/wildcode/wit/remote"
)

// RemoteKind is the transport a configured remote uses.
type RemoteKind string

const (
	RemoteKindWild RemoteKind = "wild" // HTTP remote speaking the wire contract in spec §6
	RemoteKindS3   RemoteKind = "s3"
)

// RemoteConfig is one `[remote:<name>]` section.
type RemoteConfig struct {
	Name string
	Kind RemoteKind

	// wild (HTTP) params
	URL            string
	PublicKeyHex   string
	PrivateKeyHex  string

	// s3 params
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

// Config is the parsed `.wild/config` file: a default remote name plus
// named remote sections. Keys outside the recognized set are kept in the
// underlying *ini.File; Config neither exposes them nor writes them back.
type Config struct {
	CoreRemote string
	Remotes    map[string]RemoteConfig

	raw *ini.File
}

// LoadConfig parses an INI-like config file:
// `[section]`/`[section:subsection]`, `core.remote = <name>`, and
// `[remote:<name>]` sections with `kind ∈ {wild, s3}`.
func LoadConfig(path string) (*Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, &InvalidConfigError{Path: path, Err: err}
	}

	cfg := &Config{Remotes: make(map[string]RemoteConfig), raw: f}
	cfg.CoreRemote = f.Section("core").Key("remote").String()

	for _, section := range f.Sections() {
		name := section.Name()
		if !strings.HasPrefix(name, "remote:") {
			continue
		}
		remoteName := strings.TrimPrefix(name, "remote:")
		kind := RemoteKind(section.Key("kind").String())

		rc := RemoteConfig{
			Name:            remoteName,
			Kind:            kind,
			URL:             section.Key("url").String(),
			PublicKeyHex:    section.Key("public_key").String(),
			PrivateKeyHex:   section.Key("private_key").String(),
			Bucket:          section.Key("bucket").String(),
			Region:          section.Key("region").String(),
			Endpoint:        section.Key("endpoint").String(),
			AccessKeyID:     section.Key("access_key_id").String(),
			SecretAccessKey: section.Key("secret_access_key").String(),
			Prefix:          section.Key("prefix").String(),
		}
		switch kind {
		case RemoteKindWild, RemoteKindS3:
		default:
			return nil, &InvalidConfigError{Path: path, Err: fmt.Errorf("remote %q: unrecognized kind %q", remoteName, kind)}
		}
		cfg.Remotes[remoteName] = rc
	}

	return cfg, nil
}

// DefaultRemote returns the configuration for core.remote, or
// ErrMissingRemote if none is configured or it names an unknown remote.
func (c *Config) DefaultRemote() (RemoteConfig, error) {
	if c.CoreRemote == "" {
		return RemoteConfig{}, ErrMissingRemote
	}
	rc, ok := c.Remotes[c.CoreRemote]
	if !ok {
		return RemoteConfig{}, fmt.Errorf("%w: %q", ErrMissingRemote, c.CoreRemote)
	}
	return rc, nil
}

// Build constructs the remote.Remote and (optional) remote.Signer for this
// configuration, selecting the backend by Kind.
func (rc RemoteConfig) Build() (remote.Remote, remote.Signer, error) {
	switch rc.Kind {
	case RemoteKindWild:
		var signer remote.Signer
		if rc.PrivateKeyHex != "" {
			key, err := hex.DecodeString(rc.PrivateKeyHex)
			if err != nil {
				return nil, nil, fmt.Errorf("wit: remote %s: decode private key: %w", rc.Name, err)
			}
			s, err := remote.NewEd25519Signer(ed25519.PrivateKey(key))
			if err != nil {
				return nil, nil, fmt.Errorf("wit: remote %s: %w", rc.Name, err)
			}
			signer = s
		} else if rc.PublicKeyHex != "" {
			return nil, nil, fmt.Errorf("wit: remote %s: %w", rc.Name, ErrMissingPrivateKey)
		}
		return remote.NewHTTP(rc.URL), signer, nil

	case RemoteKindS3:
		s3, err := remote.NewS3(remote.S3Config{
			Bucket:          rc.Bucket,
			Region:          rc.Region,
			Endpoint:        rc.Endpoint,
			AccessKeyID:     rc.AccessKeyID,
			SecretAccessKey: rc.SecretAccessKey,
			Prefix:          rc.Prefix,
		})
		return s3, nil, err

	default:
		return nil, nil, fmt.Errorf("wit: remote %s: unrecognized kind %q", rc.Name, rc.Kind)
	}
}
