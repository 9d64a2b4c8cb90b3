package config

import (
	"compress/zlib"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/asaskevich/govalidator"
)

func init() {
	govalidator.SetFieldsRequiredByDefault(true)
}

// DefaultLocation is where the CLI looks for a config file when none is given.
var DefaultLocation = "./pdfreport.toml"

// Config is the root of the config
type Config struct {
	Report  Report  `toml:"report" valid:"required"`
	Storage Storage `toml:"storage" valid:"required"`
	Server  Server  `toml:"server" valid:"required"`
	Seal    Seal    `toml:"seal" valid:"required"`
	Batch   Batch   `toml:"batch" valid:"required"`
}

// Report configures document generation.
type Report struct {
	// FontPath is a TrueType file used as base font instead of Helvetica.
	FontPath    string `toml:"font_path" valid:"optional"`
	Compression string `toml:"compression" valid:"in(default|none|speed|best)"`
	Producer    string `toml:"producer" valid:"optional"`
	LogLevel    string `toml:"log_level" valid:"in(debug|info|warn|error)"`
}

// Storage selects where attachment references are resolved.
type Storage struct {
	Driver string `toml:"driver" valid:"in(dir|sqlite3|postgres)"`
	Dir    string `toml:"dir" valid:"optional"`
	DSN    string `toml:"dsn" valid:"optional"`
	Table  string `toml:"table" valid:"optional,matches(^[A-Za-z_][A-Za-z0-9_]*$)"`
}

// Server configures the HTTP service.
type Server struct {
	Addr string `toml:"addr" valid:"required"`
}

// Seal configures detached signatures over delivered reports. Sealing is off
// when Cert is empty.
type Seal struct {
	Cert string `toml:"cert" valid:"optional"`
	// KeyProvider selects where the private key of Cert lives: a PEM file
	// (Key) or a key identified by KeyID at a KMS, HSM or CSC service.
	KeyProvider string `toml:"key_provider" valid:"in(file|aws|azure|gcp|pkcs11|csc)"`
	Key         string `toml:"key" valid:"optional"`
	KeyID       string `toml:"key_id" valid:"optional"`
	KeyVersion  string `toml:"key_version" valid:"optional"`
	Endpoint    string `toml:"endpoint" valid:"optional,url"`
	Region      string `toml:"region" valid:"optional"`
	Module      string `toml:"module" valid:"optional"`
	TokenLabel  string `toml:"token_label" valid:"optional"`
	PIN         string `toml:"pin" valid:"optional"`
	AuthToken   string `toml:"auth_token" valid:"optional"`
	TSAURL      string `toml:"tsa_url" valid:"optional,url"`
	TSAUsername string `toml:"tsa_username" valid:"optional"`
	TSAPassword string `toml:"tsa_password" valid:"optional"`
	// Revocation embeds the OCSP or CRL status of the sealing certificate.
	Revocation bool `toml:"revocation" valid:"optional"`
}

// Batch configures batch exports.
type Batch struct {
	Concurrency int `toml:"concurrency" valid:"range(1|64)"`
}

// Default returns a working configuration: Helvetica, default compression,
// attachments read from ./attachments.
func Default() Config {
	return Config{
		Report: Report{
			Compression: "default",
			Producer:    "pdfreport",
			LogLevel:    "info",
		},
		Storage: Storage{
			Driver: "dir",
			Dir:    "./attachments",
			Table:  "attachments",
		},
		Server: Server{
			Addr: ":8080",
		},
		Seal: Seal{
			KeyProvider: "file",
		},
		Batch: Batch{
			Concurrency: 4,
		},
	}
}

// Load reads the TOML file at path on top of Default and validates the result.
func Load(path string) (Config, error) {
	if _, err := os.Stat(path); err != nil {
		return Config{}, fmt.Errorf("config file is missing: %w", err)
	}

	c := Default()
	md, err := toml.DecodeFile(path, &c)
	if err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return Config{}, fmt.Errorf("unknown config keys: %v", keys)
	}

	if err := c.ValidateFields(); err != nil {
		return Config{}, fmt.Errorf("config is not valid: %w", err)
	}
	return c, nil
}

// ValidateFields validates all the fields of the config
func (c Config) ValidateFields() error {
	if _, err := govalidator.ValidateStruct(c); err != nil {
		return err
	}

	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		return fmt.Errorf("server.addr: %w", err)
	}
	switch c.Storage.Driver {
	case "dir":
		if c.Storage.Dir == "" {
			return errors.New("storage.dir is required for the dir driver")
		}
	case "sqlite3", "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the %s driver", c.Storage.Driver)
		}
	}
	if err := c.Seal.validate(); err != nil {
		return err
	}
	if c.Seal.TSAURL != "" && c.Seal.Cert == "" {
		return errors.New("seal.tsa_url requires seal.cert")
	}
	return nil
}

// validate checks that the settings the key provider needs are present.
func (s Seal) validate() error {
	if s.KeyProvider == "file" {
		if (s.Cert == "") != (s.Key == "") {
			return errors.New("seal.cert and seal.key must be set together")
		}
		return nil
	}

	if s.Cert == "" {
		return fmt.Errorf("seal.cert is required for the %s key provider", s.KeyProvider)
	}
	var missing []string
	need := func(name, value string) {
		if value == "" {
			missing = append(missing, "seal."+name)
		}
	}
	switch s.KeyProvider {
	case "aws":
		need("key_id", s.KeyID)
		need("region", s.Region)
	case "azure":
		need("key_id", s.KeyID)
		need("endpoint", s.Endpoint)
		need("auth_token", s.AuthToken)
	case "gcp":
		need("key_id", s.KeyID)
	case "pkcs11":
		need("module", s.Module)
	case "csc":
		need("key_id", s.KeyID)
		need("endpoint", s.Endpoint)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%v required for the %s key provider", missing, s.KeyProvider)
	}
	return nil
}

// CompressLevel returns the zlib level for report.compression.
func (r Report) CompressLevel() int {
	switch r.Compression {
	case "none":
		return zlib.NoCompression
	case "speed":
		return zlib.BestSpeed
	case "best":
		return zlib.BestCompression
	default:
		return zlib.DefaultCompression
	}
}

// Level returns the slog level for report.log_level.
func (r Report) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(r.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Sealing reports whether delivered reports are signed.
func (s Seal) Sealing() bool {
	return s.Cert != ""
}
