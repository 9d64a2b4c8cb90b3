package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/digitorus/pdfreport"
	"github.com/digitorus/pdfreport/config"
	"github.com/digitorus/pdfreport/fonts"
	"github.com/digitorus/pdfreport/revocation"
	"github.com/digitorus/pdfreport/seal"
	"github.com/digitorus/pdfreport/signers"
	"github.com/digitorus/pdfreport/store"
)

// Env is everything a command needs, built from the configuration.
type Env struct {
	Config   config.Config
	Logger   *slog.Logger
	Exporter *pdfreport.Exporter
	// Sealer is nil when sealing is not configured.
	Sealer *seal.Sealer

	closers []io.Closer
}

// LoadConfig reads path, or returns the defaults when path is empty and the
// default location does not exist.
func LoadConfig(path string) (config.Config, error) {
	if path == "" {
		if _, err := os.Stat(config.DefaultLocation); err != nil {
			return config.Default(), nil
		}
		path = config.DefaultLocation
	}
	return config.Load(path)
}

// Setup opens the attachment source, loads the base font and the sealing key.
func Setup(cfg config.Config, logOutput io.Writer) (*Env, error) {
	env := &Env{
		Config: cfg,
		Logger: slog.New(slog.NewTextHandler(logOutput, &slog.HandlerOptions{Level: cfg.Report.Level()})),
	}

	var source pdfreport.AttachmentSource
	switch cfg.Storage.Driver {
	case "sqlite3", "postgres":
		s, err := store.Open(cfg.Storage.Driver, cfg.Storage.DSN, cfg.Storage.Table)
		if err != nil {
			return nil, err
		}
		env.closers = append(env.closers, s)
		source = s
	default:
		source = store.Dir{Root: cfg.Storage.Dir}
	}

	env.Exporter = pdfreport.NewExporter(source, env.Logger)
	env.Exporter.CompressLevel = cfg.Report.CompressLevel()
	if cfg.Report.Producer != "" {
		env.Exporter.Producer = cfg.Report.Producer
	}
	if cfg.Report.FontPath != "" {
		data, err := os.ReadFile(cfg.Report.FontPath)
		if err != nil {
			env.Close()
			return nil, fmt.Errorf("failed to read font: %w", err)
		}
		font, err := fonts.TrueType(cfg.Report.FontPath, data)
		if err != nil {
			env.Close()
			return nil, fmt.Errorf("failed to load font: %w", err)
		}
		env.Exporter.Font = font
	}

	if cfg.Seal.Sealing() {
		sealer, err := env.sealer(cfg.Seal)
		if err != nil {
			env.Close()
			return nil, err
		}
		sealer.TSA = seal.TSA{
			URL:      cfg.Seal.TSAURL,
			Username: cfg.Seal.TSAUsername,
			Password: cfg.Seal.TSAPassword,
		}
		if cfg.Seal.Revocation {
			sealer.Revocation = &revocation.Fetcher{Cache: revocation.NewMemoryCache()}
		}
		env.Sealer = sealer
	}
	return env, nil
}

// sealer loads the sealing certificate and connects to its key provider.
func (e *Env) sealer(cfg config.Seal) (*seal.Sealer, error) {
	if cfg.KeyProvider == "file" {
		return seal.LoadPEM(cfg.Cert, cfg.Key)
	}

	certs, err := seal.LoadCertificates(cfg.Cert)
	if err != nil {
		return nil, err
	}
	key, err := signers.Open(context.Background(), signers.Options{
		Provider:   cfg.KeyProvider,
		KeyID:      cfg.KeyID,
		KeyVersion: cfg.KeyVersion,
		Endpoint:   cfg.Endpoint,
		Region:     cfg.Region,
		Module:     cfg.Module,
		TokenLabel: cfg.TokenLabel,
		PIN:        cfg.PIN,
		AuthToken:  cfg.AuthToken,
	}, certs[0].PublicKey)
	if err != nil {
		return nil, err
	}
	if c, ok := key.(io.Closer); ok {
		e.closers = append(e.closers, c)
	}
	e.Logger.Debug("sealing key opened", "provider", cfg.KeyProvider, "subject", certs[0].Subject.CommonName)
	return &seal.Sealer{Certificate: certs[0], Chain: certs[1:], Signer: key}, nil
}

// Sink wraps next so reports are sealed when sealing is configured.
func (e *Env) Sink(next pdfreport.Sink) pdfreport.Sink {
	if e.Sealer == nil {
		return next
	}
	return seal.Sink{Sealer: e.Sealer, Next: next}
}

// Close releases the attachment source and the sealing key.
func (e *Env) Close() {
	for _, c := range e.closers {
		if err := c.Close(); err != nil {
			e.Logger.Warn("failed to close", "err", err)
		}
	}
}

// setup loads the configuration and builds the environment, exiting on error.
func setup(configPath string) *Env {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		osExit(1)
		return nil
	}
	env, err := Setup(cfg, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		osExit(1)
		return nil
	}
	return env
}
