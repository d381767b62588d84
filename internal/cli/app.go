package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/drivetidy/drivetidy/internal/config"
	"github.com/drivetidy/drivetidy/internal/core"
	"github.com/drivetidy/drivetidy/internal/logger"
	"github.com/drivetidy/drivetidy/internal/provider"
	"github.com/drivetidy/drivetidy/internal/provider/gdrive"
	"github.com/drivetidy/drivetidy/internal/provider/rclone"
)

// App holds what every command needs.
type App struct {
	Config   *config.Config
	Registry *provider.Registry
	In       io.Reader
	Out      io.Writer
	DryRun   bool
	Verbose  bool
}

// NewApp creates an app with the default backend registry.
func NewApp(cfg *config.Config, in io.Reader, out io.Writer) *App {
	return &App{
		Config:   cfg,
		Registry: DefaultRegistry(cfg),
		In:       in,
		Out:      out,
	}
}

// DefaultRegistry registers the built-in backends.
func DefaultRegistry(cfg *config.Config) *provider.Registry {
	r := provider.NewRegistry()

	_ = r.Register("gdrive", func(ctx context.Context) (provider.Backend, error) {
		opts, err := gdrive.ClientOptions(ctx, cfg.Drive.CredentialsFile, cfg.Drive.TokenFile)
		if err != nil {
			return nil, err
		}
		return gdrive.New(ctx, cfg.Drive.Parallelism, opts...)
	})

	_ = r.Register("rclone", func(ctx context.Context) (provider.Backend, error) {
		p := rclone.NewProvider(cfg.Rclone.Remote,
			rclone.WithConfigPath(cfg.Rclone.ConfigPath),
			rclone.WithBinary(cfg.Rclone.Binary),
			rclone.WithHashType(cfg.Rclone.HashType),
			rclone.WithTrashDir(cfg.Rclone.TrashDir),
			rclone.WithParallelism(cfg.Drive.Parallelism),
		)
		if err := p.Check(ctx); err != nil {
			return nil, err
		}
		return p, nil
	})

	return r
}

func (a *App) openBackend(ctx context.Context) (provider.Backend, error) {
	if err := a.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	b, err := a.Registry.Open(ctx, a.Config.Provider)
	if err != nil {
		return nil, err
	}
	logger.Get().Debug().Str("backend", b.ID()).Str("type", b.Type()).Msg("backend opened")
	return b, nil
}

// openLedger returns nil when the ledger is disabled. The returned close
// function is always safe to call.
func (a *App) openLedger() (*core.Ledger, func(), error) {
	if !a.Config.Ledger.Enabled {
		return nil, func() {}, nil
	}

	store, err := core.OpenEncryptedDB(a.Config.Ledger.Path, a.Config.Ledger.Passphrase)
	if err != nil {
		return nil, func() {}, fmt.Errorf("failed to open ledger: %w", err)
	}
	logger.Get().Debug().Str("path", store.Path()).Bool("encrypted", store.IsEncrypted()).Msg("ledger opened")
	return core.NewLedger(store), func() { store.Close() }, nil
}

// recorder opens the ledger for a mutating run. A ledger that cannot be
// opened only costs the history, so the run goes on without it.
func (a *App) recorder() (core.RunRecorder, func()) {
	if a.DryRun {
		return nil, func() {}
	}
	ledger, closeFn, err := a.openLedger()
	if err != nil {
		logger.Get().Warn().Err(err).Msg("run history will not be recorded")
		return nil, closeFn
	}
	if ledger == nil {
		return nil, closeFn
	}
	return ledger, closeFn
}

func (a *App) confirmer(assumeYes bool) core.Confirmer {
	if assumeYes {
		return func(string) bool { return true }
	}
	return func(prompt string) bool {
		return ConfirmAction(a.In, a.Out, prompt)
	}
}

// ConfirmAction prompts the user for confirmation.
func ConfirmAction(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	reader := bufio.NewReader(in)
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

func (a *App) newFetcher(lister provider.Lister) *core.Fetcher {
	f := core.NewFetcher(lister, a.Config.Drive.PageSize)
	f.OnSkip = func(rf provider.RemoteFile) {
		logger.Get().Debug().Str("id", rf.ID).Str("name", rf.Name).Msg("no content fingerprint, skipped")
	}
	f.OnPage = func(fetched int) {
		logger.Get().Debug().Int("fetched", fetched).Msg("listing")
	}
	return f
}
