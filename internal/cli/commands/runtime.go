// Package commands provides CLI subcommands for clawsync.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/liteclaw/clawsync/internal/app"
	"github.com/liteclaw/clawsync/internal/config"
	"github.com/liteclaw/clawsync/internal/credentials"
	"github.com/liteclaw/clawsync/internal/gateway"
	"github.com/liteclaw/clawsync/internal/infra"
	"github.com/liteclaw/clawsync/internal/kvstore"
	"github.com/liteclaw/clawsync/internal/logging"
	"github.com/liteclaw/clawsync/internal/state"
	"github.com/liteclaw/clawsync/internal/version"
)

const defaultDisplayName = "clawsync CLI"

// runtime is the operator client wired for one command invocation.
type runtime struct {
	cfg       *config.Config
	paths     infra.Paths
	deviceID  string
	transport app.Transport
	app       *app.App
	logger    zerolog.Logger
	closers   []func()
}

type runtimeOptions struct {
	// logToFile keeps stderr clean for full-screen commands.
	logToFile     bool
	sessionsLimit int
}

// newRuntime builds the runtime. Tests replace it.
var newRuntime = buildRuntime

func buildRuntime(cmd *cobra.Command, opts runtimeOptions) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := config.EnsureInstanceID(cfg); err != nil {
		return nil, fmt.Errorf("failed to save instance id: %w", err)
	}

	paths := infra.ResolvePaths()
	if err := paths.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("failed to create state dir: %w", err)
	}

	rt := &runtime{cfg: cfg, paths: paths}

	verbose, _ := cmd.Flags().GetBool("verbose")
	verbose = verbose || cfg.Logging.Verbose
	if opts.logToFile {
		logger, closer, err := logging.File(paths.LogFile, verbose)
		if err != nil {
			return nil, err
		}
		rt.logger = logger
		rt.closers = append(rt.closers, func() { _ = closer.Close() })
	} else {
		rt.logger = logging.Console(verbose)
	}

	plain := kvstore.NewFileStore(paths.SettingsFile)
	secure, err := kvstore.NewSealed(kvstore.NewFileStore(paths.CredentialsFile), paths.KeyFile)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	identity, err := gateway.LoadOrCreateIdentity(secure)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("failed to load device identity: %w", err)
	}
	rt.deviceID = identity.ID

	session := gateway.NewSession(identity, rt.logger)
	rt.transport = session
	rt.closers = append([]func(){session.Close}, rt.closers...)

	displayName := cfg.Client.DisplayName
	if displayName == "" {
		displayName = defaultDisplayName
	}
	sessionsLimit := cfg.Sessions.Limit
	if opts.sessionsLimit > 0 {
		sessionsLimit = opts.sessionsLimit
	}

	token, password := gateway.EnvCredentials()
	rt.app = app.New(app.Options{
		Transport:   session,
		Credentials: credentials.New(plain, secure, rt.logger),
		Logger:      rt.logger,
		Gateway: state.GatewayConfig{
			Host:     cfg.Gateway.Host,
			Port:     cfg.Gateway.Port,
			TLS:      cfg.Gateway.TLS,
			Token:    token,
			Password: password,
		},
		InstanceID:    cfg.Client.InstanceID,
		DisplayName:   displayName,
		Version:       version.Version,
		HistoryLimit:  cfg.History.Limit,
		SessionsLimit: sessionsLimit,
	})
	return rt, nil
}

// serve runs the event loop until the returned stop func is called.
func (rt *runtime) serve(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		rt.app.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

// connect hydrates the config and opens the gateway session. The returned
// error carries the status text shown for the failure.
func (rt *runtime) connect(ctx context.Context) error {
	rt.app.Start(ctx)
	rt.app.Connect(ctx)
	if rt.transport.Operator() == nil {
		return errors.New(rt.app.State().StatusText)
	}
	return nil
}

func (rt *runtime) close() {
	for _, fn := range rt.closers {
		fn()
	}
	rt.closers = nil
}

// withRuntime runs fn with a started event loop and tears everything down
// afterwards.
func withRuntime(cmd *cobra.Command, opts runtimeOptions, fn func(ctx context.Context, rt *runtime) error) error {
	rt, err := newRuntime(cmd, opts)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	stop := rt.serve(ctx)
	defer stop()
	defer rt.app.Disconnect()

	return fn(ctx, rt)
}

func fprintf(w io.Writer, format string, args ...interface{}) {
	_, _ = fmt.Fprintf(w, format, args...)
}
