package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/SunnyJalendra/minidrive-go/internal/api"
	"github.com/SunnyJalendra/minidrive-go/internal/config"
	"github.com/SunnyJalendra/minidrive-go/internal/session"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagServerURL  string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by
// PersistentPreRunE. It is available to all subcommands after the root
// pre-run phase completes.
var resolvedCfg *config.Config

// errNotLoggedIn is returned by commands that need a session when none is
// present.
var errNotLoggedIn = errors.New("not logged in — run 'minidrive login' first")

// httpClientTimeout is the default timeout for HTTP requests.
// Prevents hung connections from blocking CLI commands indefinitely.
const httpClientTimeout = 30 * time.Second

// defaultHTTPClient returns an HTTP client with a sensible timeout.
func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: httpClientTimeout}
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "minidrive",
		Short:   "Mini Drive CLI client",
		Long:    "A command-line client for Mini Drive: upload, download, and share files with an explicit request/approve workflow.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		// PersistentPreRunE loads configuration before every command.
		// LoadOrDefault never fails on a missing file, so even login works
		// with zero config.
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagServerURL, "server", "", "server base URL override")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	// Register subcommands.
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newSignupCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newPutCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newShareCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newAdminCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the override chain
// and stores the result in resolvedCfg for use by subcommands.
func loadConfig() error {
	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
		ServerURL:  flagServerURL,
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = resolved

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo

	if resolvedCfg != nil {
		switch resolvedCfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// appEnv bundles the session store and API client every authenticated
// command needs. The session store is process-wide: one credential, handed
// to the transport at construction.
type appEnv struct {
	logger *slog.Logger
	sess   *session.Store
	client *api.Client
}

// buildEnv wires the session store into an API client. The transport's
// auth-failure path clears the session; the store's teardown hook tells
// the user to log back in — once, no matter how many concurrent calls
// failed.
func buildEnv() (*appEnv, error) {
	logger := buildLogger()

	sess, err := session.NewStore(config.SessionPath(), logger)
	if err != nil {
		return nil, err
	}

	sess.SetOnClear(func() {
		fmt.Fprintln(os.Stderr, "Session expired. Run 'minidrive login' to sign in again.")
	})

	client := api.NewClient(resolvedCfg.ServerURL, defaultHTTPClient(), sess, func() {
		_ = sess.Clear()
	}, logger)

	return &appEnv{logger: logger, sess: sess, client: client}, nil
}

// requireSession returns errNotLoggedIn when no credential is present.
// The server would answer 401 anyway; failing here avoids a round-trip
// and a confusing "session expired" message for someone who never had one.
func (env *appEnv) requireSession() error {
	if _, ok := env.sess.Credential(); !ok {
		return errNotLoggedIn
	}

	return nil
}
