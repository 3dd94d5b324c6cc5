package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"lecturehall/internal/app"
	"lecturehall/internal/config"
	"lecturehall/internal/logging"
	"lecturehall/pkg/types"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// ARCHITECTURAL DISCOVERY: Each command tree owns its viper instance so flags,
// env and config files resolve the same way in tests and in production.
// Application options, such as a notes generator, reach every server command.
func newRootCommand(opts ...app.Option) *cobra.Command {
	v := config.NewViper()
	var cfgFile string

	root := &cobra.Command{
		Use:          "lecturehall",
		Short:        "Lecture signaling server",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v, cfgFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), v, opts...)
		},
	}

	setupFlags(root, v, &cfgFile)
	root.AddCommand(
		newServeCommand(v, opts...),
		newTokenCommand(v),
		newSeedCommand(v),
	)
	return root
}

func setupFlags(cmd *cobra.Command, v *viper.Viper, cfgFile *string) {
	defaults := config.NewViper()
	flags := cmd.PersistentFlags()
	flags.StringVar(cfgFile, "config", "", "Path to configuration file")
	flags.String("host", defaults.GetString("http.host"), "HTTP listen host")
	flags.Int("port", defaults.GetInt("http.port"), "HTTP listen port")
	flags.String("database-driver", defaults.GetString("database.driver"), "Store driver (memory, sqlite)")
	flags.String("database-path", defaults.GetString("database.path"), "SQLite database path")
	flags.String("signing-secret", "", "Token signing secret (enables token checks)")
	flags.Int("rate-limit", defaults.GetInt("chat.rate_limit"), "Chat messages per user per minute (0 disables)")
	flags.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, v, "http.host", "host")
	bindFlag(cmd, v, "http.port", "port")
	bindFlag(cmd, v, "database.driver", "database-driver")
	bindFlag(cmd, v, "database.path", "database-path")
	bindFlag(cmd, v, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, v, "chat.rate_limit", "rate-limit")
	bindFlag(cmd, v, "log.level", "log-level")
}

func bindFlag(cmd *cobra.Command, v *viper.Viper, key, flag string) {
	if err := v.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig(v *viper.Viper, cfgFile string) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	if cfgFile == "" {
		return nil
	}
	v.SetConfigFile(cfgFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
	}
	return nil
}

func loadConfig(v *viper.Viper) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewLogger(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newServeCommand(v *viper.Viper, opts ...app.Option) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the signaling server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), v, opts...)
		},
	}
}

// FUNCTIONAL DISCOVERY: Graceful shutdown on SIGINT/SIGTERM ensures proper resource cleanup
func runServer(ctx context.Context, v *viper.Viper, opts ...app.Option) error {
	cfg, logger, err := loadConfig(v)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	application, err := app.NewApplication(cfg, logger, opts...)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(signalCtx); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		_ = application.Stop(shutdownCtx)
		return fmt.Errorf("application error: %w", err)
	}

	<-signalCtx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := application.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}

func newTokenCommand(v *viper.Viper) *cobra.Command {
	var userID string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed token for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !types.IsValidUserID(types.UserID(userID)) {
				return fmt.Errorf("invalid user id %q", userID)
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			if !cfg.Auth.Enabled() {
				return errors.New("auth.signing_secret must be set to issue tokens")
			}
			if ttl > 0 {
				cfg.Auth.TokenTTL = ttl
			}

			issuer, err := app.NewTokenIssuer(cfg.Auth)
			if err != nil {
				return err
			}
			token, expiresAt, err := issuer.Issue(types.UserID(userID))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id placed in the token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to auth.token_ttl)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newSeedCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>",
		Short: "Load users, classrooms and lectures into the configured store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(v)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			data, err := app.LoadSeedFile(args[0])
			if err != nil {
				return err
			}
			store, err := app.OpenStore(cfg.Database, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			result, err := data.Apply(cmd.Context(), store, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d users, %d classrooms, %d lectures (%d skipped)\n",
				result.Users, result.Classrooms, result.Lectures, result.Skipped)
			return nil
		},
	}
}
