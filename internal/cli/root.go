package cli

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quizroom-client/internal/config"
	"quizroom-client/internal/identity"
)

var (
	configPath string
	baseURL    string
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:   "quizroom",
		Short: "Command-line client for live quiz rooms",
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "quiz server base URL")
	cmd.AddCommand(NewPlayCmd(&configPath, &baseURL))
	cmd.AddCommand(NewPracticeCmd())
	cmd.AddCommand(NewHostCmd(&configPath, &baseURL))
	cmd.AddCommand(NewSimulateCmd(&configPath, &baseURL))
	cmd.AddCommand(NewArchiveCmd(&configPath, &baseURL))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	return cmd
}

// loadConfig reads the config file, falling back to defaults when it is
// absent so the client works out of the box against a local server.
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

func resolveBaseURL(cfg config.Config, flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv("QUIZROOM_BASE_URL"); env != "" {
		return env
	}
	return cfg.Server.BaseURL
}

// newIdentityStore picks the identity backend: Redis when configured,
// otherwise a file under the user config directory.
func newIdentityStore(cfg config.Config) (identity.Store, error) {
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ttl := config.TTLDuration(cfg.Redis.TTL, 24*time.Hour)
		return identity.NewRedisStore(client, cfg.Identity.Profile, ttl), nil
	}
	path := cfg.Identity.Path
	if path == "" {
		var err error
		path, err = identity.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return identity.NewFileStore(path), nil
}
