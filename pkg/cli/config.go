package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/computerscienceiscool/llm-autorun/pkg/app"
	"github.com/computerscienceiscool/llm-autorun/pkg/config"
)

// initConfig reads in config file, the optional env file and ENV variables
func initConfig(cmd *cobra.Command, args []string) error {
	if path := viper.GetString("config"); path != "" {
		viper.SetConfigFile(path)
	}
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			// Config file was found but another error was produced
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; using defaults and flags
	}

	if path := viper.GetString("env-file"); path != "" {
		if err := loadEnvFile(path); err != nil {
			return err
		}
	}
	return nil
}

// loadEnvFile exports the variables of a dotenv file that are not already set
func loadEnvFile(path string) error {
	ev := viper.New()
	ev.SetConfigFile(path)
	ev.SetConfigType("env")
	if err := ev.ReadInConfig(); err != nil {
		return fmt.Errorf("cannot read env file %s: %w", path, err)
	}
	for _, key := range ev.AllKeys() {
		name := strings.ToUpper(key)
		if _, set := os.LookupEnv(name); set {
			continue
		}
		if err := os.Setenv(name, ev.GetString(key)); err != nil {
			return fmt.Errorf("cannot export %s: %w", name, err)
		}
	}
	return nil
}

// buildConfig constructs a config.Config from Viper values
func buildConfig() (*config.Config, error) {
	cfg := &config.Config{
		APIURL:             viper.GetString("api.url"),
		APIModel:           viper.GetString("api.model"),
		APIKey:             viper.GetString("api.key"),
		APIKeyEnv:          viper.GetString("api.key_env"),
		Temperature:        viper.GetFloat64("api.temperature"),
		MaxTokens:          viper.GetInt("api.max_tokens"),
		ArtifactDir:        viper.GetString("api.artifact_dir"),
		WorkspaceDir:       viper.GetString("workspace.dir"),
		WorkDir:            viper.GetString("workdir"),
		InitGit:            viper.GetBool("init-git"),
		ExecBackend:        strings.ToLower(viper.GetString("exec.backend")),
		ExecShells:         viper.GetStringSlice("exec.shells"),
		ExecForwardSlashes: viper.GetBool("exec.forward_slashes"),
		ExecImage:          viper.GetString("exec.image"),
		ExecMemoryLimit:    viper.GetString("exec.memory"),
		ExecCPULimit:       viper.GetInt("exec.cpu"),
		ExecNetwork:        viper.GetBool("exec.network"),
		MaxCommandLength:   viper.GetInt("exec.max_command_length"),
		DenyPatterns:       viper.GetStringSlice("policy.deny_patterns"),
		Verbs:              viper.GetStringSlice("extract.verbs"),
		FenceLanguages:     viper.GetStringSlice("extract.fence_languages"),
		MaxAttempts:        viper.GetInt("retry.max_attempts"),
		ChatMaxAttempts:    viper.GetInt("chat.max_attempts"),
		ReadmeLimit:        viper.GetInt("retry.readme_limit"),
		HistoryEnabled:     viper.GetBool("history.enabled") && !viper.GetBool("no-history"),
		HistoryPath:        viper.GetString("history.path"),
		AuditLogPath:       viper.GetString("security.audit_log_path"),
		LockDir:            viper.GetString("security.lock_dir"),
		LogLevel:           viper.GetString("logging.level"),
		LogFormat:          viper.GetString("logging.format"),
		LogFile:            viper.GetString("logging.file"),
		Verbose:            viper.GetBool("verbose"),
	}

	// Parse timeout durations
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"api.timeout", &cfg.APITimeout},
		{"exec.timeout", &cfg.ExecTimeout},
		{"retry.pause", &cfg.RetryPause},
		{"workspace.readme_timeout", &cfg.ReadmeTimeout},
	}
	for _, d := range durations {
		v, err := config.ParseDuration(viper.GetViper(), d.key)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		if v < 0 {
			return nil, fmt.Errorf("invalid %s: must not be negative", d.key)
		}
		*d.dst = v
	}

	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("invalid retry.max_attempts %d: must be at least 1", cfg.MaxAttempts)
	}
	if cfg.ChatMaxAttempts < 1 {
		return nil, fmt.Errorf("invalid chat.max_attempts %d: must be at least 1", cfg.ChatMaxAttempts)
	}
	if cfg.ExecTimeout == 0 {
		return nil, fmt.Errorf("invalid exec.timeout: must be positive")
	}
	if cfg.Verbose && cfg.LogLevel == config.DefaultLogLevel {
		cfg.LogLevel = "debug"
	}

	return cfg, nil
}

// bootstrapApp wraps the app.Bootstrap function
func bootstrapApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := buildConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to build config: %w", err)
	}
	a, err := app.Bootstrap(cfg, app.WithIO(cmd.InOrStdin(), cmd.OutOrStdout()))
	if err != nil {
		return nil, fmt.Errorf("bootstrap failed: %w", err)
	}
	return a, nil
}
