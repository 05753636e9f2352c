package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/computerscienceiscool/llm-autorun/pkg/config"
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	setupViper()

	cmd := &cobra.Command{
		Use:   "llm-autorun",
		Short: "Ask an LLM for shell commands and run them until the task succeeds",
		Long: `llm-autorun sends a request to an OpenAI-compatible chat endpoint, extracts the
commands from the reply, runs them one by one and feeds failures back to the model
for a corrected attempt.

  llm-autorun chat                         interactive prompt loop in the working directory
  llm-autorun repo <url> <request>         clone a repository and drive it to the request`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}

	pf := cmd.PersistentFlags()

	// Config sources
	pf.String("config", "", "Config file (default ./llm-autorun.config.yaml or $HOME)")
	pf.String("env-file", "", "Dotenv file with secrets such as the API key variable")

	// API flags
	pf.String("api-url", "", "Chat completions endpoint")
	pf.String("model", "", "Model name")
	pf.String("api-key", "", "API key (prefer AUTORUN_API_KEY or --api-key-env)")
	pf.String("api-key-env", "", "Environment variable holding the API key")
	pf.String("artifact-dir", "", "Directory for raw response JSON files")

	// Exec flags
	pf.String("backend", "", "Execution backend: local or docker")
	pf.String("exec-timeout", "", "Timeout per command")
	pf.String("exec-image", "", "Docker image for the docker backend")
	pf.Bool("exec-network", false, "Enable network access in containers")
	pf.Bool("forward-slashes", false, "Rewrite backslashes to forward slashes before running")

	// Retry flags
	pf.Int("max-attempts", 0, "Attempts per repository run")
	pf.String("retry-pause", "", "Pause between attempts")

	// Workspace flags
	pf.String("workspace", "", "Directory repositories are cloned into")
	pf.String("workdir", ".", "Working directory for chat commands")
	pf.Bool("init-git", false, "Initialise git in the working directory and list changed files after each run")

	// Persistence and output flags
	pf.Bool("no-history", false, "Do not record runs in the history database")
	pf.String("history-path", "", "History database path")
	pf.String("audit-log", "", "Audit log path")
	pf.String("log-level", "", "Log level: debug, info, warn, error")
	pf.String("log-format", "", "Log format: text or json")
	pf.String("log-file", "", "Write logs to this file instead of stderr")
	pf.Bool("verbose", false, "Verbose output")

	bindFlags(cmd)

	cmd.AddCommand(newChatCmd(), newRepoCmd(), newExtractCmd(), newHistoryCmd(), newConfigCmd())
	return cmd
}

// flagKeys maps persistent flags onto their config keys
var flagKeys = map[string]string{
	"api-url":         "api.url",
	"model":           "api.model",
	"api-key":         "api.key",
	"api-key-env":     "api.key_env",
	"artifact-dir":    "api.artifact_dir",
	"backend":         "exec.backend",
	"exec-timeout":    "exec.timeout",
	"exec-image":      "exec.image",
	"exec-network":    "exec.network",
	"forward-slashes": "exec.forward_slashes",
	"max-attempts":    "retry.max_attempts",
	"retry-pause":     "retry.pause",
	"workspace":       "workspace.dir",
	"history-path":    "history.path",
	"audit-log":       "security.audit_log_path",
	"log-level":       "logging.level",
	"log-format":      "logging.format",
	"log-file":        "logging.file",
}

func bindFlags(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	for flag, key := range flagKeys {
		viper.BindPFlag(key, pf.Lookup(flag))
	}
	for _, flag := range []string{"config", "env-file", "workdir", "init-git", "no-history", "verbose"} {
		viper.BindPFlag(flag, pf.Lookup(flag))
	}
}

func setupViper() {
	// Set all default values in Viper
	config.SetViperDefaults()

	viper.SetConfigName(config.ConfigName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME")

	// AUTORUN_API_KEY -> api.key
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command; cancelling ctx interrupts the running command
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
