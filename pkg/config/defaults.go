package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// SetViperDefaults sets all default configuration values in Viper
func SetViperDefaults() {
	SetDefaults(viper.GetViper())
}

// SetDefaults sets default configuration values on the given Viper instance
func SetDefaults(v *viper.Viper) {
	// Remote completion defaults
	v.SetDefault("api.url", DefaultAPIURL)
	v.SetDefault("api.model", DefaultModel)
	v.SetDefault("api.key", "")
	v.SetDefault("api.key_env", DefaultAPIKeyEnv)
	v.SetDefault("api.temperature", DefaultTemperature)
	v.SetDefault("api.max_tokens", DefaultMaxTokens)
	v.SetDefault("api.timeout", DefaultAPITimeout.String())
	v.SetDefault("api.artifact_dir", "")

	// Execution defaults
	v.SetDefault("exec.backend", DefaultExecBackend)
	v.SetDefault("exec.shells", DefaultShells())
	v.SetDefault("exec.timeout", DefaultExecTimeout.String())
	v.SetDefault("exec.forward_slashes", false)
	v.SetDefault("exec.image", DefaultContainerImage)
	v.SetDefault("exec.memory", DefaultContainerMemory)
	v.SetDefault("exec.cpu", DefaultContainerCPUs)
	v.SetDefault("exec.network", false)
	v.SetDefault("exec.max_command_length", MaxCommandLength)

	// Extraction and policy defaults
	v.SetDefault("policy.deny_patterns", DefaultDenyPatterns())
	v.SetDefault("extract.verbs", DefaultVerbs())
	v.SetDefault("extract.fence_languages", DefaultFenceLanguages())

	// Retry defaults
	v.SetDefault("retry.max_attempts", DefaultMaxAttempts)
	v.SetDefault("retry.pause", DefaultRetryPause.String())
	v.SetDefault("retry.readme_limit", DefaultReadmeLimit)
	v.SetDefault("chat.max_attempts", DefaultChatMaxAttempts)

	// Repository runner defaults
	v.SetDefault("workspace.dir", DefaultWorkspaceDir)
	v.SetDefault("workspace.readme_timeout", DefaultReadmeFetchTimeout.String())

	// Persistence, audit and logging defaults
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", DefaultHistoryPath)
	v.SetDefault("security.audit_log_path", DefaultAuditLogPath)
	v.SetDefault("security.lock_dir", DefaultLockDir())
	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.format", DefaultLogFormat)
	v.SetDefault("logging.file", "")
}

// DefaultLockDir is shared by every process of the same user so that two
// runs started from different directories still see each other's locks
func DefaultLockDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "llm-autorun", "locks")
}

// FileConfig mirrors the config file layout; used by `config init`
type FileConfig struct {
	API struct {
		URL         string  `yaml:"url"`
		Model       string  `yaml:"model"`
		KeyEnv      string  `yaml:"key_env"`
		Temperature float64 `yaml:"temperature"`
		MaxTokens   int     `yaml:"max_tokens"`
		Timeout     string  `yaml:"timeout"`
		ArtifactDir string  `yaml:"artifact_dir"`
	} `yaml:"api"`
	Exec struct {
		Backend          string   `yaml:"backend"`
		Shells           []string `yaml:"shells"`
		Timeout          string   `yaml:"timeout"`
		ForwardSlashes   bool     `yaml:"forward_slashes"`
		Image            string   `yaml:"image"`
		Memory           string   `yaml:"memory"`
		CPU              int      `yaml:"cpu"`
		Network          bool     `yaml:"network"`
		MaxCommandLength int      `yaml:"max_command_length"`
	} `yaml:"exec"`
	Policy struct {
		DenyPatterns []string `yaml:"deny_patterns"`
	} `yaml:"policy"`
	Extract struct {
		Verbs          []string `yaml:"verbs"`
		FenceLanguages []string `yaml:"fence_languages"`
	} `yaml:"extract"`
	Retry struct {
		MaxAttempts int    `yaml:"max_attempts"`
		Pause       string `yaml:"pause"`
		ReadmeLimit int    `yaml:"readme_limit"`
	} `yaml:"retry"`
	Chat struct {
		MaxAttempts int `yaml:"max_attempts"`
	} `yaml:"chat"`
	Workspace struct {
		Dir           string `yaml:"dir"`
		ReadmeTimeout string `yaml:"readme_timeout"`
	} `yaml:"workspace"`
	History struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"history"`
	Security struct {
		AuditLogPath string `yaml:"audit_log_path"`
		LockDir      string `yaml:"lock_dir"`
	} `yaml:"security"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		File   string `yaml:"file"`
	} `yaml:"logging"`
}

// DefaultFileConfig returns a FileConfig populated with defaults.
// The API key is deliberately absent; it only ever comes from env or flags.
func DefaultFileConfig() *FileConfig {
	fc := &FileConfig{}
	fc.API.URL = DefaultAPIURL
	fc.API.Model = DefaultModel
	fc.API.KeyEnv = DefaultAPIKeyEnv
	fc.API.Temperature = DefaultTemperature
	fc.API.MaxTokens = DefaultMaxTokens
	fc.API.Timeout = DefaultAPITimeout.String()

	fc.Exec.Backend = DefaultExecBackend
	fc.Exec.Shells = DefaultShells()
	fc.Exec.Timeout = DefaultExecTimeout.String()
	fc.Exec.Image = DefaultContainerImage
	fc.Exec.Memory = DefaultContainerMemory
	fc.Exec.CPU = DefaultContainerCPUs
	fc.Exec.MaxCommandLength = MaxCommandLength

	fc.Policy.DenyPatterns = DefaultDenyPatterns()
	fc.Extract.Verbs = DefaultVerbs()
	fc.Extract.FenceLanguages = DefaultFenceLanguages()

	fc.Retry.MaxAttempts = DefaultMaxAttempts
	fc.Retry.Pause = DefaultRetryPause.String()
	fc.Retry.ReadmeLimit = DefaultReadmeLimit
	fc.Chat.MaxAttempts = DefaultChatMaxAttempts

	fc.Workspace.Dir = DefaultWorkspaceDir
	fc.Workspace.ReadmeTimeout = DefaultReadmeFetchTimeout.String()

	fc.History.Enabled = true
	fc.History.Path = DefaultHistoryPath
	fc.Security.AuditLogPath = DefaultAuditLogPath
	fc.Security.LockDir = DefaultLockDir()
	fc.Logging.Level = DefaultLogLevel
	fc.Logging.Format = DefaultLogFormat
	return fc
}

// ParseDuration parses a duration value that may arrive as a string or a number of seconds
func ParseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := v.Get(key)
	switch val := raw.(type) {
	case int:
		return time.Duration(val) * time.Second, nil
	case int64:
		return time.Duration(val) * time.Second, nil
	case float64:
		return time.Duration(val * float64(time.Second)), nil
	case time.Duration:
		return val, nil
	}
	return time.ParseDuration(v.GetString(key))
}
