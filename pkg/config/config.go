package config

import "time"

// Config is the resolved runtime configuration
type Config struct {
	// Remote completion
	APIURL        string
	APIModel      string
	APIKey        string
	APIKeyEnv     string
	Temperature   float64
	MaxTokens     int
	APITimeout    time.Duration
	ArtifactDir   string
	ReadmeTimeout time.Duration
	WorkspaceDir  string
	WorkDir       string
	InitGit       bool

	// Execution
	ExecBackend        string
	ExecShells         []string
	ExecTimeout        time.Duration
	ExecForwardSlashes bool
	ExecImage          string
	ExecMemoryLimit    string
	ExecCPULimit       int
	ExecNetwork        bool
	MaxCommandLength   int

	// Extraction and policy
	DenyPatterns   []string
	Verbs          []string
	FenceLanguages []string

	// Retry controller
	MaxAttempts     int
	ChatMaxAttempts int
	RetryPause      time.Duration
	ReadmeLimit     int

	// Persistence, audit and logging
	HistoryEnabled bool
	HistoryPath    string
	AuditLogPath   string
	LockDir        string
	LogLevel       string
	LogFormat      string
	LogFile        string

	Verbose bool
}
