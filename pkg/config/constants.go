package config

import (
	"runtime"
	"time"
)

// Default values and limits for llm-autorun
const (
	// Remote completion service
	DefaultAPIURL      = "https://api.siliconflow.cn/v1/chat/completions"
	DefaultModel       = "Qwen/QwQ-32B"
	DefaultAPIKeyEnv   = "DEEPSEEK_API_KEY"
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 2048
	DefaultAPITimeout  = 180 * time.Second

	// Execution
	DefaultExecBackend     = "local"
	DefaultExecTimeout     = 5 * time.Minute
	DefaultContainerImage  = "mcr.microsoft.com/powershell:latest"
	DefaultContainerMemory = "512m"
	DefaultContainerCPUs   = 1
	MaxCommandLength       = 1000 // Maximum length for a single extracted command

	// Retry controller
	DefaultMaxAttempts     = 3
	DefaultChatMaxAttempts = 1
	DefaultRetryPause      = 2 * time.Second
	DefaultReadmeLimit     = 5000 // README characters sent to the model

	// Repository runner
	DefaultWorkspaceDir       = "workspace"
	DefaultReadmeFetchTimeout = 10 * time.Second

	// Persistence and audit
	DefaultHistoryPath  = ".llm-autorun/history.db"
	DefaultAuditLogPath = "audit.log"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"

	// Config file
	ConfigName = "llm-autorun.config"
	EnvPrefix  = "AUTORUN"
)

// DefaultShells lists interpreters tried in order for the local backend
func DefaultShells() []string {
	if runtime.GOOS == "windows" {
		return []string{"pwsh", "powershell"}
	}
	return []string{"pwsh", "bash", "sh"}
}

// DefaultDenyPatterns is the advisory deny list applied before execution.
// Patterns are matched case-insensitively against the whole command text.
func DefaultDenyPatterns() []string {
	return []string{
		// recursive or unconfirmed deletion
		`\brm\s+(?:\S+\s+)*(?:-[a-z]*r[a-z]*|--recursive)\b`,
		`\b(?:remove-item|ri|rm|rmdir|rd|del|erase)\b.*\s-r(?:e(?:c(?:u(?:r(?:s(?:e)?)?)?)?)?)?\b`,
		`\s-r(?:e(?:c(?:u(?:r(?:s(?:e)?)?)?)?)?)?\b.*\|\s*(?:remove-item|ri|rm|del|erase)\b`,
		`\b(?:rd|rmdir)\s+.*/s\b`,
		`\bdel\s+.*/[sq]\b`,
		// formatting
		`\bformat(?:\.com)?\s+[a-z]:`,
		`\bformat-volume\b`,
		`\bclear-disk\b`,
		`\bmkfs(?:\.\w+)?\b`,
		`\bdiskpart\b`,
		`\bdd\s+.*\bof=/dev/`,
		// process and service termination
		`\bstop-process\b`,
		`\btaskkill\b`,
		`\bkill\s+(?:-\S+\s+)*\d+\b`,
		`\bstop-service\b`,
		`\bsystemctl\s+(?:stop|disable|kill)\b`,
		// arbitrary expression evaluation
		`\binvoke-expression\b`,
		`\biex\b`,
		`(?:^|[;&|(]\s*)eval\s`,
		// execution policy
		`\bset-executionpolicy\b`,
		// scheduled tasks
		`\b(?:register|unregister|set|new|disable)-scheduledtask\b`,
		`\bschtasks\b`,
		`\bcrontab\b`,
	}
}

// DefaultVerbs is the inline allow-list: cmdlet verb prefixes end with '-',
// everything else must match the first token exactly.
func DefaultVerbs() []string {
	return []string{
		"New-", "Get-", "Set-", "Remove-", "Add-", "Copy-", "Move-", "Rename-",
		"Start-", "Stop-", "Invoke-", "Test-", "Write-", "Out-", "Select-", "Install-",
		"mkdir", "cd", "ls", "dir", "echo", "cat", "touch", "cp", "mv", "rm", "pwd",
		"git", "pip", "pip3", "python", "python3", "py", "npm", "npx", "node", "yarn",
		"go", "make", "cargo", "dotnet", "java", "javac", "docker", "curl", "wget",
	}
}

// DefaultFenceLanguages are code fence tags treated as shell blocks; "" is an untagged fence
func DefaultFenceLanguages() []string {
	return []string{"", "shell", "sh", "bash", "zsh", "console", "powershell", "pwsh", "ps1", "ps", "cmd", "bat"}
}
