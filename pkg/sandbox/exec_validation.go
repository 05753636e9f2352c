package sandbox

import (
	"fmt"
	"strings"

	"github.com/computerscienceiscool/llm-autorun/pkg/config"
)

// ValidateCommand checks a command is well-formed before it reaches a shell.
// maxLen <= 0 uses config.MaxCommandLength.
func ValidateCommand(command string, maxLen int) error {
	command = strings.TrimSpace(command)

	if command == "" {
		return fmt.Errorf("empty command")
	}

	if maxLen <= 0 {
		maxLen = config.MaxCommandLength
	}
	if len(command) > maxLen {
		return fmt.Errorf("command too long (max %d characters, got %d)", maxLen, len(command))
	}

	// Null bytes and other low control characters
	if strings.ContainsAny(command, "\x00\x01\x02\x03\x04\x05\x06\x07\x08") {
		return fmt.Errorf("command contains invalid control characters")
	}

	return nil
}
