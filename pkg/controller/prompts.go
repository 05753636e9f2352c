package controller

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/computerscienceiscool/llm-autorun/pkg/evaluator"
	"github.com/computerscienceiscool/llm-autorun/pkg/llm"
)

const maxErrorChars = 1500

const repoSystemPrompt = "You are a technical assistant that generates EXACT PowerShell commands to set up and run GitHub repositories. " +
	"Provide commands that can be executed directly without modification. " +
	"Include installation steps if needed."

const chatSystemPrompt = "You are a command-line assistant. When the request can be carried out in a terminal, " +
	"answer with the exact PowerShell commands inside a ```powershell code block, one command per line. " +
	"Commands run in the current working directory without further confirmation."

const commandInstructions = "Generate a numbered list of PowerShell commands to:\n" +
	"1. Install dependencies if needed\n" +
	"2. Run the program\n" +
	"3. Execute test cases if mentioned\n" +
	"Output ONLY the commands, one per line, without additional explanations."

// InitialMessages builds the first request of a run
func InitialMessages(req Request, readme string) []llm.Message {
	if req.Mode == ModeChat {
		return []llm.Message{llm.System(chatSystemPrompt), llm.User(req.Prompt)}
	}

	var b strings.Builder
	writeContext(&b, req, readme)
	b.WriteString(commandInstructions)
	return []llm.Message{llm.System(repoSystemPrompt), llm.User(b.String())}
}

// DiagnosisMessages asks for corrected commands after a failed attempt
func DiagnosisMessages(req Request, readme string, attempted []string, failures []evaluator.ExecutionResult) []llm.Message {
	system := repoSystemPrompt
	if req.Mode == ModeChat {
		system = chatSystemPrompt
	}

	var b strings.Builder
	writeContext(&b, req, readme)

	b.WriteString("The following commands were already attempted:\n")
	for i, c := range attempted {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c)
	}

	b.WriteString("\nThese commands failed:\n")
	for _, f := range failures {
		fmt.Fprintf(&b, "- %s\n  %s\n", f.Command, failureDetail(f))
	}

	b.WriteString("\nGenerate corrected PowerShell commands that fix these errors and complete the request. " +
		"Do not repeat commands that already succeeded unless they are needed again, and do not repeat a failing command unchanged. " +
		"Output ONLY the commands, one per line, without additional explanations.")
	return []llm.Message{llm.System(system), llm.User(b.String())}
}

func writeContext(b *strings.Builder, req Request, readme string) {
	if req.Target != "" && req.Mode == ModeRepo {
		fmt.Fprintf(b, "Repository: %s\n\n", req.Target)
	}
	if readme != "" {
		fmt.Fprintf(b, "README Content:\n%s\n\n", readme)
	}
	fmt.Fprintf(b, "User Request: %s\n\n", req.Prompt)
}

// failureDetail describes one failure; runner crash text is sanitized, the tail of long output kept
func failureDetail(r evaluator.ExecutionResult) string {
	text := r.ErrorText()
	if r.Status == evaluator.StatusStartError {
		text = evaluator.SanitizeText(text)
	}
	if len(text) > maxErrorChars {
		i := len(text) - maxErrorChars
		for i < len(text) && !utf8.RuneStart(text[i]) {
			i++
		}
		text = "..." + text[i:]
	}
	text = strings.ReplaceAll(strings.TrimSpace(text), "\n", "\n  ")

	switch r.Status {
	case evaluator.StatusBlocked:
		return "(skipped) " + text
	case evaluator.StatusStartError:
		return "(not started) " + text
	default:
		return fmt.Sprintf("(exit code %d) %s", r.ExitCode, text)
	}
}
