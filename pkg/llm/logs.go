package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// Assistant containers write colorised, cursor-controlled terminal output.
// Posted as PR comments or fed back into prompts, the escape sequences are
// noise, so they are stripped before the logs leave the agent.
var (
	ansiEscapePattern   = regexp.MustCompile("\x1b[@-_][0-?]*[ -/]*[@-~]")
	controlCharsPattern = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f]`)
)

// CleanLogs strips terminal escape sequences and control characters from
// assistant output, keeping newlines and tabs. Aider appends a token usage
// banner and a provider listing that mean nothing to a requester, both are
// dropped.
func CleanLogs(logs string) string {
	cleaned := ansiEscapePattern.ReplaceAllString(logs, "")
	cleaned = controlCharsPattern.ReplaceAllString(cleaned, "")
	cleaned, _, _ = strings.Cut(cleaned, "Tokens:")
	return strings.ReplaceAll(cleaned, "Provider List:  ", "")
}

const tidyLogsPrompt = `Below are the raw logs from an AI coding assistant. Please rewrite these logs as a clear,
concise message to a user, focusing on the important actions and changes made. Remove any
technical artifacts, ANSI escape codes, and redundant information. Format the response
in a user-friendly way.

Raw logs:
%s`

// TidyLogs turns raw assistant output into a message fit for a requester. The
// mechanical cleanup always happens; the model rewrite is best effort and the
// cleaned logs stand on their own when it is unavailable.
func (c *Client) TidyLogs(ctx context.Context, logs string) string {
	cleaned := CleanLogs(logs)
	if !c.Enabled() || strings.TrimSpace(cleaned) == "" {
		return cleaned
	}

	tidied, err := c.complete(ctx, "tidy-logs",
		"You are a helpful assistant that processes technical logs.",
		fmt.Sprintf(tidyLogsPrompt, cleaned))
	if err != nil || strings.TrimSpace(tidied) == "" {
		log.Ctx(ctx).Warn().Err(err).Msg("failed to tidy assistant logs with model")
		return cleaned
	}
	return strings.TrimSpace(tidied)
}
