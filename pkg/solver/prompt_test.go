//go:build unit || !integration

package solver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/prospector-bot/prospector/pkg/models"
)

const (
	testBackground   = "Test background"
	testPRComments   = "Test PR comments"
	testUserMessages = "Test user messages"
)

func TestBuildPromptBackgroundOnly(t *testing.T) {
	prompt := buildPrompt(testBackground, "", "")

	assert.Contains(t, prompt, "=== SYSTEM INSTRUCTIONS ===")
	assert.Contains(t, prompt, "=== CONTEXT ===")
	assert.Contains(t, prompt, testBackground)
	assert.Contains(t, prompt, "=== REQUIRED ACTIONS ===")
	assert.NotContains(t, prompt, "=== PULL REQUEST COMMENTS ===")
	assert.NotContains(t, prompt, "=== USER MESSAGES ===")
	assert.Contains(t, prompt, "3. Ensure your changes maintain code quality")
}

func TestBuildPromptWithPRComments(t *testing.T) {
	prompt := buildPrompt(testBackground, testPRComments, "")

	assert.Contains(t, prompt, "=== PULL REQUEST COMMENTS ===")
	assert.Contains(t, prompt, testPRComments)
	assert.NotContains(t, prompt, "=== USER MESSAGES ===")
	assert.Contains(t, prompt, "2. Review the pull request comments\n")
	assert.Contains(t, prompt, "4. Ensure your changes maintain code quality")
}

func TestBuildPromptWithUserMessages(t *testing.T) {
	prompt := buildPrompt(testBackground, "", testUserMessages)

	assert.Contains(t, prompt, "=== USER MESSAGES ===")
	assert.Contains(t, prompt, testUserMessages)
	assert.NotContains(t, prompt, "=== PULL REQUEST COMMENTS ===")
	assert.Contains(t, prompt, "2. Review the user messages")
}

func TestBuildPromptWithPRCommentsAndUserMessages(t *testing.T) {
	prompt := buildPrompt(testBackground, testPRComments, testUserMessages)

	assert.Contains(t, prompt, "=== PULL REQUEST COMMENTS ===")
	assert.Contains(t, prompt, "=== USER MESSAGES ===")
	assert.Contains(t, prompt, testPRComments)
	assert.Contains(t, prompt, testUserMessages)
	assert.Contains(t, prompt, "2. Review the pull request comments and user messages")
}

func TestBuildPromptAlwaysCarriesRequirements(t *testing.T) {
	prompts := []string{
		buildPrompt(testBackground, "", ""),
		buildPrompt(testBackground, testPRComments, ""),
		buildPrompt(testBackground, "", testUserMessages),
		buildPrompt(testBackground, testPRComments, testUserMessages),
	}
	for _, prompt := range prompts {
		assert.Contains(t, prompt, "=== SYSTEM REQUIREMENTS ===")
		assert.Contains(t, prompt, "NEVER COMMIT THE CHANGES PROPOSED")
		assert.Contains(t, prompt, "NEVER PUSH THE CHANGES")
		assert.Contains(t, prompt, "ALWAYS STAY IN THE SAME REPOSITORY BRANCH")
	}
}

func TestScrubURLs(t *testing.T) {
	text := "Fix the bug.\nRepository URL: https://github.com/example/widget\n" +
		"Issue URL: https://github.com/example/widget/issues/4\nSee http://example.com/docs too."

	scrubbed := scrubURLs(text)

	assert.NotContains(t, scrubbed, "https://")
	assert.NotContains(t, scrubbed, "http://")
	assert.NotContains(t, scrubbed, "Repository URL:")
	assert.NotContains(t, scrubbed, "Issue URL:")
	assert.Contains(t, scrubbed, "Fix the bug.")
	assert.Contains(t, scrubbed, "too.")
}

func TestFormatTranscript(t *testing.T) {
	now := time.Now()
	chat := models.Chat{
		{Message: "please fix the widget", Sender: models.SenderRequester, Timestamp: models.NewTimestamp(now)},
		{Message: "on it", Sender: models.SenderProvider, Timestamp: models.NewTimestamp(now.Add(time.Minute))},
	}

	assert.Equal(t, "please fix the widget\non it", formatTranscript(chat))
	assert.Empty(t, formatTranscript(nil))
}
