package solver

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/samber/lo"

	"github.com/prospector-bot/prospector/pkg/models"
)

const promptInstructions = "You are a helpful AI assistant that interacts with a human and implements code changes. " +
	"Your task is to analyze the issue description and specifically address the conversation with the user. " +
	"Focus only on implementing changes requested in the conversation with the user. " +
	"Ensure your changes maintain code quality and follow the project's standards"

// The assistant edits the clone; committing and pushing are this agent's job.
const promptRequirements = "NEVER COMMIT THE CHANGES PROPOSED. NEVER PUSH THE CHANGES. " +
	"ALWAYS STAY IN THE SAME REPOSITORY BRANCH."

// buildPrompt assembles the assistant prompt from the instance background
// and, when present, the pull request comments and the chat transcript with
// the requester.
func buildPrompt(background string, prComments string, userMessages string) string {
	sections := []string{
		"=== SYSTEM INSTRUCTIONS ===\n" + promptInstructions,
		"=== CONTEXT ===\nISSUE DESCRIPTION\n" + background,
	}
	if prComments != "" {
		sections = append(sections, "=== PULL REQUEST COMMENTS ===\n"+prComments)
	}
	if userMessages != "" {
		sections = append(sections, "=== USER MESSAGES ===\n"+userMessages)
	}

	actions := []string{"Review the issue description to understand the context"}
	switch {
	case prComments != "" && userMessages != "":
		actions = append(actions, "Review the pull request comments and user messages")
	case prComments != "":
		actions = append(actions, "Review the pull request comments")
	case userMessages != "":
		actions = append(actions, "Review the user messages")
	}
	actions = append(actions,
		"Implement the necessary code changes to solve the issue",
		"Ensure your changes maintain code quality and follow the project's standards",
	)
	numbered := make([]string, len(actions))
	for i, action := range actions {
		numbered[i] = fmt.Sprintf("%d. %s", i+1, action)
	}

	sections = append(sections,
		"=== REQUIRED ACTIONS ===\n"+strings.Join(numbered, "\n"),
		"=== SYSTEM REQUIREMENTS ===\n"+promptRequirements,
	)
	return strings.Join(sections, "\n\n")
}

var urlPattern = regexp.MustCompile(`https?://\S+`)

// scrubURLs strips the repository link labels and every URL from the text.
func scrubURLs(text string) string {
	text = strings.ReplaceAll(text, "Repository URL:", "")
	text = strings.ReplaceAll(text, "Issue URL:", "")
	return urlPattern.ReplaceAllString(text, "")
}

// formatTranscript flattens a chat into one message per line, oldest first.
func formatTranscript(chat models.Chat) string {
	return strings.Join(lo.Map(chat, func(m models.ChatMessage, _ int) string {
		return m.Message
	}), "\n")
}
