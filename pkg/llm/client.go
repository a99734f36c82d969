package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// completionCacheSize bounds how many generated texts are kept. Retried
	// solves re-ask for the same title or body, there is no point paying for
	// the same completion twice in one run.
	completionCacheSize = 128

	defaultTemperature = 0.7
	defaultMaxTokens   = 500

	// FallbackCommitMessage is used when no model is configured or the
	// generated message fails validation.
	FallbackCommitMessage = "agent bot commit"

	commitSummaryMaxLength = 50
	commitDiffMinLength    = 10
)

type Params struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Client generates the small pieces of prose around a solve: pull request
// titles and bodies, and commit messages. It is optional, when no API key is
// configured every helper degrades to a deterministic fallback.
type Client struct {
	api   *openai.Client
	model string
	cache *lru.Cache[string, string]
}

func NewClient(params Params) (*Client, error) {
	cache, err := lru.New[string, string](completionCacheSize)
	if err != nil {
		return nil, err
	}

	client := &Client{
		model: params.Model,
		cache: cache,
	}
	if params.APIKey != "" {
		cfg := openai.DefaultConfig(params.APIKey)
		if params.BaseURL != "" {
			cfg.BaseURL = params.BaseURL
		}
		client.api = openai.NewClientWithConfig(cfg)
	}
	return client, nil
}

// Enabled reports whether a model is actually wired up.
func (c *Client) Enabled() bool {
	return c.api != nil
}

// PullRequestTitle asks the model for a PR title based on the instance
// background. Returns empty when no model is configured, callers fall back
// to their own defaults.
func (c *Client) PullRequestTitle(ctx context.Context, background string) (string, error) {
	if !c.Enabled() {
		return "", nil
	}
	return c.complete(ctx, "pr-title",
		"You are an assistant that helps generate concise, professional pull request titles.",
		fmt.Sprintf("Based on the following background, generate a pull request title: %s", background),
	)
}

var issueNumberPattern = regexp.MustCompile(`Issue Number: (\d+)`)

// PullRequestBody asks the model for a PR description based on the instance
// background and the assistant logs. When the background names an issue
// number, a closing "Fixes #N" line is guaranteed to be present.
func (c *Client) PullRequestBody(ctx context.Context, background string, logs string) (string, error) {
	var issueNumber string
	if match := issueNumberPattern.FindStringSubmatch(background); match != nil {
		issueNumber = match[1]
	}

	if !c.Enabled() {
		if issueNumber != "" {
			return "Fixes #" + issueNumber, nil
		}
		return "", nil
	}

	body, err := c.complete(ctx, "pr-body",
		"You are an assistant that helps generate detailed, clear, and professional pull request descriptions.",
		fmt.Sprintf("Based on the following background and git logs, generate a pull request description.\n\nBackground:\n%s\n\nGit Logs:\n%s",
			background, logs),
	)
	if err != nil {
		return "", err
	}
	if issueNumber != "" && !strings.Contains(strings.ToLower(body), "fixes #"+issueNumber) {
		body = fmt.Sprintf("%s\n\nFixes #%s", body, issueNumber)
	}
	return body, nil
}

// CommitMessage asks the model for a commit message describing the diff. A
// missing model, an unusable diff or a malformed response all degrade to
// FallbackCommitMessage.
func (c *Client) CommitMessage(ctx context.Context, diff string) (string, error) {
	if !c.Enabled() {
		return FallbackCommitMessage, nil
	}
	if len(strings.TrimSpace(diff)) < commitDiffMinLength {
		log.Ctx(ctx).Debug().Msg("diff too small to describe, using fallback commit message")
		return FallbackCommitMessage, nil
	}

	prompt := fmt.Sprintf(`Generate a concise and informative git commit message based on the following diff:

%s

The commit message should:
1. Start with a brief summary line (max 50 chars)
2. Follow with a blank line
3. Include a detailed description of the changes
4. Use imperative mood (e.g., "Add" not "Added")
5. Reference any relevant issue numbers if found in the diff
6. Include "Fixes #<number>" if the change fixes an issue

Format the message like this:
<summary line>

<detailed description>`, diff)

	message, err := c.complete(ctx, "commit-message", "", prompt)
	if err != nil {
		return "", err
	}
	if message == "" || len(strings.SplitN(message, "\n", 2)[0]) > commitSummaryMaxLength {
		log.Ctx(ctx).Warn().Msg("generated commit message failed validation, using fallback")
		return FallbackCommitMessage, nil
	}
	return message, nil
}

var urlPattern = regexp.MustCompile(`https?://\S+`)

func (c *Client) complete(ctx context.Context, kind string, system string, user string) (string, error) {
	// Links in backgrounds, diffs and logs are stripped so the model cannot
	// echo them into the generated text.
	user = urlPattern.ReplaceAllString(user, "")

	key := cacheKey(kind, system, user)
	if cached, ok := c.cache.Get(key); ok {
		return cached, nil
	}

	var messages []openai.ChatCompletionMessage
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: user,
	})

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	})
	if err != nil {
		return "", errors.Wrapf(err, "generating %s", kind)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("generating %s: model returned no choices", kind)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	c.cache.Add(key, content)
	return content, nil
}

func cacheKey(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(hash[:])
}
