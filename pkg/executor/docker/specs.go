package docker

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prospector-bot/prospector/pkg/config/types"
	"github.com/prospector-bot/prospector/pkg/executor"
	dockermodels "github.com/prospector-bot/prospector/pkg/executor/docker/models"
	"github.com/prospector-bot/prospector/pkg/models"
)

const (
	defaultAiderImage            = "paulgauthier/aider"
	defaultOpenHandsImage        = "docker.all-hands.dev/all-hands-ai/openhands:0.15"
	defaultOpenHandsRuntimeImage = "docker.all-hands.dev/all-hands-ai/runtime:0.15-nikolaik"
	defaultOpenHandsModel        = "openai/gpt-4o"

	aiderWorkspaceMount     = "/app"
	aiderCacheHostDir       = "/tmp/aider_cache"
	aiderCacheMount         = "/home/ubuntu"
	openHandsWorkspaceMount = "/opt/workspace_base"
	raaidWorkspaceMount     = "/workspace"
	dockerSocket            = "/var/run/docker.sock"
)

// SpecParams carries everything an assistant container needs to know about
// one run.
type SpecParams struct {
	Agent   types.AgentConfig
	GitHub  types.GitHubConfig
	Request executor.RunRequest
}

// EngineSpecFor builds the container spec for the configured assistant
// backend.
func EngineSpecFor(params SpecParams) (*models.SpecConfig, error) {
	switch params.Agent.Type {
	case models.AgentTypeAider:
		return aiderSpec(params), nil
	case models.AgentTypeOpenHands:
		return openHandsSpec(params), nil
	case models.AgentTypeRaaid:
		return raaidSpec(params)
	default:
		return nil, fmt.Errorf("no container spec for agent type %q", params.Agent.Type)
	}
}

// aiderSpec runs the aider CLI against the workspace. The image ships a
// virtualenv that must be activated before aider is on PATH. Aider commits
// its own edits, so the run leaves the work tree committed but unpushed.
func aiderSpec(params SpecParams) *models.SpecConfig {
	script := "source /venv/bin/activate && aider --yes"
	if params.Agent.Model != "" {
		script += " --model " + shellQuote(params.Agent.Model)
	}
	script += " --message " + shellQuote(params.Request.Prompt)
	if testCmd := paramString(params.Agent.Params, "test_command", ""); testCmd != "" {
		script += fmt.Sprintf(" --test-cmd %s --auto-test", shellQuote(testCmd))
	}

	return dockermodels.NewDockerEngineBuilder(paramString(params.Agent.Params, "image", defaultAiderImage)).
		WithEntrypoint("/bin/bash", "-c", script).
		WithEnvironmentVariables(providerEnv(params.Agent)...).
		WithWorkingDirectory(aiderWorkspaceMount).
		WithMounts(map[string]string{
			params.Request.WorkspaceDir: aiderWorkspaceMount,
			paramString(params.Agent.Params, "cache_dir", aiderCacheHostDir): aiderCacheMount,
		}).
		WithUser(fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid())).
		Build()
}

// openHandsSpec runs the OpenHands app container. It talks to the host
// daemon through the mounted socket to spawn its own sandbox runtime, which
// is why it gets the docker.sock bind and the host-gateway mapping.
func openHandsSpec(params SpecParams) *models.SpecConfig {
	prompt := params.Request.Prompt +
		"\n\n=== SYSTEM REQUIREMENTS ===\n" +
		"MAKE SURE YOU COMMIT TO THE REPOSITORY THE CHANGES PROPOSED. " +
		"NEVER PUSH THE CHANGES. " +
		"ALWAYS STAY IN THE SAME REPOSITORY BRANCH."

	model := params.Agent.Model
	if model == "" {
		model = defaultOpenHandsModel
	}

	env := []string{
		"SANDBOX_RUNTIME_CONTAINER_IMAGE=" + paramString(params.Agent.Params, "runtime_image", defaultOpenHandsRuntimeImage),
		fmt.Sprintf("SANDBOX_USER_ID=%d", os.Getuid()),
		"GITHUB_TOKEN=" + params.GitHub.Token,
		"GITHUB_USERNAME=" + params.GitHub.Username,
		"GITHUB_EMAIL=" + params.GitHub.Email,
		"WORKSPACE_MOUNT_PATH=" + params.Request.WorkspaceDir,
		"LLM_API_KEY=" + params.Agent.OpenAIAPIKey,
		"LLM_MODEL=" + model,
		"LOG_ALL_EVENTS=true",
		// The sandbox must never block on credential prompts.
		"GIT_ASKPASS=echo",
		"GIT_TERMINAL_PROMPT=0",
	}

	return dockermodels.NewDockerEngineBuilder(paramString(params.Agent.Params, "image", defaultOpenHandsImage)).
		WithEntrypoint("python", "-m", "openhands.core.main", "-t", prompt, "--no-auto-continue").
		WithEnvironmentVariables(env...).
		WithMounts(map[string]string{
			params.Request.WorkspaceDir: openHandsWorkspaceMount,
			dockerSocket:                dockerSocket,
		}).
		WithExtraHosts("host.docker.internal:host-gateway").
		WithName(fmt.Sprintf("openhands-app-%s", time.Now().Format("20060102150405"))).
		Build()
}

// raaidSpec runs the headless RA.Aid CLI. There is no canonical public image,
// so the operator has to name one.
func raaidSpec(params SpecParams) (*models.SpecConfig, error) {
	image := paramString(params.Agent.Params, "image", "")
	if image == "" {
		return nil, fmt.Errorf("raaid agent requires the %q agent param to name a container image", "image")
	}

	entrypoint := []string{"ra-aid", "-m", params.Request.Prompt, "--cowboy-mode"}
	if params.Agent.Model != "" {
		entrypoint = append(entrypoint, "--model", params.Agent.Model)
	}

	env := append([]string{"RAAID_ENABLED=1"}, providerEnv(params.Agent)...)

	return dockermodels.NewDockerEngineBuilder(image).
		WithEntrypoint(entrypoint...).
		WithEnvironmentVariables(env...).
		WithWorkingDirectory(raaidWorkspaceMount).
		WithMounts(map[string]string{
			params.Request.WorkspaceDir: raaidWorkspaceMount,
		}).
		Build(), nil
}

// providerEnv forwards the model provider keys the assistant needs. Only the
// keys the operator configured are passed, never the whole host environment.
func providerEnv(agent types.AgentConfig) []string {
	var env []string
	if agent.OpenAIAPIKey != "" {
		env = append(env, "OPENAI_API_KEY="+agent.OpenAIAPIKey)
	}
	if agent.AnthropicAPIKey != "" {
		env = append(env, "ANTHROPIC_API_KEY="+agent.AnthropicAPIKey)
	}
	return env
}

func paramString(params map[string]interface{}, key, fallback string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

// shellQuote single-quotes a string for safe interpolation into a bash -c
// script, closing and reopening the quote around embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
