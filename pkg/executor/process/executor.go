package process

import (
	"context"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/prospector-bot/prospector/pkg/config/types"
	"github.com/prospector-bot/prospector/pkg/executor"
)

const killGracePeriod = 10 * time.Second

type ExecutorParams struct {
	Agent types.AgentConfig
}

// Executor runs a locally installed assistant CLI as a child process, with
// the workspace as its working directory and the prompt as its final
// argument.
type Executor struct {
	agent types.AgentConfig
}

func NewExecutor(params ExecutorParams) *Executor {
	return &Executor{agent: params.Agent}
}

func (e *Executor) IsInstalled(_ context.Context) (bool, error) {
	if e.agent.Command == "" {
		return false, nil
	}
	_, err := exec.LookPath(e.agent.Command)
	return err == nil, nil
}

func (e *Executor) Run(ctx context.Context, request executor.RunRequest) (executor.RunResult, error) {
	if e.agent.Command == "" {
		return executor.RunResult{}, errors.New("process agent requires a command to run")
	}

	runCtx := ctx
	if request.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, request.Timeout)
		defer cancel()
	}

	args := append(argsFromParams(e.agent.Params), request.Prompt)
	cmd := exec.CommandContext(runCtx, e.agent.Command, args...) //nolint:gosec
	cmd.Dir = request.WorkspaceDir

	// Make sure there is _some_ env set for the assistant so that it doesn't
	// inherit the environment of this process, only what we want it to see.
	env := []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + os.Getenv("HOME"),
	}
	if e.agent.OpenAIAPIKey != "" {
		env = append(env, "OPENAI_API_KEY="+e.agent.OpenAIAPIKey)
	}
	if e.agent.AnthropicAPIKey != "" {
		env = append(env, "ANTHROPIC_API_KEY="+e.agent.AnthropicAPIKey)
	}
	cmd.Env = env

	// The assistant may spawn its own children. Run it in a fresh process
	// group and terminate the whole group on cancellation.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = killGracePeriod

	output := newTailBuffer(maxLogBytes)
	cmd.Stdout = output
	cmd.Stderr = output

	log.Ctx(ctx).Info().
		Str("Command", e.agent.Command).
		Str("Instance", request.InstanceID).
		Msg("starting assistant process")

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if runCtx.Err() != nil && ctx.Err() == nil {
		// only the run deadline expired, the caller is still interested in
		// whatever output exists
		log.Ctx(ctx).Warn().Dur("duration", duration).Msg("assistant process timed out")
		return executor.RunResult{
			Logs:     output.String(),
			ExitCode: -1,
			Duration: duration,
			TimedOut: true,
		}, nil
	}
	if ctx.Err() != nil {
		return executor.RunResult{}, ctx.Err()
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return executor.RunResult{}, errors.Wrap(err, "failed to run assistant process")
		}
		exitCode = exitErr.ExitCode()
	}

	return executor.RunResult{
		Logs:     output.String(),
		ExitCode: exitCode,
		Duration: duration,
	}, nil
}

func argsFromParams(params map[string]interface{}) []string {
	raw, ok := params["args"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []interface{}:
		args := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				args = append(args, s)
			}
		}
		return args
	default:
		return nil
	}
}

var _ executor.Executor = (*Executor)(nil)
