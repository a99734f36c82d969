package docker

import (
	"context"

	"github.com/docker/docker/api/types/container"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/prospector-bot/prospector/pkg/config/types"
	"github.com/prospector-bot/prospector/pkg/docker"
	"github.com/prospector-bot/prospector/pkg/executor"
	dockermodels "github.com/prospector-bot/prospector/pkg/executor/docker/models"
)

const (
	// labelAgent marks every container this process creates.
	labelAgent = "prospector"
	// labelInstanceID ties a container to the marketplace instance it is
	// working on, so a crashed run can still be swept up later.
	labelInstanceID = "prospector.instance"
)

type ExecutorParams struct {
	Agent  types.AgentConfig
	GitHub types.GitHubConfig
}

// Executor runs one assistant container per instance against a workspace
// bind mount.
type Executor struct {
	client *docker.Client
	agent  types.AgentConfig
	github types.GitHubConfig
}

func NewExecutor(params ExecutorParams) (*Executor, error) {
	dockerClient, err := docker.NewDockerClient()
	if err != nil {
		return nil, err
	}
	return &Executor{
		client: dockerClient,
		agent:  params.Agent,
		github: params.GitHub,
	}, nil
}

// IsInstalled checks if docker itself is installed.
func (e *Executor) IsInstalled(ctx context.Context) (bool, error) {
	return e.client.IsInstalled(ctx), nil
}

func (e *Executor) Run(ctx context.Context, request executor.RunRequest) (executor.RunResult, error) {
	spec, err := EngineSpecFor(SpecParams{Agent: e.agent, GitHub: e.github, Request: request})
	if err != nil {
		return executor.RunResult{}, err
	}
	engine, err := dockermodels.DecodeSpec(spec)
	if err != nil {
		return executor.RunResult{}, err
	}

	if err := e.client.ImagePullIfNotPresent(ctx, engine.Image); err != nil {
		return executor.RunResult{}, errors.Wrapf(err, "failed to pull image %s", engine.Image)
	}

	containerCfg := container.Config{
		Image:      engine.Image,
		Entrypoint: engine.Entrypoint,
		Cmd:        engine.Parameters,
		Env:        engine.EnvironmentVariables,
		WorkingDir: engine.WorkingDirectory,
		User:       engine.User,
		// The assistant CLIs expect an interactive terminal even when every
		// prompt is auto-confirmed.
		Tty:       true,
		OpenStdin: true,
		Labels: map[string]string{
			labelAgent:      "true",
			labelInstanceID: request.InstanceID,
		},
	}
	hostCfg := container.HostConfig{
		Binds:      engine.Binds(),
		ExtraHosts: engine.ExtraHosts,
	}

	created, err := e.client.ContainerCreate(ctx, &containerCfg, &hostCfg, nil, nil, engine.Name)
	if err != nil {
		return executor.RunResult{}, errors.Wrap(err, "failed to create container")
	}

	handler := &executionHandler{
		client: e.client,
		logger: log.Ctx(ctx).With().
			Str("Container", created.ID).
			Str("Instance", request.InstanceID).
			Logger(),
		instanceID:  request.InstanceID,
		containerID: created.ID,
	}

	runCtx := ctx
	if request.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, request.Timeout)
		defer cancel()
	}
	return handler.run(runCtx)
}

var _ executor.Executor = (*Executor)(nil)
