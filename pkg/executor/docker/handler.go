package docker

import (
	"context"
	"fmt"
	"strings"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/prospector-bot/prospector/pkg/docker"
	"github.com/prospector-bot/prospector/pkg/executor"
)

const destroyTimeout = 10 * time.Second

type executionHandler struct {
	// provided by the executor
	client *docker.Client
	logger zerolog.Logger

	// meta data about the task
	instanceID  string
	containerID string
}

// run starts the container and blocks until it stops or ctx expires. A ctx
// deadline is reported as a timed out result, any other failure to drive the
// container is an error. The container is removed on the way out either way.
func (h *executionHandler) run(ctx context.Context) (executor.RunResult, error) {
	defer func() {
		if err := h.destroy(destroyTimeout); err != nil {
			log.Warn().Err(err).Msg("failed to cleanup container")
		}
	}()

	start := time.Now()
	h.logger.Info().Msg("starting container execution")
	if err := h.client.ContainerStart(ctx, h.containerID, dockertypes.ContainerStartOptions{}); err != nil {
		// Special error to alert people about bad executable
		internalContainerStartErrorMsg := "failed to start container"
		if strings.Contains(err.Error(), "executable file not found") {
			internalContainerStartErrorMsg = "executable file not found"
		}
		return executor.RunResult{}, errors.Wrap(err, internalContainerStartErrorMsg)
	}

	// the idea here is even if the container errors
	// we want to capture its output and feed it back to the caller
	var containerExitStatusCode int64
	statusCh, errCh := h.client.ContainerWait(ctx, h.containerID, container.WaitConditionNotRunning)
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			h.logger.Warn().Dur("duration", time.Since(start)).Msg("container run timed out")
			return executor.RunResult{
				Logs:     h.collectLogs(),
				ExitCode: -1,
				Duration: time.Since(start),
				TimedOut: true,
			}, nil
		}
		reason := fmt.Errorf("context canceled while waiting on container status: %w", ctx.Err())
		h.logger.Err(reason).Msg("cancel waiting on container status")
		return executor.RunResult{}, reason
	case err := <-errCh:
		// the docker client failed to begin the wait request or failed to get
		// a response, there is nothing to salvage.
		reason := fmt.Errorf("received error response from docker client while waiting on container: %w", err)
		h.logger.Warn().Err(reason).Msg("failed while waiting on container status")
		return executor.RunResult{}, reason
	case exitStatus := <-statusCh:
		containerExitStatusCode = exitStatus.StatusCode
		if exitStatus.Error != nil {
			h.logger.Warn().
				Str("error", exitStatus.Error.Message).
				Int64("status", exitStatus.StatusCode).
				Msg("container returned status with error")
		} else {
			h.logger.Info().
				Int64("status", exitStatus.StatusCode).
				Msg("received status from container")
		}
	}

	result := executor.RunResult{
		Logs:     h.collectLogs(),
		ExitCode: int(containerExitStatusCode),
		Duration: time.Since(start),
	}
	h.logger.Info().
		Int64("status", containerExitStatusCode).
		Dur("duration", result.Duration).
		Msg("container execution ended")
	return result, nil
}

// collectLogs grabs whatever the container printed so far. Runs on its own
// context so logs survive a cancelled or expired run context.
func (h *executionHandler) collectLogs() string {
	ctx, cancel := context.WithTimeout(context.Background(), destroyTimeout)
	defer cancel()

	logs, err := h.client.GetLogs(ctx, h.containerID)
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to collect container logs")
		return ""
	}
	return logs
}

func (h *executionHandler) kill(ctx context.Context) error {
	h.logger.Info().Msg("killing the container")
	return h.client.ContainerStop(ctx, h.containerID, container.StopOptions{})
}

func (h *executionHandler) destroy(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	h.logger.Info().Msg("destroying the container")

	if err := h.kill(ctx); err != nil {
		return fmt.Errorf("failed to kill container (%s): %w", h.containerID, err)
	}

	if err := h.client.RemoveContainer(ctx, h.containerID); err != nil {
		return err
	}
	return h.client.RemoveObjectsWithLabel(ctx, labelInstanceID, h.instanceID)
}
