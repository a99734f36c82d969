package version

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver"
	"github.com/google/go-github/v53/github"
	"github.com/rs/zerolog/log"

	"github.com/prospector-bot/prospector/pkg/models"
)

const (
	releaseOwner = "prospector-bot"
	releaseRepo  = "prospector"

	// initialCheckDelay keeps the first check off the critical startup path.
	initialCheckDelay = time.Minute
)

type UpdateCheckResponse struct {
	Version *models.BuildVersionInfo `json:"version"`
	Message string                   `json:"message"`
}

// CheckForUpdate fetches the latest published release and compares it
// against the running build. The message is empty when the running build is
// already the newest one.
func CheckForUpdate(ctx context.Context, current *models.BuildVersionInfo) (*UpdateCheckResponse, error) {
	client := github.NewClient(nil)
	release, _, err := client.Repositories.GetLatestRelease(ctx, releaseOwner, releaseRepo)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch the latest release: %w", err)
	}

	latestTag := release.GetTagName()
	latest, err := semver.NewVersion(latestTag)
	if err != nil {
		return nil, fmt.Errorf("failed to parse latest release tag %q: %w", latestTag, err)
	}

	response := &UpdateCheckResponse{
		Version: &models.BuildVersionInfo{
			GitVersion: latestTag,
			Major:      strconv.FormatInt(latest.Major(), 10),
			Minor:      strconv.FormatInt(latest.Minor(), 10),
		},
	}

	running, err := semver.NewVersion(current.GitVersion)
	if err != nil {
		// dev builds have no comparable version, leave the message empty
		return response, nil
	}
	if latest.GreaterThan(running) {
		response.Message = fmt.Sprintf("A new release of prospector is available: %s -> %s, see %s",
			current.GitVersion, latestTag, release.GetHTMLURL())
	}
	return response, nil
}

func LogUpdateResponse(ctx context.Context, ucr *UpdateCheckResponse) {
	if ucr != nil && ucr.Message != "" {
		log.Ctx(ctx).Info().Str("NewVersion", ucr.Version.GitVersion).Msg(strings.ReplaceAll(ucr.Message, "\n", " "))
	}
}

// RunUpdateChecker starts a goroutine that periodically checks for a newer
// release until the passed context is cancelled. Check failures are logged
// and swallowed so a long-running agent is never disturbed by them.
func RunUpdateChecker(
	ctx context.Context,
	frequency time.Duration,
	responseCallback func(context.Context, *UpdateCheckResponse),
) {
	if frequency <= 0 {
		log.Ctx(ctx).Warn().Dur("Frequency", frequency).Msg("Update frequency is zero or less so no update checks will run")
		return
	}

	clientVersion := Get()
	runUpdateCheck := func() {
		updateResponse, err := CheckForUpdate(ctx, clientVersion)
		if err != nil {
			log.Ctx(ctx).Debug().Err(err).Msg("Failed to perform update check")
			return
		}
		responseCallback(ctx, updateResponse)
	}

	initialTimer := time.NewTimer(initialCheckDelay)
	updateTicker := time.NewTicker(frequency)

	go func() {
		defer initialTimer.Stop()
		defer updateTicker.Stop()
		for {
			select {
			case <-initialTimer.C:
				runUpdateCheck()
			case <-updateTicker.C:
				runUpdateCheck()
			case <-ctx.Done():
				return
			}
		}
	}()
}
