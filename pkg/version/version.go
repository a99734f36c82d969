package version

import (
	"runtime"
	"strconv"
	"time"

	"github.com/Masterminds/semver"
	"github.com/rs/zerolog/log"

	"github.com/prospector-bot/prospector/pkg/models"
)

// These are overridden at build time via -ldflags.
var (
	GITVERSION = "v0.0.0-dev"
	GITCOMMIT  = ""
	BUILDDATE  = ""
)

// Get returns the overall codebase version. It's for detecting what code a
// binary was built from.
func Get() *models.BuildVersionInfo {
	versionInfo := &models.BuildVersionInfo{
		GitVersion: GITVERSION,
		GitCommit:  GITCOMMIT,
		GOOS:       runtime.GOOS,
		GOARCH:     runtime.GOARCH,
	}

	if s, err := semver.NewVersion(GITVERSION); err == nil {
		versionInfo.Major = strconv.FormatInt(s.Major(), 10)
		versionInfo.Minor = strconv.FormatInt(s.Minor(), 10)
	} else {
		log.Debug().Msgf("Could not parse GITVERSION during build - %s", GITVERSION)
	}

	if BUILDDATE != "" {
		if buildDate, err := time.Parse(time.RFC3339, BUILDDATE); err == nil {
			versionInfo.BuildDate = buildDate
		}
	}

	return versionInfo
}
