package docker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/hashicorp/go-multierror"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Client struct {
	*dockerclient.Client
	credentials Credentials
}

func NewDockerClient() (*Client, error) {
	client, err := dockerclient.NewClientWithOpts(
		dockerclient.FromEnv,
		dockerclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create docker client")
	}
	return &Client{
		Client:      client,
		credentials: GetDockerCredentials(),
	}, nil
}

func (c *Client) IsInstalled(ctx context.Context) bool {
	_, err := c.Info(ctx)
	return err == nil
}

func (c *Client) removeContainers(ctx context.Context, filterz filters.Args) error {
	containers, err := c.ContainerList(ctx, types.ContainerListOptions{All: true, Filters: filterz})
	if err != nil {
		return pkgerrors.WithStack(err)
	}

	var errs *multierror.Error
	for _, cont := range containers {
		errs = multierror.Append(errs, c.RemoveContainer(ctx, cont.ID))
	}
	return errs.ErrorOrNil()
}

func (c *Client) removeNetworks(ctx context.Context, filterz filters.Args) error {
	networks, err := c.NetworkList(ctx, types.NetworkListOptions{Filters: filterz})
	if err != nil {
		return pkgerrors.WithStack(err)
	}

	var errs *multierror.Error
	for _, n := range networks {
		log.Ctx(ctx).Debug().Str("Network", n.ID).Msg("Network Stop")
		errs = multierror.Append(errs, c.NetworkRemove(ctx, n.ID))
	}
	return errs.ErrorOrNil()
}

// RemoveObjectsWithLabel cleans up every container and network carrying the
// given label, no matter which run created it.
func (c *Client) RemoveObjectsWithLabel(ctx context.Context, labelName, labelValue string) error {
	filterz := filters.NewArgs(
		filters.Arg("label", fmt.Sprintf("%s=%s", labelName, labelValue)),
	)

	var errs *multierror.Error
	errs = multierror.Append(errs, c.removeContainers(ctx, filterz))
	errs = multierror.Append(errs, c.removeNetworks(ctx, filterz))
	return errs.ErrorOrNil()
}

func (c *Client) FindContainer(ctx context.Context, label string, value string) (string, error) {
	containers, err := c.ContainerList(ctx, types.ContainerListOptions{All: true})
	if err != nil {
		return "", pkgerrors.WithStack(err)
	}

	for _, ctr := range containers {
		if ctr.Labels[label] == value {
			return ctr.ID, nil
		}
	}

	return "", pkgerrors.Errorf("unable to find container for %s=%s", label, value)
}

// GetLogs returns everything the container wrote to stdout and stderr as one
// string. Containers running with a TTY produce a single raw stream, others
// are demultiplexed into a shared buffer.
func (c *Client) GetLogs(ctx context.Context, id string) (string, error) {
	cont, err := c.ContainerInspect(ctx, id)
	if err != nil {
		return "", pkgerrors.WithStack(err)
	}

	logOptions := types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	}

	logsReader, err := c.ContainerLogs(ctx, id, logOptions)
	if err != nil {
		return "", pkgerrors.WithStack(err)
	}
	defer closeWithLogOnError("logsReader", logsReader)

	if cont.Config != nil && cont.Config.Tty {
		raw, err := io.ReadAll(logsReader)
		if err != nil {
			return "", pkgerrors.Wrap(err, "error reading container logs")
		}
		return string(raw), nil
	}

	var sb strings.Builder
	if _, err := stdcopy.StdCopy(&sb, &sb, logsReader); err != nil {
		return "", pkgerrors.Wrap(err, "error reading container logs")
	}
	return sb.String(), nil
}

func (c *Client) RemoveContainer(ctx context.Context, id string) error {
	log.Ctx(ctx).Debug().Str("id", id).Msgf("Container Stop")
	// ContainerRemove kills and removes a container from the docker host.
	err := c.ContainerRemove(ctx, id, types.ContainerRemoveOptions{
		RemoveVolumes: true,
		Force:         true,
	})
	if err != nil {
		return pkgerrors.WithStack(err)
	}
	return nil
}

// ImagePullIfNotPresent pulls the image unless a copy already exists locally.
// Assistant images are large, so layer progress is surfaced to the debug log
// while the pull runs.
func (c *Client) ImagePullIfNotPresent(ctx context.Context, img string) error {
	_, _, err := c.ImageInspectWithRaw(ctx, img)
	if err == nil {
		return nil
	}
	if !dockerclient.IsErrNotFound(err) {
		return pkgerrors.WithStack(err)
	}
	log.Ctx(ctx).Debug().Str("image", img).Msg("Pulling image as it wasn't found")

	pullOptions := types.ImagePullOptions{
		RegistryAuth: getAuthToken(ctx, img, c.credentials),
	}

	output, err := c.ImagePull(ctx, img, pullOptions)
	if err != nil {
		return pkgerrors.WithStack(err)
	}

	defer closeWithLogOnError("image-pull", output)

	stop := make(chan struct{}, 1)
	defer func() {
		stop <- struct{}{}
	}()
	t := time.NewTicker(3 * time.Second)
	defer t.Stop()

	layers := &sync.Map{}
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				logImagePullStatus(ctx, layers)
			}
		}
	}()

	dec := json.NewDecoder(output)
	for {
		var mess jsonmessage.JSONMessage
		if err := dec.Decode(&mess); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if mess.Aux != nil {
			continue
		}
		if mess.Error != nil {
			return mess.Error
		}
		layers.Store(mess.ID, mess)
	}
}

func logImagePullStatus(ctx context.Context, m *sync.Map) {
	withUnits := map[string]*zerolog.Event{}
	withoutUnits := map[string][]string{}
	m.Range(func(_, value any) bool {
		mess := value.(jsonmessage.JSONMessage)

		if mess.Progress == nil || mess.Progress.Current <= 0 {
			withoutUnits[mess.Status] = append(withoutUnits[mess.Status], mess.ID)
		} else {
			var status string
			if mess.Progress.Total <= 0 {
				status = fmt.Sprintf("%d %s", mess.Progress.Total, mess.Progress.Units)
			} else {
				status = fmt.Sprintf("%.3f%%", float64(mess.Progress.Current)/float64(mess.Progress.Total)*100)
			}

			if _, ok := withUnits[mess.Status]; !ok {
				withUnits[mess.Status] = zerolog.Dict()
			}

			withUnits[mess.Status].Str(mess.ID, status)
		}

		return true
	})
	e := log.Ctx(ctx).Debug()
	for s, l := range withUnits {
		e = e.Dict(s, l)
	}
	for s, l := range withoutUnits {
		sort.Strings(l)
		e = e.Strs(s, l)
	}

	e.Msg("Pulling layers")
}

func getAuthToken(ctx context.Context, image string, dockerCreds Credentials) string {
	if dockerCreds.IsValid() {
		// We only currently support auth for the default registry, so any
		// pulls for `image` or `user/image` should be okay, anything trying
		// to pull `repo/user/image` should not.
		if strings.Count(image, "/") < 2 {
			authConfig := types.AuthConfig{
				Username: dockerCreds.Username,
				Password: dockerCreds.Password,
			}

			encodedJSON, err := json.Marshal(authConfig)
			if err != nil {
				log.Ctx(ctx).Err(err).Msg("failed to encode docker credentials")
			} else {
				log.Ctx(ctx).
					Info().
					Str("Image", image).
					Msg("authenticated pull from docker registry")
				return base64.URLEncoding.EncodeToString(encodedJSON)
			}
		} else {
			log.Ctx(ctx).Info().Msg("cannot authenticate for custom registry")
		}
	}

	return ""
}

const (
	UsernameEnvVar = "DOCKER_USERNAME"
	PasswordEnvVar = "DOCKER_PASSWORD"
)

type Credentials struct {
	Username string
	Password string
}

func (d *Credentials) IsValid() bool {
	return d.Username != "" && d.Password != ""
}

func GetDockerCredentials() Credentials {
	return Credentials{
		Username: os.Getenv(UsernameEnvVar),
		Password: os.Getenv(PasswordEnvVar),
	}
}

// closeWithLogOnError closes the resource and logs any relevant failure.
func closeWithLogOnError(name string, c io.Closer) {
	err := c.Close()
	if err == nil || errors.Is(err, os.ErrClosed) {
		return
	}

	l := log.With().CallerWithSkipFrameCount(3).Logger()
	l.Err(err).Msgf("Failed to close %s", name)
}
