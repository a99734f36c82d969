package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/structs"
	"github.com/hashicorp/go-multierror"

	"github.com/prospector-bot/prospector/pkg/models"
)

const (
	EngineKeyImageDocker                = "Image"
	EngineKeyEntrypointDocker           = "Entrypoint"
	EngineKeyParametersDocker           = "Parameters"
	EngineKeyEnvironmentVariablesDocker = "EnvironmentVariables"
	EngineKeyWorkingDirectoryDocker     = "WorkingDirectory"
	EngineKeyMountsDocker               = "Mounts"
	EngineKeyExtraHostsDocker           = "ExtraHosts"
	EngineKeyUserDocker                 = "User"
	EngineKeyNameDocker                 = "Name"
)

// EngineSpec contains necessary parameters to execute a containerised
// assistant run.
type EngineSpec struct {
	// Image this should be pullable by docker
	Image string `json:"Image,omitempty"`
	// Entrypoint optionally override the default entrypoint
	Entrypoint []string `json:"Entrypoint,omitempty"`
	// Parameters holds additional commandline arguments
	Parameters []string `json:"Parameters,omitempty"`
	// EnvironmentVariables is a slice of env to run the container with
	EnvironmentVariables []string `json:"EnvironmentVariables,omitempty"`
	// WorkingDirectory inside the container
	WorkingDirectory string `json:"WorkingDirectory,omitempty"`
	// Mounts maps host paths to container paths, bound read-write
	Mounts map[string]string `json:"Mounts,omitempty"`
	// ExtraHosts adds host-to-IP mappings to the container's /etc/hosts
	ExtraHosts []string `json:"ExtraHosts,omitempty"`
	// User the container runs as, in uid:gid form
	User string `json:"User,omitempty"`
	// Name of the container. Empty lets the daemon pick one
	Name string `json:"Name,omitempty"`
}

func (c EngineSpec) Validate() error {
	var err *multierror.Error
	if strings.TrimSpace(c.Image) == "" {
		err = multierror.Append(err, errors.New("invalid docker engine params: image cannot be empty"))
	}
	for host, target := range c.Mounts {
		if strings.TrimSpace(host) == "" || strings.TrimSpace(target) == "" {
			err = multierror.Append(err, fmt.Errorf("invalid docker engine params: blank mount %q:%q", host, target))
		}
	}
	return err.ErrorOrNil()
}

func (c EngineSpec) ToMap() map[string]interface{} {
	return structs.Map(c)
}

// Binds renders the mount map in the HostConfig bind syntax.
func (c EngineSpec) Binds() []string {
	binds := make([]string, 0, len(c.Mounts))
	for host, target := range c.Mounts {
		binds = append(binds, fmt.Sprintf("%s:%s:rw", host, target))
	}
	return binds
}

func DecodeSpec(spec *models.SpecConfig) (EngineSpec, error) {
	if !spec.IsType(models.EngineDocker) {
		return EngineSpec{}, errors.New("invalid docker engine type. expected " + models.EngineDocker + ", but received: " + spec.Type)
	}
	inputParams := spec.Params
	if inputParams == nil {
		return EngineSpec{}, errors.New("invalid docker engine params. cannot be nil")
	}

	paramsBytes, err := json.Marshal(inputParams)
	if err != nil {
		return EngineSpec{}, fmt.Errorf("failed to encode docker engine specs. %w", err)
	}

	var c *EngineSpec
	err = json.Unmarshal(paramsBytes, &c)
	if err != nil {
		return EngineSpec{}, fmt.Errorf("failed to decode docker engine specs. %w", err)
	}
	return *c, c.Validate()
}

// DockerEngineBuilder is a struct that is used for constructing an EngineSpec object
// specifically for Docker engines using the Builder pattern.
type DockerEngineBuilder struct {
	eb *models.SpecConfig
}

// NewDockerEngineBuilder function initializes a new DockerEngineBuilder instance.
// It sets the engine type to models.EngineDocker and image as per the input argument.
func NewDockerEngineBuilder(image string) *DockerEngineBuilder {
	eb := models.NewSpecConfig(models.EngineDocker)
	eb.WithParam(EngineKeyImageDocker, image)
	return &DockerEngineBuilder{eb: eb}
}

// WithEntrypoint is a builder method that sets the Docker engine entrypoint.
// It returns the DockerEngineBuilder for further chaining of builder methods.
func (b *DockerEngineBuilder) WithEntrypoint(e ...string) *DockerEngineBuilder {
	b.eb.WithParam(EngineKeyEntrypointDocker, e)
	return b
}

// WithEnvironmentVariables is a builder method that sets the Docker engine's environment variables.
// It returns the DockerEngineBuilder for further chaining of builder methods.
func (b *DockerEngineBuilder) WithEnvironmentVariables(e ...string) *DockerEngineBuilder {
	b.eb.WithParam(EngineKeyEnvironmentVariablesDocker, e)
	return b
}

// WithWorkingDirectory is a builder method that sets the Docker engine's working directory.
// It returns the DockerEngineBuilder for further chaining of builder methods.
func (b *DockerEngineBuilder) WithWorkingDirectory(e string) *DockerEngineBuilder {
	b.eb.WithParam(EngineKeyWorkingDirectoryDocker, e)
	return b
}

// WithParameters is a builder method that sets the Docker engine's parameters.
// It returns the DockerEngineBuilder for further chaining of builder methods.
func (b *DockerEngineBuilder) WithParameters(e ...string) *DockerEngineBuilder {
	b.eb.WithParam(EngineKeyParametersDocker, e)
	return b
}

// WithMounts is a builder method that sets the Docker engine's bind mounts,
// keyed by host path. It returns the DockerEngineBuilder for further chaining
// of builder methods.
func (b *DockerEngineBuilder) WithMounts(e map[string]string) *DockerEngineBuilder {
	b.eb.WithParam(EngineKeyMountsDocker, e)
	return b
}

// WithExtraHosts is a builder method that sets the Docker engine's extra host
// mappings. It returns the DockerEngineBuilder for further chaining of builder
// methods.
func (b *DockerEngineBuilder) WithExtraHosts(e ...string) *DockerEngineBuilder {
	b.eb.WithParam(EngineKeyExtraHostsDocker, e)
	return b
}

// WithUser is a builder method that sets the uid:gid the container runs as.
// It returns the DockerEngineBuilder for further chaining of builder methods.
func (b *DockerEngineBuilder) WithUser(e string) *DockerEngineBuilder {
	b.eb.WithParam(EngineKeyUserDocker, e)
	return b
}

// WithName is a builder method that sets the container name.
// It returns the DockerEngineBuilder for further chaining of builder methods.
func (b *DockerEngineBuilder) WithName(e string) *DockerEngineBuilder {
	b.eb.WithParam(EngineKeyNameDocker, e)
	return b
}

// Build method constructs the final SpecConfig object.
func (b *DockerEngineBuilder) Build() *models.SpecConfig {
	return b.eb
}
