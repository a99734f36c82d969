package models

import (
	"errors"
	"strings"

	"golang.org/x/exp/maps"
)

const (
	// EngineDocker runs the assistant inside a container.
	EngineDocker = "docker"
	// EngineProcess runs the assistant as a local subprocess.
	EngineProcess = "process"
)

// SpecConfig represents a configuration for an execution engine. The Params
// schema is owned by the engine named in Type.
type SpecConfig struct {
	// Type of the config
	Type string `json:"Type"`
	// Params is a map of the config params
	Params map[string]interface{} `json:"Params,omitempty"`
}

func NewSpecConfig(t string) *SpecConfig {
	return &SpecConfig{
		Type:   t,
		Params: make(map[string]interface{}),
	}
}

func (s *SpecConfig) WithParam(key string, value interface{}) *SpecConfig {
	if s.Params == nil {
		s.Params = make(map[string]interface{})
	}
	s.Params[key] = value
	return s
}

func (s *SpecConfig) Normalize() {
	if s == nil {
		return
	}
	s.Type = strings.TrimSpace(s.Type)
	// Ensure that an empty and nil map are treated the same
	if len(s.Params) == 0 {
		s.Params = make(map[string]interface{})
	}
}

func (s *SpecConfig) Copy() *SpecConfig {
	if s == nil {
		return nil
	}
	return &SpecConfig{
		Type:   s.Type,
		Params: maps.Clone(s.Params),
	}
}

func (s *SpecConfig) Validate() error {
	if s == nil {
		return errors.New("nil spec config")
	}
	if strings.TrimSpace(s.Type) == "" {
		return errors.New("missing spec type")
	}
	return nil
}

// IsType returns true if the current SpecConfig is of the given type
func (s *SpecConfig) IsType(t string) bool {
	if s == nil {
		return false
	}
	t = strings.TrimSpace(t)
	return strings.EqualFold(s.Type, t)
}

func (s *SpecConfig) IsEmpty() bool {
	return s == nil || (strings.TrimSpace(s.Type) == "" && len(s.Params) == 0)
}
