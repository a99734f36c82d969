package models

import (
	"strings"

	"github.com/rs/zerolog/log"
)

// AgentType selects which coding assistant the solver delegates to.
type AgentType int

const (
	agentUnknown AgentType = iota // must be first
	// AgentTypeAider runs the aider CLI inside a container with the
	// workspace mounted.
	AgentTypeAider
	// AgentTypeOpenHands runs the OpenHands app container, which in turn
	// drives its own runtime container through the host docker socket.
	AgentTypeOpenHands
	// AgentTypeRaaid runs the headless RA.Aid container.
	AgentTypeRaaid
	// AgentTypeProcess runs a locally installed assistant CLI as a plain
	// subprocess instead of a container.
	AgentTypeProcess
	agentDone // must be last
)

var agentTypeNames = map[AgentType]string{
	AgentTypeAider:     "aider",
	AgentTypeOpenHands: "open-hands",
	AgentTypeRaaid:     "raaid",
	AgentTypeProcess:   "process",
}

func IsValidAgentType(t AgentType) bool {
	return t > agentUnknown && t < agentDone
}

// ParseAgentType will either return a valid agent type or `agentUnknown`.
func ParseAgentType(str string) AgentType {
	for typ := agentUnknown + 1; typ < agentDone; typ++ {
		if strings.EqualFold(typ.String(), str) {
			return typ
		}
	}

	log.Warn().Msgf("executor: unknown agent type: '%s'", str)
	return agentUnknown
}

func AgentTypes() []AgentType {
	var res []AgentType
	for typ := agentUnknown + 1; typ < agentDone; typ++ {
		res = append(res, typ)
	}
	return res
}

func AgentTypeNames() []string {
	var names []string
	for _, typ := range AgentTypes() {
		names = append(names, typ.String())
	}
	return names
}

func (t AgentType) String() string {
	value, ok := agentTypeNames[t]
	if !ok {
		return "unknown"
	}
	return value
}

func (t AgentType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *AgentType) UnmarshalText(text []byte) (err error) {
	*t = ParseAgentType(string(text))
	return
}
