package models

import "fmt"

// InstanceStatus is the numeric status code the marketplace assigns to an
// instance. The code space is owned by the marketplace and can be remapped
// through configuration; only the codes the agent reacts to are named here.
// Statuses travel as plain integers on the wire, so the type deliberately
// does not implement encoding.TextMarshaler.
type InstanceStatus int

const (
	// InstanceStatusOpen marks an instance that is accepting proposals.
	InstanceStatusOpen InstanceStatus = 0
	// InstanceStatusResolved marks an instance whose auction has resolved
	// and that is waiting for the winning provider to deliver a solution.
	InstanceStatusResolved InstanceStatus = 3
)

func (s InstanceStatus) String() string {
	switch s {
	case InstanceStatusOpen:
		return "open"
	case InstanceStatusResolved:
		return "resolved"
	default:
		return fmt.Sprintf("status-%d", int(s))
	}
}

// Instance is a marketplace-advertised coding task. Instances are created and
// owned by the marketplace; the agent only reads them and triggers status
// transitions through proposals and solve reports. The target repository is
// referenced inside Background as a plain URL rather than a dedicated field.
type Instance struct {
	ID         string `json:"id"`
	Background string `json:"background"`
	// MaxPrice is the requester's price ceiling for this task. Zero when the
	// marketplace does not advertise one.
	MaxPrice     float64        `json:"max_price,omitempty"`
	Status       InstanceStatus `json:"status"`
	CreationDate Timestamp      `json:"creation_date,omitempty"`
}

// Priced reports whether the instance advertises a price ceiling.
func (i Instance) Priced() bool {
	return i.MaxPrice > 0
}

func (i Instance) String() string {
	return fmt.Sprintf("{ID: %s, Status: %s}", i.ID, i.Status)
}
