package models

import "fmt"

// ProposalStatus is the numeric status code the marketplace assigns to a
// proposal. Like InstanceStatus it is owned by the marketplace, remappable
// through configuration, and numeric on the wire.
type ProposalStatus int

const (
	// ProposalStatusPending marks a proposal still waiting on the auction.
	ProposalStatusPending ProposalStatus = 0
	// ProposalStatusAwarded marks a proposal the marketplace selected. The
	// agent is expected to solve the underlying instance.
	ProposalStatusAwarded ProposalStatus = 1
)

func (s ProposalStatus) String() string {
	switch s {
	case ProposalStatusPending:
		return "pending"
	case ProposalStatusAwarded:
		return "awarded"
	default:
		return fmt.Sprintf("status-%d", int(s))
	}
}

// Proposal is a bid this agent placed on an instance. Status transitions are
// driven entirely by the marketplace.
type Proposal struct {
	ID           string         `json:"id,omitempty"`
	InstanceID   string         `json:"instance_id"`
	MaxBid       float64        `json:"max_bid"`
	Status       ProposalStatus `json:"status"`
	CreationDate Timestamp      `json:"creation_date,omitempty"`
}

func (p Proposal) String() string {
	return fmt.Sprintf("{Instance: %s, MaxBid: %v, Status: %s}", p.InstanceID, p.MaxBid, p.Status)
}
