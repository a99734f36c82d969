package store

import (
	"context"
	"fmt"
	"time"
)

// Record tracks this agent's handling of one marketplace instance, from the
// moment a proposal is submitted until the instance is solved. Records make
// the polling loops idempotent within (and, with the boltdb store, across)
// process lifetimes; the marketplace stays the authoritative source of
// instance state.
type Record struct {
	InstanceID    string
	State         RecordState
	Version       int
	CreateTime    time.Time
	UpdateTime    time.Time
	LatestComment string
}

func NewRecord(instanceID string) Record {
	now := time.Now().UTC()
	return Record{
		InstanceID: instanceID,
		State:      RecordStateProposed,
		Version:    1,
		CreateTime: now,
		UpdateTime: now,
	}
}

func (r Record) String() string {
	return fmt.Sprintf("{InstanceID: %s, State: %s}", r.InstanceID, r.State)
}

type RecordHistory struct {
	InstanceID    string
	PreviousState RecordState
	NewState      RecordState
	NewVersion    int
	Comment       string
	Time          time.Time
}

type UpdateRecordStateRequest struct {
	InstanceID string
	NewState   RecordState
	// ExpectedState, when not undefined, makes the update conditional.
	ExpectedState RecordState
	// ExpectedVersion, when not zero, makes the update conditional.
	ExpectedVersion int
	Comment         string
}

// Store is the processed-record store shared by the scanner and solver.
type Store interface {
	// GetRecord returns the record for a given instance id
	GetRecord(ctx context.Context, instanceID string) (Record, error)
	// HasRecord returns whether any record exists for the instance id
	HasRecord(ctx context.Context, instanceID string) (bool, error)
	// GetRecords returns all records in the given state, or every record
	// when state is undefined
	GetRecords(ctx context.Context, state RecordState) ([]Record, error)
	// GetRecordHistory returns the state transitions of a record
	GetRecordHistory(ctx context.Context, instanceID string) ([]RecordHistory, error)
	// CreateRecord stores a new record
	CreateRecord(ctx context.Context, record Record) error
	// UpdateRecordState transitions a record, optionally guarded by an
	// expected state and version
	UpdateRecordState(ctx context.Context, request UpdateRecordStateRequest) error
	// DeleteRecord removes a record and its history
	DeleteRecord(ctx context.Context, instanceID string) error
	// GetRecordCount returns the number of records in the given state
	GetRecordCount(ctx context.Context, state RecordState) (uint64, error)
	// Close provides the opportunity for the underlying store to cleanup
	// any resources as the agent is shutting down
	Close(ctx context.Context) error
}

// ValidateNewRecord rejects records that would start life in a nonsensical
// state.
func ValidateNewRecord(record Record) error {
	if record.InstanceID == "" {
		return fmt.Errorf("CreateRecord failure: instance id is empty")
	}
	if record.State != RecordStateProposed && record.State != RecordStateSolving {
		return NewErrInvalidRecordState(record.InstanceID, record.State, RecordStateProposed)
	}
	if record.Version > 1 {
		return NewErrInvalidRecordVersion(record.InstanceID, record.Version, 1)
	}
	return nil
}
