package store

import "fmt"

// ErrRecordNotFound is returned when no record exists for the instance
type ErrRecordNotFound struct {
	InstanceID string
}

func NewErrRecordNotFound(instanceID string) ErrRecordNotFound {
	return ErrRecordNotFound{InstanceID: instanceID}
}

func (e ErrRecordNotFound) Error() string {
	return "record not found for instance: " + e.InstanceID
}

// ErrRecordAlreadyExists is returned when a record already exists
type ErrRecordAlreadyExists struct {
	InstanceID string
}

func NewErrRecordAlreadyExists(instanceID string) ErrRecordAlreadyExists {
	return ErrRecordAlreadyExists{InstanceID: instanceID}
}

func (e ErrRecordAlreadyExists) Error() string {
	return "record already exists for instance: " + e.InstanceID
}

// ErrRecordHistoryNotFound is returned when no history exists for the instance
type ErrRecordHistoryNotFound struct {
	InstanceID string
}

func NewErrRecordHistoryNotFound(instanceID string) ErrRecordHistoryNotFound {
	return ErrRecordHistoryNotFound{InstanceID: instanceID}
}

func (e ErrRecordHistoryNotFound) Error() string {
	return "no history found for instance: " + e.InstanceID
}

// ErrInvalidRecordState is returned when a record is in a different state
// than the update expected.
type ErrInvalidRecordState struct {
	InstanceID string
	Actual     RecordState
	Expected   RecordState
}

func NewErrInvalidRecordState(instanceID string, actual, expected RecordState) ErrInvalidRecordState {
	return ErrInvalidRecordState{InstanceID: instanceID, Actual: actual, Expected: expected}
}

func (e ErrInvalidRecordState) Error() string {
	return "record for instance " + e.InstanceID + " is in state " + e.Actual.String() + " but expected " + e.Expected.String()
}

// ErrInvalidRecordVersion is returned when a record has a different version
// than the update expected.
type ErrInvalidRecordVersion struct {
	InstanceID string
	Actual     int
	Expected   int
}

func NewErrInvalidRecordVersion(instanceID string, actual, expected int) ErrInvalidRecordVersion {
	return ErrInvalidRecordVersion{InstanceID: instanceID, Actual: actual, Expected: expected}
}

func (e ErrInvalidRecordVersion) Error() string {
	return fmt.Sprintf("record for instance %s has version %d but expected %d", e.InstanceID, e.Actual, e.Expected)
}

// ErrRecordAlreadyTerminal is returned when an update would move a record out
// of a terminal state.
type ErrRecordAlreadyTerminal struct {
	InstanceID string
	Actual     RecordState
	NewState   RecordState
}

func NewErrRecordAlreadyTerminal(instanceID string, actual, newState RecordState) ErrRecordAlreadyTerminal {
	return ErrRecordAlreadyTerminal{InstanceID: instanceID, Actual: actual, NewState: newState}
}

func (e ErrRecordAlreadyTerminal) Error() string {
	return fmt.Sprintf("record for instance %s is in terminal state %s and cannot transition to %s",
		e.InstanceID, e.Actual, e.NewState)
}
