//go:build unit || !integration

package inmemory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/prospector-bot/prospector/pkg/logger"
	"github.com/prospector-bot/prospector/pkg/store"
)

type Suite struct {
	suite.Suite
	ctx    context.Context
	store  *Store
	record store.Record
}

func (s *Suite) SetupTest() {
	logger.ConfigureTestLogging(s.T())
	s.ctx = context.Background()
	s.store = NewStore()
	s.record = store.NewRecord(uuid.NewString())
}

func TestSuite(t *testing.T) {
	suite.Run(t, new(Suite))
}

func (s *Suite) TestCreateRecord() {
	err := s.store.CreateRecord(s.ctx, s.record)
	s.NoError(err)

	readRecord, err := s.store.GetRecord(s.ctx, s.record.InstanceID)
	s.NoError(err)
	s.Equal(s.record, readRecord)

	has, err := s.store.HasRecord(s.ctx, s.record.InstanceID)
	s.NoError(err)
	s.True(has)

	history, err := s.store.GetRecordHistory(s.ctx, s.record.InstanceID)
	s.NoError(err)
	s.Len(history, 1)
	s.Equal(store.RecordStateUndefined, history[0].PreviousState)
	s.Equal(store.RecordStateProposed, history[0].NewState)
	s.Equal(s.record.Version, history[0].NewVersion)
}

func (s *Suite) TestCreateRecordAlreadyExists() {
	err := s.store.CreateRecord(s.ctx, s.record)
	s.NoError(err)

	err = s.store.CreateRecord(s.ctx, s.record)
	s.ErrorAs(err, &store.ErrRecordAlreadyExists{})
}

func (s *Suite) TestCreateRecordInvalid() {
	record := s.record
	record.InstanceID = ""
	s.Error(s.store.CreateRecord(s.ctx, record))

	record = s.record
	record.State = store.RecordStateSolved
	s.ErrorAs(s.store.CreateRecord(s.ctx, record), &store.ErrInvalidRecordState{})

	record = s.record
	record.Version = 2
	s.ErrorAs(s.store.CreateRecord(s.ctx, record), &store.ErrInvalidRecordVersion{})
}

func (s *Suite) TestGetRecordNotFound() {
	_, err := s.store.GetRecord(s.ctx, uuid.NewString())
	s.ErrorAs(err, &store.ErrRecordNotFound{})
}

func (s *Suite) TestUpdateRecordState() {
	err := s.store.CreateRecord(s.ctx, s.record)
	s.NoError(err)

	err = s.store.UpdateRecordState(s.ctx, store.UpdateRecordStateRequest{
		InstanceID: s.record.InstanceID,
		NewState:   store.RecordStateSolving,
		Comment:    "solve attempt started",
	})
	s.NoError(err)

	readRecord, err := s.store.GetRecord(s.ctx, s.record.InstanceID)
	s.NoError(err)
	s.Equal(store.RecordStateSolving, readRecord.State)
	s.Equal(s.record.Version+1, readRecord.Version)
	s.Equal("solve attempt started", readRecord.LatestComment)

	history, err := s.store.GetRecordHistory(s.ctx, s.record.InstanceID)
	s.NoError(err)
	s.Len(history, 2)
	s.Equal(store.RecordStateProposed, history[1].PreviousState)
	s.Equal(store.RecordStateSolving, history[1].NewState)
	s.Equal(readRecord.Version, history[1].NewVersion)
	s.Equal("solve attempt started", history[1].Comment)
}

func (s *Suite) TestUpdateRecordStateConditions() {
	err := s.store.CreateRecord(s.ctx, s.record)
	s.NoError(err)

	// matching expected state and version
	err = s.store.UpdateRecordState(s.ctx, store.UpdateRecordStateRequest{
		InstanceID:      s.record.InstanceID,
		ExpectedState:   s.record.State,
		ExpectedVersion: s.record.Version,
		NewState:        store.RecordStateSolving,
	})
	s.NoError(err)

	// wrong expected state
	err = s.store.UpdateRecordState(s.ctx, store.UpdateRecordStateRequest{
		InstanceID:    s.record.InstanceID,
		ExpectedState: store.RecordStateProposed,
		NewState:      store.RecordStateFailed,
	})
	s.ErrorAs(err, &store.ErrInvalidRecordState{})

	// wrong expected version
	err = s.store.UpdateRecordState(s.ctx, store.UpdateRecordStateRequest{
		InstanceID:      s.record.InstanceID,
		ExpectedVersion: s.record.Version,
		NewState:        store.RecordStateFailed,
	})
	s.ErrorAs(err, &store.ErrInvalidRecordVersion{})
}

func (s *Suite) TestUpdateRecordStateTerminal() {
	err := s.store.CreateRecord(s.ctx, s.record)
	s.NoError(err)

	err = s.store.UpdateRecordState(s.ctx, store.UpdateRecordStateRequest{
		InstanceID: s.record.InstanceID,
		NewState:   store.RecordStateSolved,
	})
	s.NoError(err)

	err = s.store.UpdateRecordState(s.ctx, store.UpdateRecordStateRequest{
		InstanceID: s.record.InstanceID,
		NewState:   store.RecordStateSolving,
	})
	s.ErrorAs(err, &store.ErrRecordAlreadyTerminal{})
}

func (s *Suite) TestFailedRecordsCanBeRetried() {
	err := s.store.CreateRecord(s.ctx, s.record)
	s.NoError(err)

	err = s.store.UpdateRecordState(s.ctx, store.UpdateRecordStateRequest{
		InstanceID: s.record.InstanceID,
		NewState:   store.RecordStateFailed,
		Comment:    "assistant exited non-zero",
	})
	s.NoError(err)

	// failed is not terminal, a later pass moves it back to solving
	err = s.store.UpdateRecordState(s.ctx, store.UpdateRecordStateRequest{
		InstanceID: s.record.InstanceID,
		NewState:   store.RecordStateSolving,
	})
	s.NoError(err)
}

func (s *Suite) TestGetRecords() {
	first := store.NewRecord(uuid.NewString())
	second := store.NewRecord(uuid.NewString())
	s.NoError(s.store.CreateRecord(s.ctx, first))
	s.NoError(s.store.CreateRecord(s.ctx, second))

	s.NoError(s.store.UpdateRecordState(s.ctx, store.UpdateRecordStateRequest{
		InstanceID: second.InstanceID,
		NewState:   store.RecordStateSolved,
	}))

	proposed, err := s.store.GetRecords(s.ctx, store.RecordStateProposed)
	s.NoError(err)
	s.Len(proposed, 1)
	s.Equal(first.InstanceID, proposed[0].InstanceID)

	all, err := s.store.GetRecords(s.ctx, store.RecordStateUndefined)
	s.NoError(err)
	s.Len(all, 2)

	count, err := s.store.GetRecordCount(s.ctx, store.RecordStateSolved)
	s.NoError(err)
	s.Equal(uint64(1), count)
}

func (s *Suite) TestDeleteRecord() {
	err := s.store.CreateRecord(s.ctx, s.record)
	s.NoError(err)

	err = s.store.DeleteRecord(s.ctx, s.record.InstanceID)
	s.NoError(err)

	has, err := s.store.HasRecord(s.ctx, s.record.InstanceID)
	s.NoError(err)
	s.False(has)

	_, err = s.store.GetRecordHistory(s.ctx, s.record.InstanceID)
	s.ErrorAs(err, &store.ErrRecordHistoryNotFound{})

	err = s.store.DeleteRecord(s.ctx, s.record.InstanceID)
	s.ErrorAs(err, &store.ErrRecordNotFound{})
}
