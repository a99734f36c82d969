package inmemory

import (
	"context"
	"time"

	sync "github.com/bacalhau-project/golang-mutex-tracer"

	"github.com/prospector-bot/prospector/pkg/store"
)

type Store struct {
	recordMap map[string]store.Record
	history   map[string][]store.RecordHistory
	mu        sync.RWMutex
}

func NewStore() *Store {
	res := &Store{
		recordMap: make(map[string]store.Record),
		history:   make(map[string][]store.RecordHistory),
	}
	res.mu.EnableTracerWithOpts(sync.Opts{
		Threshold: 10 * time.Millisecond,
		Id:        "InMemoryRecordStore.mu",
	})
	return res
}

func (s *Store) GetRecord(ctx context.Context, instanceID string) (store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.recordMap[instanceID]
	if !ok {
		return store.Record{}, store.NewErrRecordNotFound(instanceID)
	}
	return record, nil
}

func (s *Store) HasRecord(ctx context.Context, instanceID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.recordMap[instanceID]
	return ok, nil
}

func (s *Store) GetRecords(ctx context.Context, state store.RecordState) ([]store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]store.Record, 0, len(s.recordMap))
	for _, record := range s.recordMap {
		if state == store.RecordStateUndefined || record.State == state {
			records = append(records, record)
		}
	}
	return records, nil
}

func (s *Store) GetRecordHistory(ctx context.Context, instanceID string) ([]store.RecordHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history, ok := s.history[instanceID]
	if !ok {
		return nil, store.NewErrRecordHistoryNotFound(instanceID)
	}
	return history, nil
}

func (s *Store) CreateRecord(ctx context.Context, record store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := store.ValidateNewRecord(record); err != nil {
		return err
	}
	if _, ok := s.recordMap[record.InstanceID]; ok {
		return store.NewErrRecordAlreadyExists(record.InstanceID)
	}
	s.recordMap[record.InstanceID] = record
	s.appendHistory(record, store.RecordStateUndefined, record.LatestComment)
	return nil
}

func (s *Store) UpdateRecordState(ctx context.Context, request store.UpdateRecordStateRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.recordMap[request.InstanceID]
	if !ok {
		return store.NewErrRecordNotFound(request.InstanceID)
	}
	if request.ExpectedState != store.RecordStateUndefined && record.State != request.ExpectedState {
		return store.NewErrInvalidRecordState(request.InstanceID, record.State, request.ExpectedState)
	}
	if request.ExpectedVersion != 0 && record.Version != request.ExpectedVersion {
		return store.NewErrInvalidRecordVersion(request.InstanceID, record.Version, request.ExpectedVersion)
	}
	if record.State.IsTerminal() {
		return store.NewErrRecordAlreadyTerminal(request.InstanceID, record.State, request.NewState)
	}

	previousState := record.State
	record.State = request.NewState
	record.Version++
	record.UpdateTime = time.Now().UTC()
	if request.Comment != "" {
		record.LatestComment = request.Comment
	}
	s.recordMap[record.InstanceID] = record
	s.appendHistory(record, previousState, request.Comment)
	return nil
}

func (s *Store) DeleteRecord(ctx context.Context, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.recordMap[instanceID]
	if !ok {
		return store.NewErrRecordNotFound(instanceID)
	}
	delete(s.recordMap, instanceID)
	delete(s.history, instanceID)
	return nil
}

func (s *Store) GetRecordCount(ctx context.Context, state store.RecordState) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count uint64
	for _, record := range s.recordMap {
		if state == store.RecordStateUndefined || record.State == state {
			count++
		}
	}
	return count, nil
}

func (s *Store) Close(ctx context.Context) error {
	return nil
}

func (s *Store) appendHistory(updatedRecord store.Record, previousState store.RecordState, comment string) {
	historyEntry := store.RecordHistory{
		InstanceID:    updatedRecord.InstanceID,
		PreviousState: previousState,
		NewState:      updatedRecord.State,
		NewVersion:    updatedRecord.Version,
		Comment:       comment,
		Time:          updatedRecord.UpdateTime,
	}
	s.history[updatedRecord.InstanceID] = append(s.history[updatedRecord.InstanceID], historyEntry)
}

// compile-time check that we implement the interface
var _ store.Store = (*Store)(nil)
