package boltdb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"

	"github.com/prospector-bot/prospector/pkg/store"
)

const (
	BucketRecords       = "records"
	BucketRecordHistory = "record_history"

	DefaultDatabasePermissions = 0600
)

// Store is a record store backed by a boltdb database on disk, so that
// records survive agent restarts.
//
// The schema (<key> -> {json-value}) looks like the following, where <>
// represents keys, {} represents values, and undecorated values are
// boltdb buckets:
//
// * Records are stored in a bucket called `records` where each key is an
// instance ID and the value is the JSON representation of the record.
//
// records
//
//	|--> <instance-id> -> {store.Record}
//
// * Record history is stored in a bucket called `record_history`. Each
// record that has history is stored in a sub-bucket, whose name is the
// instance ID. Within the instance ID bucket, each key is a sequential
// number for the history item, ensuring they are returned in write order.
//
// record_history
//
//	|--> <instance-id>
//	          |--> <seqnum> -> {store.RecordHistory}
type Store struct {
	database *bolt.DB
}

// NewStore creates a new store backed by a boltdb database at the file
// location provided by the caller. During initialisation the primary
// buckets are created, but they are not stored in the struct as they are
// tied to the transaction where they are referenced.
func NewStore(ctx context.Context, dbPath string) (*Store, error) {
	log.Ctx(ctx).Debug().Msgf("creating new bbolt database at %s", dbPath)

	database, err := bolt.Open(dbPath, DefaultDatabasePermissions, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}

	err = database.Update(func(tx *bolt.Tx) error {
		for _, b := range []string{BucketRecords, BucketRecordHistory} {
			_, err = tx.CreateBucketIfNotExists([]byte(b))
			if err != nil {
				return fmt.Errorf("error creating bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Store{database: database}, nil
}

func (s *Store) GetRecord(ctx context.Context, instanceID string) (store.Record, error) {
	var record store.Record
	err := s.database.View(func(tx *bolt.Tx) error {
		var err error
		record, err = s.getRecord(tx, instanceID)
		return err
	})
	return record, err
}

func (s *Store) getRecord(tx *bolt.Tx, instanceID string) (store.Record, error) {
	var record store.Record
	data := tx.Bucket([]byte(BucketRecords)).Get([]byte(instanceID))
	if data == nil {
		return record, store.NewErrRecordNotFound(instanceID)
	}
	err := json.Unmarshal(data, &record)
	return record, err
}

func (s *Store) HasRecord(ctx context.Context, instanceID string) (bool, error) {
	var found bool
	err := s.database.View(func(tx *bolt.Tx) error {
		found = tx.Bucket([]byte(BucketRecords)).Get([]byte(instanceID)) != nil
		return nil
	})
	return found, err
}

func (s *Store) GetRecords(ctx context.Context, state store.RecordState) ([]store.Record, error) {
	records := make([]store.Record, 0)
	err := s.database.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(BucketRecords)).ForEach(func(k, v []byte) error {
			var record store.Record
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			if state == store.RecordStateUndefined || record.State == state {
				records = append(records, record)
			}
			return nil
		})
	})
	return records, err
}

func (s *Store) GetRecordHistory(ctx context.Context, instanceID string) ([]store.RecordHistory, error) {
	history := make([]store.RecordHistory, 0)
	err := s.database.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketRecordHistory)).Bucket([]byte(instanceID))
		if bucket == nil {
			return store.NewErrRecordHistoryNotFound(instanceID)
		}
		// keys are zero-padded sequence numbers, so a cursor walk
		// returns entries in write order
		return bucket.ForEach(func(k, v []byte) error {
			var item store.RecordHistory
			if err := json.Unmarshal(v, &item); err != nil {
				return err
			}
			history = append(history, item)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}

func (s *Store) CreateRecord(ctx context.Context, record store.Record) error {
	if err := store.ValidateNewRecord(record); err != nil {
		return err
	}
	return s.database.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketRecords))
		if bucket.Get([]byte(record.InstanceID)) != nil {
			return store.NewErrRecordAlreadyExists(record.InstanceID)
		}
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		if err = bucket.Put([]byte(record.InstanceID), data); err != nil {
			return err
		}
		return s.appendHistory(tx, record, store.RecordStateUndefined, record.LatestComment)
	})
}

func (s *Store) UpdateRecordState(ctx context.Context, request store.UpdateRecordStateRequest) error {
	return s.database.Update(func(tx *bolt.Tx) error {
		record, err := s.getRecord(tx, request.InstanceID)
		if err != nil {
			return err
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

		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		if err = tx.Bucket([]byte(BucketRecords)).Put([]byte(record.InstanceID), data); err != nil {
			return err
		}
		return s.appendHistory(tx, record, previousState, request.Comment)
	})
}

func (s *Store) appendHistory(tx *bolt.Tx, updatedRecord store.Record, previousState store.RecordState, comment string) error {
	bucket, err := tx.Bucket([]byte(BucketRecordHistory)).CreateBucketIfNotExists([]byte(updatedRecord.InstanceID))
	if err != nil {
		return err
	}
	seqNum, err := bucket.NextSequence()
	if err != nil {
		return err
	}
	historyEntry := store.RecordHistory{
		InstanceID:    updatedRecord.InstanceID,
		PreviousState: previousState,
		NewState:      updatedRecord.State,
		NewVersion:    updatedRecord.Version,
		Comment:       comment,
		Time:          updatedRecord.UpdateTime,
	}
	data, err := json.Marshal(historyEntry)
	if err != nil {
		return err
	}
	return bucket.Put([]byte(fmt.Sprintf("%03d", seqNum)), data)
}

func (s *Store) DeleteRecord(ctx context.Context, instanceID string) error {
	return s.database.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketRecords))
		if bucket.Get([]byte(instanceID)) == nil {
			return store.NewErrRecordNotFound(instanceID)
		}
		if err := bucket.Delete([]byte(instanceID)); err != nil {
			return err
		}
		historyBucket := tx.Bucket([]byte(BucketRecordHistory))
		if historyBucket.Bucket([]byte(instanceID)) != nil {
			return historyBucket.DeleteBucket([]byte(instanceID))
		}
		return nil
	})
}

func (s *Store) GetRecordCount(ctx context.Context, state store.RecordState) (uint64, error) {
	var count uint64
	err := s.database.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(BucketRecords)).ForEach(func(k, v []byte) error {
			var record store.Record
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			if state == store.RecordStateUndefined || record.State == state {
				count++
			}
			return nil
		})
	})
	return count, err
}

func (s *Store) Close(ctx context.Context) error {
	log.Ctx(ctx).Debug().Msgf("closing bbolt database")
	return s.database.Close()
}

// compile-time check that we implement the interface
var _ store.Store = (*Store)(nil)
