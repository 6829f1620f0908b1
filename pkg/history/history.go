package history

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/shipway/shipway/pkg/types"
)

var (
	// Bucket names
	bucketRecords = []byte("deployment_records")
)

// Log is the append-only deployment history consulted for the active ref
// and for rollback resolution.
type Log interface {
	Append(record *types.DeploymentRecord) error
	Finalize(target, id string, outcome types.Outcome, phase types.Phase, reason string) error
	List(target string) ([]*types.DeploymentRecord, error)
	ActiveRef(target string) (types.ArtifactRef, error)
	RollbackTarget(target string) (types.ArtifactRef, error)
	Close() error
}

// BoltLog implements Log using BoltDB. Records are keyed
// target|startedAtNanos|id so a prefix cursor walks one target's history in
// chronological order. Records are only ever inserted and finalized, never
// deleted; retention applies to artifacts, not audit records.
type BoltLog struct {
	db *bolt.DB
}

// Open opens (creating if needed) the history database in dataDir.
func Open(dataDir string) (*BoltLog, error) {
	dbPath := filepath.Join(dataDir, "shipway.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRecords)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltLog{db: db}, nil
}

// Close closes the database.
func (l *BoltLog) Close() error {
	return l.db.Close()
}

func recordKey(record *types.DeploymentRecord) []byte {
	return []byte(fmt.Sprintf("%s|%020d|%s", record.Target, record.StartedAt.UnixNano(), record.ID))
}

func targetPrefix(target string) []byte {
	return []byte(target + "|")
}

// Append inserts a new in-progress record.
func (l *BoltLog) Append(record *types.DeploymentRecord) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		key := recordKey(record)
		if b.Get(key) != nil {
			return fmt.Errorf("record %s already exists", record.ID)
		}
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

// Finalize sets the terminal outcome of a record exactly once.
func (l *BoltLog) Finalize(target, id string, outcome types.Outcome, phase types.Phase, reason string) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		c := b.Cursor()
		prefix := targetPrefix(target)

		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var record types.DeploymentRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			if record.ID != id {
				continue
			}
			if record.Finalized() {
				return fmt.Errorf("record %s is already finalized", id)
			}
			record.Outcome = outcome
			record.PhaseReached = phase
			record.Reason = reason
			record.FinishedAt = time.Now()
			data, err := json.Marshal(&record)
			if err != nil {
				return err
			}
			return b.Put(k, data)
		}
		return fmt.Errorf("record not found: %s", id)
	})
}

// List returns a target's records, oldest first.
func (l *BoltLog) List(target string) ([]*types.DeploymentRecord, error) {
	var records []*types.DeploymentRecord
	err := l.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRecords).Cursor()
		prefix := targetPrefix(target)

		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var record types.DeploymentRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			records = append(records, &record)
		}
		return nil
	})
	return records, err
}

// ActiveRef returns the toRef of the newest Succeeded record: the currently
// active version. A zero ref means nothing was ever deployed.
func (l *BoltLog) ActiveRef(target string) (types.ArtifactRef, error) {
	records, err := l.List(target)
	if err != nil {
		return types.ArtifactRef{}, err
	}
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Outcome == types.OutcomeSucceeded {
			return records[i].ToRef, nil
		}
	}
	return types.ArtifactRef{}, nil
}

// RollbackTarget resolves what a bare rollback reverts to: the newest
// record prior to the last attempted deployment (Succeeded or RolledBack)
// whose toRef differs from that attempt's toRef.
func (l *BoltLog) RollbackTarget(target string) (types.ArtifactRef, error) {
	records, err := l.List(target)
	if err != nil {
		return types.ArtifactRef{}, err
	}

	// Walk backwards to the most recent terminal deploy attempt, then keep
	// walking for the newest earlier attempt of a different ref.
	cur := types.ArtifactRef{}
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		if r.Outcome != types.OutcomeSucceeded && r.Outcome != types.OutcomeRolledBack {
			continue
		}
		if cur.IsZero() {
			cur = r.ToRef
			continue
		}
		if r.ToRef != cur {
			return r.ToRef, nil
		}
	}
	return types.ArtifactRef{}, fmt.Errorf("no previous deployment to roll back to for target %s", target)
}
