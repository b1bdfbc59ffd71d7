package records

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const journalBucket = "register_history"

// Journal is an append-only bbolt log of recorded register values. It lets a history
// outlive a crash between reads and the export at stop.
type Journal struct {
	db *bbolt.DB
}

// OpenJournal opens or creates the journal database at path.
func OpenJournal(path string) (*Journal, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open register journal %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(journalBucket))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create register journal bucket: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Put appends one value.
func (j *Journal) Put(address uint64, hex string, at time.Time) error {
	return j.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(journalBucket))
		if b == nil {
			return fmt.Errorf("bucket not found: %s", journalBucket)
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)

		value := make([]byte, 16, 16+len(hex))
		binary.BigEndian.PutUint64(value[:8], address)
		binary.BigEndian.PutUint64(value[8:], uint64(at.UnixNano()))
		value = append(value, hex...)
		return b.Put(key, value)
	})
}

// Replay feeds every journaled value, in write order, into a fresh History.
func (j *Journal) Replay() (*History, error) {
	h := NewHistory()
	err := j.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(journalBucket))
		if b == nil {
			return fmt.Errorf("bucket not found: %s", journalBucket)
		}
		return b.ForEach(func(_, value []byte) error {
			if len(value) < 16 {
				return errors.New("truncated journal record")
			}
			address := binary.BigEndian.Uint64(value[:8])
			at := time.Unix(0, int64(binary.BigEndian.Uint64(value[8:16])))
			_, err := h.Record(address, string(value[16:]), at)
			return err
		})
	})
	if err != nil {
		return nil, fmt.Errorf("replay register journal: %w", err)
	}
	return h, nil
}
