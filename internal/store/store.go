// Package store persists scanned frames in a bbolt database so an
// interrupted decode can resume without rescanning.
package store

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

var rootBucket = []byte("sessions")

// FrameStore keeps accepted frames grouped by session id.
type FrameStore struct {
	db *bbolt.DB
}

// Open opens (or creates) the database at path.
func Open(path string) (*FrameStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open frame store %s", path)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rootBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create bucket")
	}
	return &FrameStore{db: db}, nil
}

func (s *FrameStore) Close() error { return s.db.Close() }

func indexKey(i uint32) []byte {
	var k [4]byte
	binary.BigEndian.PutUint32(k[:], i)
	return k[:]
}

// Record stores frame under (sessionID, index), replacing any previous copy.
func (s *FrameStore) Record(sessionID string, index uint32, frame string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket(rootBucket).CreateBucketIfNotExists([]byte(sessionID))
		if err != nil {
			return errors.Wrapf(err, "session bucket %s", sessionID)
		}
		return b.Put(indexKey(index), []byte(frame))
	})
}

// Forget removes every frame of sessionID. Unknown sessions are ignored.
func (s *FrameStore) Forget(sessionID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		err := tx.Bucket(rootBucket).DeleteBucket([]byte(sessionID))
		if errors.Is(err, bbolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}

// Sessions lists the stored session ids with their frame counts.
func (s *FrameStore) Sessions() (map[string]int, error) {
	out := make(map[string]int)
	err := s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(rootBucket)
		return root.ForEach(func(k, v []byte) error {
			if v != nil {
				return nil
			}
			out[string(k)] = root.Bucket(k).Stats().KeyN
			return nil
		})
	})
	return out, err
}

// Replay calls fn for every stored frame, session by session in index order.
// Frames are copied out of the transaction first, so fn may write to the
// store (the receiver records and forgets while replaying).
func (s *FrameStore) Replay(fn func(frame string) error) error {
	var frames []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(rootBucket)
		return root.ForEach(func(k, v []byte) error {
			if v != nil {
				return nil
			}
			return root.Bucket(k).ForEach(func(_, f []byte) error {
				frames = append(frames, string(f))
				return nil
			})
		})
	})
	if err != nil {
		return errors.Wrap(err, "read frames")
	}
	for _, f := range frames {
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}
