package repositories

import (
	"bytes"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"secret-santa/errors"
)

const (
	roomPrefix   = "room:"
	activePrefix = "active:"
)

// BadgerSnapshotRepository keeps one key per room ("room:{room_id}", CBOR record)
// and one key per focused user ("active:{user_id}" -> room id).
type BadgerSnapshotRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewBadgerSnapshotRepository(db *badger.DB, log *slog.Logger) BadgerSnapshotRepository {
	return BadgerSnapshotRepository{db: db, log: log}
}

// Save replaces the stored state with snapshot in a single transaction.
// Keys that no longer exist in the snapshot are deleted and unchanged values are not rewritten.
func (r BadgerSnapshotRepository) Save(snapshot Snapshot) error {
	wanted := make(map[string][]byte, len(snapshot.Rooms)+len(snapshot.ActiveRooms))
	for _, room := range snapshot.Rooms {
		b, err := marshal(room)
		if err != nil {
			return fmt.Errorf("%w: encode room %s: %w", errors.ErrSnapshotFailed, room.ID, err)
		}
		wanted[roomPrefix+room.ID] = b
	}
	for userID, roomID := range snapshot.ActiveRooms {
		wanted[activeKey(userID)] = []byte(roomID)
	}

	err := r.db.Update(func(txn *badger.Txn) error {
		var stale []string
		for _, prefix := range []string{roomPrefix, activePrefix} {
			err := iterate(txn, prefix, func(key string, value []byte) error {
				next, ok := wanted[key]
				switch {
				case !ok:
					stale = append(stale, key)
				case bytes.Equal(next, value):
					delete(wanted, key)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		for _, key := range stale {
			if err := txn.Delete([]byte(key)); err != nil {
				return err
			}
		}
		for key, value := range wanted {
			if err := txn.Set([]byte(key), value); err != nil {
				return err
			}
		}
		r.log.Debug("Snapshot written", "rooms", len(snapshot.Rooms), "updated", len(wanted), "deleted", len(stale))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrSnapshotFailed, err)
	}
	return nil
}

// Load reads every room and active room entry.
func (r BadgerSnapshotRepository) Load() (Snapshot, error) {
	snapshot := Snapshot{ActiveRooms: map[int64]string{}}
	err := r.db.View(func(txn *badger.Txn) error {
		err := iterate(txn, roomPrefix, func(key string, value []byte) error {
			var record RoomRecord
			if err := unmarshal(value, &record); err != nil {
				return fmt.Errorf("%w: %s: %w", errors.ErrSnapshotCorrupt, key, err)
			}
			snapshot.Rooms = append(snapshot.Rooms, record)
			return nil
		})
		if err != nil {
			return err
		}
		return iterate(txn, activePrefix, func(key string, value []byte) error {
			userID, err := strconv.ParseInt(strings.TrimPrefix(key, activePrefix), 10, 64)
			if err != nil {
				return fmt.Errorf("%w: %s", errors.ErrSnapshotCorrupt, key)
			}
			snapshot.ActiveRooms[userID] = string(value)
			return nil
		})
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snapshot, nil
}

// iterate calls fn with a copy of every key and value under prefix.
func iterate(txn *badger.Txn, prefix string, fn func(key string, value []byte) error) error {
	options := badger.DefaultIteratorOptions
	options.Prefix = []byte(prefix)
	it := txn.NewIterator(options)
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(string(item.KeyCopy(nil)), value); err != nil {
			return err
		}
	}
	return nil
}

func activeKey(userID int64) string {
	return fmt.Sprintf("%s%d", activePrefix, userID)
}
