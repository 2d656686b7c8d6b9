package repositories

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"secret-santa/errors"
)

// FileSnapshotRepository stores the snapshot as one JSON document.
// Writes go to a temporary file renamed over the previous one, so a crash
// leaves either the old or the new document.
type FileSnapshotRepository struct {
	path string
	log  *slog.Logger
}

func NewFileSnapshotRepository(path string, log *slog.Logger) FileSnapshotRepository {
	return FileSnapshotRepository{path: path, log: log}
}

func (r FileSnapshotRepository) Save(snapshot Snapshot) error {
	b, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrSnapshotFailed, err)
	}
	if err := r.writeAtomic(b); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrSnapshotFailed, err)
	}
	r.log.Debug("Snapshot written", "path", r.path, "rooms", len(snapshot.Rooms))
	return nil
}

func (r FileSnapshotRepository) Load() (Snapshot, error) {
	b, err := os.ReadFile(r.path)
	if stderrors.Is(err, fs.ErrNotExist) {
		r.log.Info("No snapshot found, starting empty", "path", r.path)
		return Snapshot{ActiveRooms: map[int64]string{}}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", errors.ErrPersistence, err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal(b, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", errors.ErrSnapshotCorrupt, err)
	}
	if snapshot.ActiveRooms == nil {
		snapshot.ActiveRooms = map[int64]string{}
	}
	return snapshot, nil
}

func (r FileSnapshotRepository) writeAtomic(b []byte) error {
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), r.path)
}
