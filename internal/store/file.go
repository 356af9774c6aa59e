package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/mohammad-safakhou/casewatch/models"
)

const lockRetryDelay = 10 * time.Millisecond

// File keeps each collection as <dir>/<name>.json, an indented JSON array, with its revision in
// <dir>/.<name>.rev. Writes go through a temp file and rename so readers never see a partial
// document. Loads take a shared flock on <dir>/.<name>.lock and saves an exclusive one, so
// separate processes sharing the directory serialize on the revision check.
type File struct {
	dir string
}

func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, unavailable("create data dir", err)
	}
	return &File{dir: dir}, nil
}

func (f *File) LoadCollection(ctx context.Context, name string) (Snapshot, error) {
	if err := checkName(name); err != nil {
		return Snapshot{}, err
	}
	unlock, err := f.lock(ctx, name, false)
	if err != nil {
		return Snapshot{}, err
	}
	defer unlock()
	return f.load(name)
}

func (f *File) SaveCollection(ctx context.Context, name string, records []models.Record, expectedRevision int64) (int64, error) {
	if err := checkName(name); err != nil {
		return 0, err
	}
	unlock, err := f.lock(ctx, name, true)
	if err != nil {
		return 0, err
	}
	defer unlock()
	cur, err := f.revision(name)
	if err != nil {
		return 0, err
	}
	if cur != expectedRevision {
		return cur, models.ErrConflict
	}
	if records == nil {
		records = []models.Record{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return 0, fmt.Errorf("encode collection %s: %w", name, err)
	}
	// The revision moves first. A failed data write rolls it back, and a revision ahead of its
	// data only costs the next writer a conflict.
	next := cur + 1
	if err := writeAtomic(f.revPath(name), []byte(strconv.FormatInt(next, 10))); err != nil {
		return 0, unavailable("write revision", err)
	}
	if err := writeAtomic(f.dataPath(name), buf.Bytes()); err != nil {
		_ = writeAtomic(f.revPath(name), []byte(strconv.FormatInt(cur, 10)))
		return 0, unavailable("write collection", err)
	}
	return next, nil
}

func (f *File) lock(ctx context.Context, name string, exclusive bool) (func(), error) {
	fl := flock.New(f.lockPath(name))
	var (
		ok  bool
		err error
	)
	if exclusive {
		ok, err = fl.TryLockContext(ctx, lockRetryDelay)
	} else {
		ok, err = fl.TryRLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, unavailable("lock collection", err)
	}
	if !ok {
		return nil, unavailable("lock collection", fmt.Errorf("lock %s not acquired", name))
	}
	return func() { _ = fl.Unlock() }, nil
}

func (f *File) load(name string) (Snapshot, error) {
	raw, err := os.ReadFile(f.dataPath(name))
	if errors.Is(err, fs.ErrNotExist) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, unavailable("read collection", err)
	}
	var records []models.Record
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &records); err != nil {
			return Snapshot{}, fmt.Errorf("decode collection %s: %w", name, err)
		}
	}
	rev, err := f.revision(name)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Records: records, Revision: rev}, nil
}

// revision is 0 for a collection without a sidecar, including hand-written seed files.
func (f *File) revision(name string) (int64, error) {
	raw, err := os.ReadFile(f.revPath(name))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, unavailable("read revision", err)
	}
	rev, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse revision of %s: %w", name, err)
	}
	return rev, nil
}

func (f *File) dataPath(name string) string { return filepath.Join(f.dir, name+".json") }
func (f *File) revPath(name string) string { return filepath.Join(f.dir, "."+name+".rev") }
func (f *File) lockPath(name string) string { return filepath.Join(f.dir, "."+name+".lock") }

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
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
	return os.Rename(tmp.Name(), path)
}

func checkName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid collection name %q", name)
	}
	return nil
}
