package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"schedbot/internal/schedule"
	"schedbot/pkg/logx"
)

const (
	subscribersFile = "subscribers.txt"
	stateFile       = "schedule_state.txt"
)

// fileStore keeps state in plain text files inside a data directory.
//
// Files:
//   - subscribers.txt     one id per line; appended on add, rewritten on remove
//   - schedule_state.txt  bare hex fingerprint; replaced via temp file + rename
//
// Writes are serialized by mu. Readers tolerate CRLF, blank lines and
// duplicate ids left behind by hand edits.
type fileStore struct {
	log logx.Logger

	mu     sync.Mutex
	closed bool

	subsPath  string
	statePath string
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &fileStore{
		log:       log.With(logx.String("driver", DriverFile)),
		subsPath:  filepath.Join(dir, subscribersFile),
		statePath: filepath.Join(dir, stateFile),
	}
	s.log.Debug("file store opened", logx.String("dir", dir))
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fileStore) ListSubscribers(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	ids, _, err := s.readSubscribersLocked()
	return ids, err
}

func (s *fileStore) HasSubscriber(ctx context.Context, id string) (bool, error) {
	ids, err := s.ListSubscribers(ctx)
	if err != nil {
		return false, err
	}
	for _, v := range ids {
		if v == id {
			return true, nil
		}
	}
	return false, nil
}

func (s *fileStore) AddSubscriber(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrInvalidID
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	ids, raw, err := s.readSubscribersLocked()
	if err != nil {
		return err
	}
	for _, v := range ids {
		if v == id {
			return nil
		}
	}

	line := id + "\n"
	if len(raw) > 0 && raw[len(raw)-1] != '\n' {
		line = "\n" + line
	}
	f, err := os.OpenFile(s.subsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open subscribers: %w", err)
	}
	if _, err := f.WriteString(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("append subscriber: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync subscribers: %w", err)
	}
	return f.Close()
}

func (s *fileStore) RemoveSubscriber(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	ids, _, err := s.readSubscribersLocked()
	if err != nil {
		return err
	}
	kept := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			kept = append(kept, v)
		}
	}
	if len(kept) == len(ids) {
		return nil
	}

	var b bytes.Buffer
	for _, v := range kept {
		b.WriteString(v)
		b.WriteByte('\n')
	}
	if err := writeFileAtomic(s.subsPath, b.Bytes()); err != nil {
		return fmt.Errorf("rewrite subscribers: %w", err)
	}
	return nil
}

// readSubscribersLocked returns the unique ids in file order plus the raw
// file content. A missing file is an empty set.
func (s *fileStore) readSubscribersLocked() ([]string, []byte, error) {
	raw, err := os.ReadFile(s.subsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read subscribers: %w", err)
	}
	lines := strings.Split(string(raw), "\n")
	ids := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, ln := range lines {
		ln = strings.TrimSpace(ln)
		if ln == "" {
			continue
		}
		if _, ok := seen[ln]; ok {
			continue
		}
		seen[ln] = struct{}{}
		ids = append(ids, ln)
	}
	return ids, raw, nil
}

func (s *fileStore) LoadFingerprint(ctx context.Context) (schedule.Fingerprint, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", false, ErrClosed
	}
	raw, err := os.ReadFile(s.statePath)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read state: %w", err)
	}
	fp := schedule.Fingerprint(strings.TrimSpace(string(raw)))
	if fp.IsZero() {
		return "", false, nil
	}
	return fp, true, nil
}

func (s *fileStore) SaveFingerprint(ctx context.Context, fp schedule.Fingerprint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := writeFileAtomic(s.statePath, []byte(fp.String())); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// writeFileAtomic replaces path so that readers see either the old or the
// new content, never a prefix.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
