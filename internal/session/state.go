package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

const (
	stateDirName  = ".docket"
	stateFileName = "current_session"
)

// statePath returns the path of ~/.docket/current_session, creating the
// directory when missing.
func statePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	dir := filepath.Join(home, stateDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating state directory: %w", err)
	}
	return filepath.Join(dir, stateFileName), nil
}

// LoadCurrentSessionID reads the session the CLI last talked in, so
// consecutive invocations continue the same conversation. The second
// return is false when no session is recorded.
func LoadCurrentSessionID() (uuid.UUID, bool, error) {
	path, err := statePath()
	if err != nil {
		return uuid.Nil, false, err
	}

	fl := flock.New(path + ".lock")
	if err := fl.RLock(); err != nil {
		return uuid.Nil, false, fmt.Errorf("locking session state: %w", err)
	}
	defer func() { _ = fl.Unlock() }()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("reading session state: %w", err)
	}

	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return uuid.Nil, false, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("parsing session state: %w", err)
	}
	return id, true, nil
}

// SaveCurrentSessionID records id as the conversation to continue.
// The temp file + rename keeps the state readable at all times; the lock
// file serializes concurrent invocations.
func SaveCurrentSessionID(id uuid.UUID) error {
	path, err := statePath()
	if err != nil {
		return err
	}

	fl := flock.New(path + ".lock")
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("locking session state: %w", err)
	}
	defer func() { _ = fl.Unlock() }()

	tmp, err := os.CreateTemp(filepath.Dir(path), stateFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(id.String() + "\n"); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing session state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing temp state file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replacing session state: %w", err)
	}
	return nil
}

// ClearCurrentSessionID forgets the recorded session. Clearing when none
// is recorded is not an error.
func ClearCurrentSessionID() error {
	path, err := statePath()
	if err != nil {
		return err
	}

	fl := flock.New(path + ".lock")
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("locking session state: %w", err)
	}
	defer func() { _ = fl.Unlock() }()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing session state: %w", err)
	}
	return nil
}
