package artifacts

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// WriteJSON marshals v and atomically replaces the named artifact. The
// write goes to a temp file in the same directory followed by a rename, so
// readers never observe a torn file.
func (d *Dir) WriteJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	return d.WriteRaw(name, append(data, '\n'))
}

// WriteRaw atomically replaces the named artifact with data.
func (d *Dir) WriteRaw(name string, data []byte) error {
	dst := d.File(name)
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}

// ReadJSON unmarshals the named artifact into v.
func (d *Dir) ReadJSON(name string, v any) error {
	data, err := os.ReadFile(d.File(name))
	if err != nil {
		if os.IsNotExist(err) {
			return &MissingInputError{DocID: d.DocID, Name: name}
		}
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return nil
}

// ReadRaw returns the named artifact's bytes.
func (d *Dir) ReadRaw(name string) ([]byte, error) {
	data, err := os.ReadFile(d.File(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &MissingInputError{DocID: d.DocID, Name: name}
		}
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

// appendLocks serializes appenders per file path. The pipeline is a single
// process; an in-process lock is the file lock.
var (
	appendLocks   = make(map[string]*sync.Mutex)
	appendLocksMu sync.Mutex
)

func lockFor(path string) *sync.Mutex {
	appendLocksMu.Lock()
	defer appendLocksMu.Unlock()
	if mu, ok := appendLocks[path]; ok {
		return mu
	}
	mu := &sync.Mutex{}
	appendLocks[path] = mu
	return mu
}

// AppendJSONL marshals v to one line and appends it to the named JSONL
// artifact under the file lock.
func (d *Dir) AppendJSONL(name string, v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s line: %w", name, err)
	}
	path := d.File(name)
	mu := lockFor(path)
	mu.Lock()
	defer mu.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append to %s: %w", name, err)
	}
	return nil
}

// ReadJSONL decodes every line of the named JSONL artifact, calling fn with
// each raw line. Blank lines are skipped; a missing file yields zero lines
// and no error.
func (d *Dir) ReadJSONL(name string, fn func(line []byte) error) error {
	f, err := os.Open(d.File(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to scan %s: %w", name, err)
	}
	return nil
}
