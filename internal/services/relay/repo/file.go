package repo

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	perr "otprelay/internal/platform/errors"
	"otprelay/internal/platform/logger"
)

// DefaultPath is where the file ledger lives when LEDGER_PATH is unset
const DefaultPath = "otp_state.json"

// fileState is the on-disk shape of one source's ledger
type fileState struct {
	Source    string    `json:"source,omitempty"`
	RecentIDs []string  `json:"recent_ids"`
	UpdatedAt time.Time `json:"updated_at"`
}

// File keeps ledgers in a JSON document
// A single source is stored flat; several sources sharing one file become a map keyed by source
type File struct {
	path string
	log  *logger.Logger
	now  func() time.Time

	mu sync.Mutex
}

// NewFile returns a file ledger store at path (DefaultPath when empty)
func NewFile(path string, log *logger.Logger) *File {
	if path == "" {
		path = DefaultPath
	}
	if log == nil {
		log = logger.Named("ledger")
	}
	return &File{path: path, log: log, now: time.Now}
}

// Path returns the backing file
func (f *File) Path() string { return f.path }

// Load returns the ids stored for source
// A missing file is an empty ledger; so is an unreadable document, with a warning
func (f *File) Load(_ context.Context, source string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, exists, err := f.read()
	if err != nil || !exists {
		return nil, err
	}
	ids, ok := decodeState(doc, source)
	if !ok {
		f.log.Warn().Str("path", f.path).Msg("ledger file is not a recognised state document, starting empty")
		return nil, nil
	}
	return ids, nil
}

// Save replaces the stored ids for source, keeping other sources in the same file
func (f *File) Save(_ context.Context, source string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if ids == nil {
		ids = []string{}
	}
	entry := fileState{Source: source, RecentIDs: ids, UpdatedAt: f.now().UTC()}

	var out any = entry
	if doc, _, err := f.read(); err == nil && doc != nil {
		if others := siblings(doc, source); len(others) > 0 {
			raw, err := json.Marshal(entry)
			if err != nil {
				return perr.Wrap(err, perr.ErrorCodeJSON, "encode ledger entry")
			}
			others[source] = raw
			out = others
		}
	}

	body, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeJSON, "encode ledger")
	}
	if err := writeAtomic(f.path, append(body, '\n')); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeDB, "write ledger %s", f.path)
	}
	return nil
}

// read returns the top-level object and whether the file exists
// doc is nil for a file that is not a JSON object
func (f *File) read() (doc map[string]json.RawMessage, exists bool, err error) {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, true, perr.Wrapf(err, perr.ErrorCodeDB, "read ledger %s", f.path)
	}
	if json.Unmarshal(b, &doc) != nil {
		return nil, true, nil
	}
	return doc, true, nil
}

// decodeState understands the current flat layout, the multi-source map and
// the two legacy layouts: {"sent": [...]} and {"last_uid": "..."}
func decodeState(doc map[string]json.RawMessage, source string) ([]string, bool) {
	if doc == nil {
		return nil, false
	}
	if _, ok := doc["recent_ids"]; ok {
		var st fileState
		raw, _ := json.Marshal(doc)
		if json.Unmarshal(raw, &st) != nil {
			return nil, false
		}
		if st.Source != "" && st.Source != source {
			return nil, true
		}
		return st.RecentIDs, true
	}
	if raw, ok := doc["sent"]; ok {
		var ids []string
		if json.Unmarshal(raw, &ids) != nil {
			return nil, false
		}
		return ids, true
	}
	if raw, ok := doc["last_uid"]; ok {
		var uid *string
		if json.Unmarshal(raw, &uid) != nil {
			return nil, false
		}
		if uid == nil || *uid == "" {
			return nil, true
		}
		return []string{*uid}, true
	}
	if raw, ok := doc[source]; ok {
		var st fileState
		if json.Unmarshal(raw, &st) != nil {
			return nil, false
		}
		return st.RecentIDs, true
	}
	return nil, true
}

// siblings returns the entries of other sources that must survive a save of source
func siblings(doc map[string]json.RawMessage, source string) map[string]json.RawMessage {
	if _, ok := doc["recent_ids"]; ok {
		raw, _ := json.Marshal(doc)
		var st fileState
		if json.Unmarshal(raw, &st) != nil || st.Source == "" || st.Source == source {
			return nil
		}
		return map[string]json.RawMessage{st.Source: raw}
	}
	if _, legacy := doc["sent"]; legacy {
		return nil
	}
	if _, legacy := doc["last_uid"]; legacy {
		return nil
	}

	out := map[string]json.RawMessage{}
	for k, raw := range doc {
		if k == source {
			continue
		}
		var st fileState
		if json.Unmarshal(raw, &st) != nil || st.RecentIDs == nil {
			continue
		}
		out[k] = raw
	}
	return out
}

// writeAtomic writes data next to path, syncs it, renames it over path and syncs the directory
func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
