package credential

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// persister does atomic read/write of the single credential-list JSON
// file: crash-safe replace, backup on parse failure, and write coalescing
// so a writer in progress is superseded by the freshest pending snapshot
// rather than queuing every mutation.
type persister struct {
	path string

	writeMu  sync.Mutex
	pendingMu sync.Mutex
	pending   []*Credential
	hasPending bool
	writing    bool
}

func newPersister(path string) *persister {
	return &persister{path: path}
}

// load reads the credential list file, tolerating a bare object (promoted
// to a one-element list) in addition to a proper array. On parse failure
// the existing file is copied to a .bak.<unix-ms> sibling and an empty
// pool is returned; the caller is not told this was an error.
func (p *persister) load() ([]*Credential, error) {
	if p.path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		var single record
		if err2 := json.Unmarshal(data, &single); err2 == nil && single.ID != 0 {
			records = []record{single}
		} else {
			p.backupCorrupted(data)
			log.WithError(err).Warnf("credential persistence: failed to parse %s, starting with an empty pool", p.path)
			return nil, nil
		}
	}

	creds := make([]*Credential, 0, len(records))
	for _, r := range records {
		creds = append(creds, fromRecord(r))
	}
	return creds, nil
}

func (p *persister) backupCorrupted(data []byte) {
	backupPath := fmt.Sprintf("%s.bak.%d", p.path, time.Now().UnixMilli())
	if err := os.WriteFile(backupPath, data, 0o600); err != nil {
		log.WithError(err).Warn("credential persistence: failed to write corrupted-file backup")
	}
}

// save schedules the given snapshot to be written. If a write is already in
// progress, the snapshot replaces whatever was previously pending: only the
// newest state is worth persisting, per the persistence-coalescing design
// note. save never blocks on disk I/O.
func (p *persister) save(creds []*Credential) {
	if p.path == "" {
		return
	}
	p.pendingMu.Lock()
	p.pending = creds
	p.hasPending = true
	alreadyWriting := p.writing
	if !alreadyWriting {
		p.writing = true
	}
	p.pendingMu.Unlock()

	if alreadyWriting {
		return
	}
	go p.drain()
}

func (p *persister) drain() {
	for {
		p.pendingMu.Lock()
		if !p.hasPending {
			p.writing = false
			p.pendingMu.Unlock()
			return
		}
		snapshot := p.pending
		p.hasPending = false
		p.pendingMu.Unlock()

		if err := p.writeNow(snapshot); err != nil {
			log.WithError(err).Warnf("credential persistence: save to %s failed, in-memory state remains authoritative", p.path)
		}
	}
}

// writeNow performs one atomic replace of the target file: write to a
// temporary sibling, fsync, then rename over the target.
func (p *persister) writeNow(creds []*Credential) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	records := make([]record, 0, len(creds))
	for _, c := range creds {
		if c == nil {
			continue
		}
		records = append(records, toRecord(c))
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credential list: %w", err)
	}

	dir := filepath.Dir(p.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("prepare credential directory: %w", err)
		}
	}

	tmpPath := fmt.Sprintf("%s.tmp.%d.%s", p.path, os.Getpid(), strconv.FormatInt(time.Now().UnixMilli(), 10)+"."+uuid.NewString()[:8])
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create staging file: %w", err)
	}
	success := false
	defer func() {
		if !success {
			_ = f.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write staging file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("fsync staging file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close staging file: %w", err)
	}
	if err := os.Rename(tmpPath, p.path); err != nil {
		return fmt.Errorf("rename staging file into place: %w", err)
	}
	success = true
	return nil
}
