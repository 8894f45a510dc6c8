package manager

import (
	"errors"
	"fmt"
	"syscall"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"
)

var bucketWorkers = []byte("workers")

// LedgerEntry is the durable trace of a spawned worker, kept so a restarted
// manager can reap workers its predecessor left behind.
type LedgerEntry struct {
	ID          string `msgpack:"id"`
	InstanceID  string `msgpack:"instance_id"`
	PID         int    `msgpack:"pid"`
	SyncPath    string `msgpack:"sync_path"`
	StartedUnix int64  `msgpack:"started_unix"`
	// StartTicks is the kernel start time of the process (/proc/<pid>/stat
	// field 22). Together with PID it identifies the process across pid reuse.
	StartTicks uint64 `msgpack:"start_ticks"`
}

// Ledger records live worker pids outside the manager process.
type Ledger interface {
	Put(e LedgerEntry) error
	Delete(id string) error
	Entries() ([]LedgerEntry, error)
	Close() error
}

type noopLedger struct{}

func (noopLedger) Put(LedgerEntry) error           { return nil }
func (noopLedger) Delete(string) error             { return nil }
func (noopLedger) Entries() ([]LedgerEntry, error) { return nil, nil }
func (noopLedger) Close() error                    { return nil }

// BoltLedger implements Ledger using BoltDB.
type BoltLedger struct {
	db *bolt.DB
}

// OpenBoltLedger opens (or creates) the ledger file at path.
func OpenBoltLedger(path string) (*BoltLedger, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketWorkers)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket %s: %w", bucketWorkers, err)
	}
	return &BoltLedger{db: db}, nil
}

func (l *BoltLedger) Put(e LedgerEntry) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		data, err := msgpack.Marshal(&e)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketWorkers).Put([]byte(e.ID), data)
	})
}

func (l *BoltLedger) Delete(id string) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketWorkers).Delete([]byte(id))
	})
}

func (l *BoltLedger) Entries() ([]LedgerEntry, error) {
	var out []LedgerEntry
	err := l.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketWorkers).ForEach(func(k, v []byte) error {
			var e LedgerEntry
			if err := msgpack.Unmarshal(v, &e); err != nil {
				return err
			}
			out = append(out, e)
			return nil
		})
	})
	return out, err
}

// Close closes the database
func (l *BoltLedger) Close() error {
	return l.db.Close()
}

func ledgerEntry(r *WorkerRecord) LedgerEntry {
	e := LedgerEntry{
		ID:          r.ID,
		InstanceID:  r.InstanceID.String(),
		PID:         r.PID,
		SyncPath:    r.SyncPath,
		StartedUnix: r.Started.Unix(),
	}
	if r.proc != nil {
		e.StartTicks = r.proc.startTicks
	}
	return e
}

// ReapOrphans terminates the process group of every ledger entry that still
// names a live worker and clears the ledger. It must run before the first
// ScaleUp. A pid that now belongs to another process is left alone.
func (m *Manager) ReapOrphans() (int, error) {
	entries, err := m.ledger.Entries()
	if err != nil {
		return 0, err
	}
	reaped := 0
	for _, e := range entries {
		log := m.log.With().Int("pid", e.PID).Str("worker_id", e.ID).Logger()
		if !isRecordedWorker(e) {
			log.Debug().Msg("ledger entry does not match a live worker, dropping")
		} else if err := syscall.Kill(-e.PID, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
			log.Warn().Err(err).Msg("reap orphan failed")
		} else {
			reaped++
			log.Info().Msg("reaped orphaned worker")
		}
		if err := m.ledger.Delete(e.ID); err != nil {
			return reaped, err
		}
	}
	return reaped, nil
}

// isRecordedWorker reports whether e.PID is still the process that was
// recorded. Workers always lead their own process group. Where procfs is
// available the kernel start time must match as well.
func isRecordedWorker(e LedgerEntry) bool {
	if e.PID <= 0 {
		return false
	}
	pgid, err := syscall.Getpgid(e.PID)
	if err != nil || pgid != e.PID {
		return false
	}
	ticks, err := procStartTicks(e.PID)
	if err != nil {
		return !procfsAvailable()
	}
	return e.StartTicks != 0 && e.StartTicks == ticks
}

// removeLedger is best effort; a stale entry only costs a wasted signal later.
func (m *Manager) removeLedger(id string) {
	if err := m.ledger.Delete(id); err != nil {
		m.log.Warn().Err(err).Str("worker_id", id).Msg("ledger delete failed")
	}
}
