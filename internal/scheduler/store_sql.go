package scheduler

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/strefethen/taskscheduler/internal/db"
)

// SQLStore persists job state in the apps/state tables of a SQLite DBPair,
// reading through the pair's reader pool and writing through its
// single-connection writer pool.
type SQLStore struct {
	reader *sql.DB
	writer *sql.DB
}

// NewSQLStore builds a SQLStore over an already-initialized DBPair (schema
// applied by db.Init).
func NewSQLStore(pair *db.DBPair) *SQLStore {
	return &SQLStore{reader: pair.Reader(), writer: pair.Writer()}
}

func (s *SQLStore) ensureApp(identity AppIdentity) error {
	_, err := s.writer.Exec(`
		INSERT INTO apps (app_id, app_unique_info, restart_dt)
		VALUES (?, ?, ?)
		ON CONFLICT(app_id) DO UPDATE SET restart_dt = excluded.restart_dt
	`, identity.Hex(), identity.UniqueInfo(), nowISO())
	return err
}

// Load implements StateStore.
func (s *SQLStore) Load(identity AppIdentity, signatureHash string) (*PersistedState, error) {
	row := s.reader.QueryRow(`
		SELECT readable, log, err, start_dt, end_dt, disabled
		FROM state
		WHERE app_id = ? AND signature = ?
	`, identity.Hex(), signatureHash)

	var (
		readable, logText, errText sql.NullString
		startDt, endDt             sql.NullString
		disabled                   int
	)
	if err := row.Scan(&readable, &logText, &errText, &startDt, &endDt, &disabled); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load state: %w", err)
	}

	state := &PersistedState{
		Readable: readable.String,
		Log:      logText.String,
		Err:      errText.String,
		Disabled: disabled != 0,
	}
	if startDt.Valid {
		if t, err := time.Parse(time.RFC3339, startDt.String); err == nil {
			state.StartDt = &t
		}
	}
	if endDt.Valid {
		if t, err := time.Parse(time.RFC3339, endDt.String); err == nil {
			state.EndDt = &t
		}
	}
	return state, nil
}

// Save implements StateStore.
func (s *SQLStore) Save(identity AppIdentity, signatureHash string, state PersistedState) error {
	if err := s.ensureApp(identity); err != nil {
		return fmt.Errorf("ensure app row: %w", err)
	}

	var startDt, endDt *string
	if state.StartDt != nil {
		v := state.StartDt.UTC().Format(time.RFC3339)
		startDt = &v
	}
	if state.EndDt != nil {
		v := state.EndDt.UTC().Format(time.RFC3339)
		endDt = &v
	}

	_, err := s.writer.Exec(`
		INSERT INTO state (app_id, signature, readable, log, err, start_dt, end_dt, disabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(app_id, signature) DO UPDATE SET
			readable = excluded.readable,
			log = excluded.log,
			err = excluded.err,
			start_dt = excluded.start_dt,
			end_dt = excluded.end_dt,
			disabled = excluded.disabled
	`, identity.Hex(), signatureHash, state.Readable, state.Log, state.Err, startDt, endDt, boolToInt(state.Disabled))
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Prune implements StateStore, deleting every row for identity whose
// signature is not in keep, mirroring the original's restore_all_job_logs
// cleanup pass (select all rows for the app, delete whichever signature
// didn't match a current job).
func (s *SQLStore) Prune(identity AppIdentity, keep []string) error {
	rows, err := s.reader.Query(`SELECT signature FROM state WHERE app_id = ?`, identity.Hex())
	if err != nil {
		return fmt.Errorf("list state signatures: %w", err)
	}
	keepSet := make(map[string]struct{}, len(keep))
	for _, sig := range keep {
		keepSet[sig] = struct{}{}
	}

	var stale []string
	for rows.Next() {
		var sig string
		if err := rows.Scan(&sig); err != nil {
			rows.Close()
			return fmt.Errorf("scan state signature: %w", err)
		}
		if _, ok := keepSet[sig]; !ok {
			stale = append(stale, sig)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate state signatures: %w", err)
	}
	rows.Close()

	for _, sig := range stale {
		if _, err := s.writer.Exec(`DELETE FROM state WHERE app_id = ? AND signature = ?`, identity.Hex(), sig); err != nil {
			return fmt.Errorf("prune stale state row: %w", err)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

var _ StateStore = (*SQLStore)(nil)
