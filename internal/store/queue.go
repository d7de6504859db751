package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/swimport/internal/ir"
)

const microtransactionColumns = `
	seq, id, owner, batch, kind, request_hash, request_payload, solved_payload,
	requested_depth, processed_depth, solvable_depth, done, attempts,
	last_outcome, last_error, created_at, progressed_at, attempted_at`

// EnqueueResult reports the record ID assigned to one enqueued request.
// Inserted is false when an identical request (same owner, kind and
// payload) was already queued; ID then names the existing record.
type EnqueueResult struct {
	ID       string
	Inserted bool
}

// EnqueueMicrotransactions inserts new records in a single transaction.
// Duplicate request hashes are resolved to the existing record through
// ON CONFLICT(request_hash) DO NOTHING followed by a lookup.
//
// Depth columns start at processed = solvable = 0 and done = 0 regardless of
// what the caller passes.
func (s *Store) EnqueueMicrotransactions(ctx context.Context, mts []ir.Microtransaction) ([]EnqueueResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("enqueue: begin tx: %w", err)
	}
	defer tx.Rollback()

	results := make([]EnqueueResult, 0, len(mts))
	for _, mt := range mts {
		requestJSON, err := marshalObject(mt.RequestPayload)
		if err != nil {
			return nil, fmt.Errorf("enqueue %s: %w", mt.ID, err)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO microtransactions
			(id, owner, batch, kind, request_hash, request_payload, solved_payload,
			 requested_depth, created_at, progressed_at)
			VALUES (?, ?, ?, ?, ?, ?, '{}', ?, ?, ?)
			ON CONFLICT(request_hash) DO NOTHING
		`,
			mt.ID,
			mt.Owner,
			mt.Batch,
			mt.Kind,
			mt.RequestHash,
			requestJSON,
			mt.Progress.Requested,
			toUnixNano(mt.CreatedAt),
			toUnixNano(mt.CreatedAt),
		)
		if err != nil {
			return nil, fmt.Errorf("enqueue %s: insert: %w", mt.ID, err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("enqueue %s: rows affected: %w", mt.ID, err)
		}
		if affected > 0 {
			results = append(results, EnqueueResult{ID: mt.ID, Inserted: true})
			continue
		}

		var existing string
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM microtransactions WHERE request_hash = ?
		`, mt.RequestHash).Scan(&existing)
		if err != nil {
			return nil, fmt.Errorf("enqueue %s: select existing: %w", mt.ID, err)
		}
		results = append(results, EnqueueResult{ID: existing, Inserted: false})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("enqueue: commit: %w", err)
	}
	return results, nil
}

// ReadMicrotransaction retrieves a single record by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadMicrotransaction(ctx context.Context, id string) (ir.Microtransaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+microtransactionColumns+`
		FROM microtransactions
		WHERE id = ?
	`, id)
	return scanMicrotransaction(row)
}

// ReadPending returns every record that is not done, in pass order:
// ascending requested depth, then enqueue order. limit <= 0 means no limit.
func (s *Store) ReadPending(ctx context.Context, limit int) ([]ir.Microtransaction, error) {
	query := `
		SELECT ` + microtransactionColumns + `
		FROM microtransactions
		WHERE done = 0
		ORDER BY requested_depth ASC, seq ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryMicrotransactions(ctx, "pending", query, args...)
}

// ReadDone returns every done record in enqueue order.
func (s *Store) ReadDone(ctx context.Context) ([]ir.Microtransaction, error) {
	return s.queryMicrotransactions(ctx, "done", `
		SELECT `+microtransactionColumns+`
		FROM microtransactions
		WHERE done = 1
		ORDER BY seq ASC
	`)
}

// ReadAll returns every record in enqueue order.
func (s *Store) ReadAll(ctx context.Context) ([]ir.Microtransaction, error) {
	return s.queryMicrotransactions(ctx, "all", `
		SELECT `+microtransactionColumns+`
		FROM microtransactions
		ORDER BY seq ASC
	`)
}

// ReadBatch returns the records enqueued under one batch key.
func (s *Store) ReadBatch(ctx context.Context, batch string) ([]ir.Microtransaction, error) {
	return s.queryMicrotransactions(ctx, "batch", `
		SELECT `+microtransactionColumns+`
		FROM microtransactions
		WHERE batch = ? AND batch <> ''
		ORDER BY seq ASC
	`, batch)
}

// ReadStalled returns pending records that have not advanced since before
// and are either blocked at a depth (solvable < processed) or fully solved
// with at least one failed commit. Oldest first.
func (s *Store) ReadStalled(ctx context.Context, before time.Time) ([]ir.Microtransaction, error) {
	return s.queryMicrotransactions(ctx, "stalled", `
		SELECT `+microtransactionColumns+`
		FROM microtransactions
		WHERE done = 0
		  AND (solvable_depth < processed_depth
		       OR (solvable_depth = requested_depth AND attempts > 0))
		  AND progressed_at <= ?
		ORDER BY progressed_at ASC, seq ASC
	`, toUnixNano(before))
}

// AdvanceDepth records the outcome of one depth attempt.
//
// The update is conditional on the record still carrying the from progress
// and not being done. It returns false when another writer got there first;
// the caller must not retry with stale data. Moves that would decrease a
// depth or break solvable <= processed <= requested are rejected.
//
// attempts resets when solvable advances and increments otherwise.
// progressed_at only moves when solvable advances.
func (s *Store) AdvanceDepth(
	ctx context.Context,
	id string,
	from, to ir.Progress,
	solved ir.Object,
	outcome ir.Outcome,
	message string,
	at time.Time,
) (bool, error) {
	if !to.Valid() || !from.Before(to) {
		return false, fmt.Errorf("advance %s: invalid transition %+v -> %+v", id, from, to)
	}

	solvedJSON, err := marshalObject(solved)
	if err != nil {
		return false, fmt.Errorf("advance %s: %w", id, err)
	}

	advanced := boolToInt(to.Solvable > from.Solvable)
	res, err := s.db.ExecContext(ctx, `
		UPDATE microtransactions SET
			processed_depth = ?,
			solvable_depth = ?,
			solved_payload = ?,
			last_outcome = ?,
			last_error = ?,
			attempted_at = ?,
			attempts = CASE WHEN ? = 1 THEN 0 ELSE attempts + 1 END,
			progressed_at = CASE WHEN ? = 1 THEN ? ELSE progressed_at END
		WHERE id = ?
		  AND processed_depth = ?
		  AND solvable_depth = ?
		  AND requested_depth = ?
		  AND done = 0
	`,
		to.Processed,
		to.Solvable,
		solvedJSON,
		string(outcome),
		message,
		toUnixNano(at),
		advanced,
		advanced, toUnixNano(at),
		id,
		from.Processed,
		from.Solvable,
		from.Requested,
	)
	if err != nil {
		return false, fmt.Errorf("advance %s: %w", id, err)
	}
	return rowsChanged(res, "advance "+id)
}

// MarkDone flags a fully solved record as done and stores the final solved
// payload. It only applies while done = 0 and solvable = requested, so a
// concurrent commit of the same record is a no-op returning false.
func (s *Store) MarkDone(ctx context.Context, id string, solved ir.Object, at time.Time) (bool, error) {
	solvedJSON, err := marshalObject(solved)
	if err != nil {
		return false, fmt.Errorf("mark done %s: %w", id, err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE microtransactions SET
			done = 1,
			solved_payload = ?,
			last_outcome = ?,
			last_error = '',
			attempts = 0,
			attempted_at = ?
		WHERE id = ?
		  AND done = 0
		  AND solvable_depth = requested_depth
	`, solvedJSON, string(ir.OutcomeSolved), toUnixNano(at), id)
	if err != nil {
		return false, fmt.Errorf("mark done %s: %w", id, err)
	}
	return rowsChanged(res, "mark done "+id)
}

// RecordCommitFailure notes a failed commit on a fully solved record.
// Depths are left untouched so the next pass retries the commit.
func (s *Store) RecordCommitFailure(ctx context.Context, id string, outcome ir.Outcome, message string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE microtransactions SET
			attempts = attempts + 1,
			last_outcome = ?,
			last_error = ?,
			attempted_at = ?
		WHERE id = ? AND done = 0
	`, string(outcome), message, toUnixNano(at), id)
	if err != nil {
		return false, fmt.Errorf("record commit failure %s: %w", id, err)
	}
	return rowsChanged(res, "record commit failure "+id)
}

// DeleteDone removes a record only if it is done.
func (s *Store) DeleteDone(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM microtransactions WHERE id = ? AND done = 1
	`, id)
	if err != nil {
		return false, fmt.Errorf("delete done %s: %w", id, err)
	}
	return rowsChanged(res, "delete done "+id)
}

// Stats counts records per requested depth.
func (s *Store) Stats(ctx context.Context) ([]ir.DepthStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT requested_depth,
			SUM(CASE WHEN done = 0 THEN 1 ELSE 0 END),
			SUM(CASE WHEN done = 0 AND (solvable_depth < processed_depth
				OR (solvable_depth = requested_depth AND attempts > 0)) THEN 1 ELSE 0 END),
			SUM(CASE WHEN done = 1 THEN 1 ELSE 0 END)
		FROM microtransactions
		GROUP BY requested_depth
		ORDER BY requested_depth ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	stats := []ir.DepthStats{}
	for rows.Next() {
		var st ir.DepthStats
		if err := rows.Scan(&st.Depth, &st.Pending, &st.Stalled, &st.Done); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats: %w", err)
	}
	return stats, nil
}

func (s *Store) queryMicrotransactions(ctx context.Context, what, query string, args ...any) ([]ir.Microtransaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s microtransactions: %w", what, err)
	}
	defer rows.Close()

	mts := []ir.Microtransaction{}
	for rows.Next() {
		mt, err := scanMicrotransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s microtransaction: %w", what, err)
		}
		mts = append(mts, mt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s microtransactions: %w", what, err)
	}
	return mts, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMicrotransaction(row rowScanner) (ir.Microtransaction, error) {
	var (
		mt                                   ir.Microtransaction
		requestJSON, solvedJSON, outcome     string
		done                                 int
		createdAt, progressedAt, attemptedAt int64
	)
	if err := row.Scan(
		&mt.Seq, &mt.ID, &mt.Owner, &mt.Batch, &mt.Kind, &mt.RequestHash,
		&requestJSON, &solvedJSON,
		&mt.Progress.Requested, &mt.Progress.Processed, &mt.Progress.Solvable,
		&done, &mt.Attempts, &outcome, &mt.LastError,
		&createdAt, &progressedAt, &attemptedAt,
	); err != nil {
		return ir.Microtransaction{}, err
	}

	request, err := unmarshalObject(requestJSON)
	if err != nil {
		return ir.Microtransaction{}, fmt.Errorf("record %s request payload: %w", mt.ID, err)
	}
	solved, err := unmarshalObject(solvedJSON)
	if err != nil {
		return ir.Microtransaction{}, fmt.Errorf("record %s solved payload: %w", mt.ID, err)
	}

	mt.RequestPayload = request
	mt.SolvedPayload = solved
	mt.Done = done == 1
	mt.LastOutcome = ir.Outcome(outcome)
	mt.CreatedAt = fromUnixNano(createdAt)
	mt.ProgressedAt = fromUnixNano(progressedAt)
	mt.AttemptedAt = fromUnixNano(attemptedAt)
	return mt, nil
}

func rowsChanged(res sql.Result, op string) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: rows affected: %w", op, err)
	}
	return n > 0, nil
}
