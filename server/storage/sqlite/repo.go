package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/samber/mo"

	"github.com/cyp0633/caldora-recur/server/storage"
)

// repo implements storage.Repository against either the pool or a transaction.
type repo struct {
	q querier
}

func toNS(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNS(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

func now() int64 {
	return time.Now().UTC().UnixNano()
}

func encodeExtensions(ext map[string]string) (string, error) {
	if ext == nil {
		ext = map[string]string{}
	}
	b, err := json.Marshal(ext)
	return string(b), err
}

func decodeExtensions(raw string) (map[string]string, error) {
	ext := map[string]string{}
	if raw == "" || raw == "null" {
		return ext, nil
	}
	if err := json.Unmarshal([]byte(raw), &ext); err != nil {
		return nil, err
	}
	return ext, nil
}

func checkAffected(res sql.Result, kind, id string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return storage.NotFound(kind, id)
	}
	return nil
}

// Pattern operations

const patternColumns = `id, organization, resource_path, type, start_ns, duration_ns, recurrence_end_ns,
	rrule, time_zone, extensions, month_day_strategy, created_ns, modified_ns`

func (r *repo) CreatePattern(ctx context.Context, p *storage.RecurrencePattern) error {
	ext, err := encodeExtensions(p.Extensions)
	if err != nil {
		return err
	}
	var strategy sql.NullString
	if s, ok := p.MonthDayStrategy.Get(); ok {
		strategy = sql.NullString{String: string(s), Valid: true}
	}
	ts := now()

	_, err = r.q.ExecContext(ctx, `INSERT INTO recurrence_patterns (`+patternColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Organization, p.ResourcePath, p.Type,
		toNS(p.StartTime), int64(p.Duration), toNS(p.RecurrenceEndTime),
		p.RRule, p.TimeZone, ext, strategy, ts, ts,
	)
	if isUniqueViolation(err) {
		return storage.AlreadyExists("pattern %q already exists", p.ID)
	}
	if err != nil {
		return err
	}
	p.Created, p.Modified = fromNS(ts), fromNS(ts)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPattern(row rowScanner) (*storage.RecurrencePattern, error) {
	var (
		p                     storage.RecurrencePattern
		startNS, durNS, endNS int64
		createdNS, modifiedNS int64
		ext                   string
		strategy              sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Organization, &p.ResourcePath, &p.Type,
		&startNS, &durNS, &endNS, &p.RRule, &p.TimeZone, &ext, &strategy,
		&createdNS, &modifiedNS); err != nil {
		return nil, err
	}
	var err error
	if p.Extensions, err = decodeExtensions(ext); err != nil {
		return nil, err
	}
	p.StartTime = fromNS(startNS)
	p.Duration = time.Duration(durNS)
	p.RecurrenceEndTime = fromNS(endNS)
	p.Created, p.Modified = fromNS(createdNS), fromNS(modifiedNS)
	if strategy.Valid {
		p.MonthDayStrategy = mo.Some(storage.MonthDayStrategy(strategy.String))
	}
	return &p, nil
}

func (r *repo) GetPattern(ctx context.Context, id string, scope storage.Scope) (*storage.RecurrencePattern, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+patternColumns+` FROM recurrence_patterns
		WHERE id = ? AND organization = ? AND resource_path = ?`, id, scope.Organization, scope.ResourcePath)
	p, err := scanPattern(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFound("pattern", id)
	}
	return p, err
}

func (r *repo) UpdatePattern(ctx context.Context, p *storage.RecurrencePattern) error {
	ext, err := encodeExtensions(p.Extensions)
	if err != nil {
		return err
	}
	ts := now()
	res, err := r.q.ExecContext(ctx, `UPDATE recurrence_patterns SET duration_ns = ?, extensions = ?, modified_ns = ?
		WHERE id = ? AND organization = ? AND resource_path = ?`,
		int64(p.Duration), ext, ts, p.ID, p.Organization, p.ResourcePath)
	if err != nil {
		return err
	}
	if err := checkAffected(res, "pattern", p.ID); err != nil {
		return err
	}
	p.Modified = fromNS(ts)
	return nil
}

func (r *repo) DeletePattern(ctx context.Context, id string, scope storage.Scope) error {
	if err := r.DeleteCancellationsByPattern(ctx, id, scope); err != nil {
		return err
	}
	if err := r.DeleteModificationsByPattern(ctx, id, scope); err != nil {
		return err
	}
	res, err := r.q.ExecContext(ctx, `DELETE FROM recurrence_patterns
		WHERE id = ? AND organization = ? AND resource_path = ?`, id, scope.Organization, scope.ResourcePath)
	if err != nil {
		return err
	}
	return checkAffected(res, "pattern", id)
}

// typeClause appends a type filter. ok is false for an empty, non-nil filter,
// which can never match.
func typeClause(types []string, args []any) (clause string, outArgs []any, ok bool) {
	if types == nil {
		return "", args, true
	}
	if len(types) == 0 {
		return "", args, false
	}
	for _, t := range types {
		args = append(args, t)
	}
	return " AND type IN (" + placeholders(len(types)) + ")", args, true
}

func (r *repo) ListPatternsInRange(ctx context.Context, q storage.RangeQuery) ([]*storage.RecurrencePattern, error) {
	args := []any{q.Organization, q.ResourcePath, toNS(q.End), toNS(q.Start)}
	clause, args, ok := typeClause(q.Types, args)
	if !ok {
		return nil, nil
	}
	rows, err := r.q.QueryContext(ctx, `SELECT `+patternColumns+` FROM recurrence_patterns
		WHERE organization = ? AND resource_path = ? AND start_ns < ? AND recurrence_end_ns >= ?`+clause+`
		ORDER BY start_ns, id`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*storage.RecurrencePattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Standalone instance operations

const instanceColumns = `id, organization, resource_path, type, start_ns, duration_ns, time_zone,
	extensions, created_ns, modified_ns`

func (r *repo) CreateInstance(ctx context.Context, i *storage.StandaloneInstance) error {
	ext, err := encodeExtensions(i.Extensions)
	if err != nil {
		return err
	}
	ts := now()
	_, err = r.q.ExecContext(ctx, `INSERT INTO standalone_instances
		(id, organization, resource_path, type, start_ns, duration_ns, end_ns, time_zone, extensions, created_ns, modified_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		i.ID, i.Organization, i.ResourcePath, i.Type, toNS(i.StartTime), int64(i.Duration),
		toNS(i.EndTime()), i.TimeZone, ext, ts, ts)
	if isUniqueViolation(err) {
		return storage.AlreadyExists("instance %q already exists", i.ID)
	}
	if err != nil {
		return err
	}
	i.Created, i.Modified = fromNS(ts), fromNS(ts)
	return nil
}

func scanInstance(row rowScanner) (*storage.StandaloneInstance, error) {
	var (
		i                     storage.StandaloneInstance
		startNS, durNS        int64
		createdNS, modifiedNS int64
		ext                   string
	)
	if err := row.Scan(&i.ID, &i.Organization, &i.ResourcePath, &i.Type, &startNS, &durNS,
		&i.TimeZone, &ext, &createdNS, &modifiedNS); err != nil {
		return nil, err
	}
	var err error
	if i.Extensions, err = decodeExtensions(ext); err != nil {
		return nil, err
	}
	i.StartTime = fromNS(startNS)
	i.Duration = time.Duration(durNS)
	i.Created, i.Modified = fromNS(createdNS), fromNS(modifiedNS)
	return &i, nil
}

func (r *repo) GetInstance(ctx context.Context, id string, scope storage.Scope) (*storage.StandaloneInstance, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+instanceColumns+` FROM standalone_instances
		WHERE id = ? AND organization = ? AND resource_path = ?`, id, scope.Organization, scope.ResourcePath)
	i, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFound("instance", id)
	}
	return i, err
}

func (r *repo) UpdateInstance(ctx context.Context, i *storage.StandaloneInstance) error {
	ext, err := encodeExtensions(i.Extensions)
	if err != nil {
		return err
	}
	ts := now()
	res, err := r.q.ExecContext(ctx, `UPDATE standalone_instances
		SET start_ns = ?, duration_ns = ?, end_ns = ?, time_zone = ?, extensions = ?, modified_ns = ?
		WHERE id = ? AND organization = ? AND resource_path = ?`,
		toNS(i.StartTime), int64(i.Duration), toNS(i.EndTime()), i.TimeZone, ext, ts,
		i.ID, i.Organization, i.ResourcePath)
	if err != nil {
		return err
	}
	if err := checkAffected(res, "instance", i.ID); err != nil {
		return err
	}
	i.Modified = fromNS(ts)
	return nil
}

func (r *repo) DeleteInstance(ctx context.Context, id string, scope storage.Scope) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM standalone_instances
		WHERE id = ? AND organization = ? AND resource_path = ?`, id, scope.Organization, scope.ResourcePath)
	if err != nil {
		return err
	}
	return checkAffected(res, "instance", id)
}

func (r *repo) ListInstancesInRange(ctx context.Context, q storage.RangeQuery) ([]*storage.StandaloneInstance, error) {
	args := []any{q.Organization, q.ResourcePath, toNS(q.End), toNS(q.Start)}
	clause, args, ok := typeClause(q.Types, args)
	if !ok {
		return nil, nil
	}
	rows, err := r.q.QueryContext(ctx, `SELECT `+instanceColumns+` FROM standalone_instances
		WHERE organization = ? AND resource_path = ? AND start_ns < ? AND end_ns > ?`+clause+`
		ORDER BY start_ns, id`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*storage.StandaloneInstance
	for rows.Next() {
		i, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

// patternExists guards child inserts so an orphan reports not_found
// regardless of whether the driver enforces foreign keys.
func (r *repo) patternExists(ctx context.Context, id string, scope storage.Scope) error {
	var one int
	err := r.q.QueryRowContext(ctx, `SELECT 1 FROM recurrence_patterns
		WHERE id = ? AND organization = ? AND resource_path = ?`, id, scope.Organization, scope.ResourcePath).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.NotFound("pattern", id)
	}
	return err
}

// Cancellation operations

func (r *repo) CreateCancellation(ctx context.Context, c *storage.Cancellation) error {
	if err := r.patternExists(ctx, c.RecurrenceID, c.Scope); err != nil {
		return err
	}
	ext, err := encodeExtensions(c.Extensions)
	if err != nil {
		return err
	}
	ts := now()
	_, err = r.q.ExecContext(ctx, `INSERT INTO cancellations
		(id, organization, resource_path, recurrence_id, original_ns, extensions, created_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Organization, c.ResourcePath, c.RecurrenceID, toNS(c.OriginalTime), ext, ts)
	if isUniqueViolation(err) {
		return storage.AlreadyExists("cancellation %q already exists", c.ID)
	}
	if err != nil {
		return err
	}
	c.Created = fromNS(ts)
	return nil
}

const cancellationColumns = `id, organization, resource_path, recurrence_id, original_ns, extensions, created_ns`

func scanCancellation(row rowScanner) (*storage.Cancellation, error) {
	var (
		c                     storage.Cancellation
		originalNS, createdNS int64
		ext                   string
	)
	if err := row.Scan(&c.ID, &c.Organization, &c.ResourcePath, &c.RecurrenceID, &originalNS, &ext, &createdNS); err != nil {
		return nil, err
	}
	var err error
	if c.Extensions, err = decodeExtensions(ext); err != nil {
		return nil, err
	}
	c.OriginalTime = fromNS(originalNS)
	c.Created = fromNS(createdNS)
	return &c, nil
}

func (r *repo) GetCancellation(ctx context.Context, id string, scope storage.Scope) (*storage.Cancellation, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+cancellationColumns+` FROM cancellations
		WHERE id = ? AND organization = ? AND resource_path = ?`, id, scope.Organization, scope.ResourcePath)
	c, err := scanCancellation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFound("cancellation", id)
	}
	return c, err
}

func (r *repo) ListCancellations(ctx context.Context, patternID string, scope storage.Scope) ([]*storage.Cancellation, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+cancellationColumns+` FROM cancellations
		WHERE recurrence_id = ? AND organization = ? AND resource_path = ?
		ORDER BY original_ns`, patternID, scope.Organization, scope.ResourcePath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*storage.Cancellation
	for rows.Next() {
		c, err := scanCancellation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repo) DeleteCancellation(ctx context.Context, id string, scope storage.Scope) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM cancellations
		WHERE id = ? AND organization = ? AND resource_path = ?`, id, scope.Organization, scope.ResourcePath)
	if err != nil {
		return err
	}
	return checkAffected(res, "cancellation", id)
}

func (r *repo) DeleteCancellationsByPattern(ctx context.Context, patternID string, scope storage.Scope) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM cancellations
		WHERE recurrence_id = ? AND organization = ? AND resource_path = ?`, patternID, scope.Organization, scope.ResourcePath)
	return err
}

// Modification operations

const modificationColumns = `id, organization, resource_path, recurrence_id, original_ns, original_duration_ns,
	original_extensions, start_ns, duration_ns, extensions, created_ns, modified_ns`

func (r *repo) CreateModification(ctx context.Context, m *storage.Modification) error {
	if err := r.patternExists(ctx, m.RecurrenceID, m.Scope); err != nil {
		return err
	}
	ext, err := encodeExtensions(m.Extensions)
	if err != nil {
		return err
	}
	origExt, err := encodeExtensions(m.OriginalExtensions)
	if err != nil {
		return err
	}
	ts := now()
	_, err = r.q.ExecContext(ctx, `INSERT INTO modifications
		(id, organization, resource_path, recurrence_id, original_ns, original_duration_ns, original_extensions,
		 start_ns, duration_ns, end_ns, extensions, created_ns, modified_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Organization, m.ResourcePath, m.RecurrenceID, toNS(m.OriginalTime), int64(m.OriginalDuration), origExt,
		toNS(m.StartTime), int64(m.Duration), toNS(m.EndTime()), ext, ts, ts)
	if isUniqueViolation(err) {
		return storage.AlreadyExists("modification for pattern %q at %s already exists",
			m.RecurrenceID, m.OriginalTime.Format(time.RFC3339))
	}
	if err != nil {
		return err
	}
	m.Created, m.Modified = fromNS(ts), fromNS(ts)
	return nil
}

func scanModification(row rowScanner) (*storage.Modification, error) {
	var (
		m                     storage.Modification
		originalNS, origDurNS int64
		startNS, durNS        int64
		createdNS, modifiedNS int64
		origExt, ext          string
	)
	if err := row.Scan(&m.ID, &m.Organization, &m.ResourcePath, &m.RecurrenceID, &originalNS, &origDurNS,
		&origExt, &startNS, &durNS, &ext, &createdNS, &modifiedNS); err != nil {
		return nil, err
	}
	var err error
	if m.OriginalExtensions, err = decodeExtensions(origExt); err != nil {
		return nil, err
	}
	if m.Extensions, err = decodeExtensions(ext); err != nil {
		return nil, err
	}
	m.OriginalTime = fromNS(originalNS)
	m.OriginalDuration = time.Duration(origDurNS)
	m.StartTime = fromNS(startNS)
	m.Duration = time.Duration(durNS)
	m.Created, m.Modified = fromNS(createdNS), fromNS(modifiedNS)
	return &m, nil
}

func (r *repo) queryModifications(ctx context.Context, query string, args ...any) ([]*storage.Modification, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*storage.Modification
	for rows.Next() {
		m, err := scanModification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *repo) GetModification(ctx context.Context, id string, scope storage.Scope) (*storage.Modification, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+modificationColumns+` FROM modifications
		WHERE id = ? AND organization = ? AND resource_path = ?`, id, scope.Organization, scope.ResourcePath)
	m, err := scanModification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFound("modification", id)
	}
	return m, err
}

func (r *repo) ListModifications(ctx context.Context, patternID string, scope storage.Scope) ([]*storage.Modification, error) {
	return r.queryModifications(ctx, `SELECT `+modificationColumns+` FROM modifications
		WHERE recurrence_id = ? AND organization = ? AND resource_path = ?
		ORDER BY original_ns`, patternID, scope.Organization, scope.ResourcePath)
}

func (r *repo) ListModificationsInRange(ctx context.Context, scope storage.Scope, patternIDs []string, start, end time.Time) ([]*storage.Modification, error) {
	if len(patternIDs) == 0 {
		return nil, nil
	}
	args := []any{scope.Organization, scope.ResourcePath}
	for _, id := range patternIDs {
		args = append(args, id)
	}
	args = append(args, toNS(start), toNS(end), toNS(end), toNS(start))
	return r.queryModifications(ctx, `SELECT `+modificationColumns+` FROM modifications
		WHERE organization = ? AND resource_path = ? AND recurrence_id IN (`+placeholders(len(patternIDs))+`)
		AND ((original_ns >= ? AND original_ns < ?) OR (start_ns < ? AND end_ns > ?))
		ORDER BY recurrence_id, original_ns`, args...)
}

// UpdateModification never touches the key or the original snapshot.
func (r *repo) UpdateModification(ctx context.Context, m *storage.Modification) error {
	ext, err := encodeExtensions(m.Extensions)
	if err != nil {
		return err
	}
	ts := now()
	res, err := r.q.ExecContext(ctx, `UPDATE modifications
		SET start_ns = ?, duration_ns = ?, end_ns = ?, extensions = ?, modified_ns = ?
		WHERE id = ? AND organization = ? AND resource_path = ?`,
		toNS(m.StartTime), int64(m.Duration), toNS(m.EndTime()), ext, ts,
		m.ID, m.Organization, m.ResourcePath)
	if err != nil {
		return err
	}
	if err := checkAffected(res, "modification", m.ID); err != nil {
		return err
	}
	m.Modified = fromNS(ts)
	return nil
}

func (r *repo) DeleteModification(ctx context.Context, id string, scope storage.Scope) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM modifications
		WHERE id = ? AND organization = ? AND resource_path = ?`, id, scope.Organization, scope.ResourcePath)
	if err != nil {
		return err
	}
	return checkAffected(res, "modification", id)
}

func (r *repo) DeleteModificationsByPattern(ctx context.Context, patternID string, scope storage.Scope) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM modifications
		WHERE recurrence_id = ? AND organization = ? AND resource_path = ?`, patternID, scope.Organization, scope.ResourcePath)
	return err
}
