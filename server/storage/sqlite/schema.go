package sqlite

import (
	"context"
	"database/sql"
)

// All instants are stored as UTC unix nanoseconds so range predicates
// compare integers.
const schema = `
CREATE TABLE IF NOT EXISTS recurrence_patterns (
	id TEXT PRIMARY KEY,
	organization TEXT NOT NULL,
	resource_path TEXT NOT NULL,
	type TEXT NOT NULL,
	start_ns INTEGER NOT NULL,
	duration_ns INTEGER NOT NULL,
	recurrence_end_ns INTEGER NOT NULL,
	rrule TEXT NOT NULL,
	time_zone TEXT NOT NULL,
	extensions TEXT NOT NULL,
	month_day_strategy TEXT,
	created_ns INTEGER NOT NULL,
	modified_ns INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_patterns_scope_range
	ON recurrence_patterns(organization, resource_path, start_ns, recurrence_end_ns);

CREATE TABLE IF NOT EXISTS standalone_instances (
	id TEXT PRIMARY KEY,
	organization TEXT NOT NULL,
	resource_path TEXT NOT NULL,
	type TEXT NOT NULL,
	start_ns INTEGER NOT NULL,
	duration_ns INTEGER NOT NULL,
	end_ns INTEGER NOT NULL,
	time_zone TEXT NOT NULL,
	extensions TEXT NOT NULL,
	created_ns INTEGER NOT NULL,
	modified_ns INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_instances_scope_range
	ON standalone_instances(organization, resource_path, start_ns, end_ns);

CREATE TABLE IF NOT EXISTS cancellations (
	id TEXT PRIMARY KEY,
	organization TEXT NOT NULL,
	resource_path TEXT NOT NULL,
	recurrence_id TEXT NOT NULL,
	original_ns INTEGER NOT NULL,
	extensions TEXT NOT NULL,
	created_ns INTEGER NOT NULL,
	FOREIGN KEY (recurrence_id) REFERENCES recurrence_patterns(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_cancellations_pattern ON cancellations(recurrence_id, original_ns);

CREATE TABLE IF NOT EXISTS modifications (
	id TEXT PRIMARY KEY,
	organization TEXT NOT NULL,
	resource_path TEXT NOT NULL,
	recurrence_id TEXT NOT NULL,
	original_ns INTEGER NOT NULL,
	original_duration_ns INTEGER NOT NULL,
	original_extensions TEXT NOT NULL,
	start_ns INTEGER NOT NULL,
	duration_ns INTEGER NOT NULL,
	end_ns INTEGER NOT NULL,
	extensions TEXT NOT NULL,
	created_ns INTEGER NOT NULL,
	modified_ns INTEGER NOT NULL,
	UNIQUE (recurrence_id, original_ns),
	FOREIGN KEY (recurrence_id) REFERENCES recurrence_patterns(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_modifications_range ON modifications(recurrence_id, start_ns, end_ns);
`

func initSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
