package store

import "context"

// Schema for the engine's rows. The two uniqueness rules the engine
// leans on live here: one non-expired session per (class, occurrence),
// and one check-in per (session, student). Sessions and check-ins are
// never deleted.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS classes (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	lecturer_id TEXT NOT NULL,
	latitude    DOUBLE PRECISION,
	longitude   DOUBLE PRECISION,
	radius_m    DOUBLE PRECISION,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS class_students (
	class_id   TEXT NOT NULL REFERENCES classes(id),
	student_id TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (class_id, student_id)
);

CREATE TABLE IF NOT EXISTS class_meetings (
	id           TEXT PRIMARY KEY,
	class_id     TEXT NOT NULL REFERENCES classes(id),
	weekday      SMALLINT NOT NULL CHECK (weekday BETWEEN 0 AND 6),
	start_minute INT NOT NULL,
	end_minute   INT NOT NULL,
	start_week   INT NOT NULL DEFAULT 0,
	end_week     INT NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS semesters (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	start_date DATE NOT NULL,
	end_date   DATE NOT NULL,
	status     TEXT NOT NULL DEFAULT 'upcoming',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS semesters_one_active
	ON semesters (status) WHERE status = 'active';

CREATE TABLE IF NOT EXISTS sessions (
	id             TEXT PRIMARY KEY,
	class_id       TEXT NOT NULL REFERENCES classes(id),
	occurrence_key TEXT NOT NULL,
	started_at     TIMESTAMPTZ NOT NULL,
	expires_at     TIMESTAMPTZ NOT NULL,
	online_mode    BOOLEAN NOT NULL DEFAULT FALSE,
	is_expired     BOOLEAN NOT NULL DEFAULT FALSE,
	anchor_lat     DOUBLE PRECISION,
	anchor_lon     DOUBLE PRECISION,
	radius_m       DOUBLE PRECISION,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS sessions_one_active_per_occurrence
	ON sessions (class_id, occurrence_key) WHERE NOT is_expired;

CREATE INDEX IF NOT EXISTS sessions_due
	ON sessions (expires_at) WHERE NOT is_expired;

CREATE INDEX IF NOT EXISTS sessions_class_started
	ON sessions (class_id, started_at);

CREATE TABLE IF NOT EXISTS check_ins (
	id            TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL REFERENCES sessions(id),
	student_id    TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'present',
	checked_in_at TIMESTAMPTZ NOT NULL,
	latitude      DOUBLE PRECISION,
	longitude     DOUBLE PRECISION,
	accuracy      DOUBLE PRECISION,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (session_id, student_id)
);

CREATE INDEX IF NOT EXISTS check_ins_student
	ON check_ins (student_id, session_id);
`

// EnsureSchema applies the schema idempotently on startup.
func (d *DB) EnsureSchema(ctx context.Context) error {
	_, err := d.Client.ExecContext(ctx, schemaSQL)
	return err
}
