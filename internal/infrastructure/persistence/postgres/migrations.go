package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CASES AND WORKFLOW
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS cases (
    id UUID PRIMARY KEY,
    name VARCHAR(200) NOT NULL,
    birthday DATE,
    school VARCHAR(200) NOT NULL DEFAULT '',
    grade VARCHAR(50) NOT NULL DEFAULT '',
    gender VARCHAR(20) NOT NULL DEFAULT '',
    teacher_id TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cases_teacher ON cases(teacher_id);

CREATE TABLE IF NOT EXISTS case_links (
    case_id UUID NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL,
    role VARCHAR(20) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL,

    PRIMARY KEY (case_id, user_id),
    CONSTRAINT valid_link_role CHECK (role IN ('doctor', 'parent'))
);

CREATE INDEX IF NOT EXISTS idx_case_links_user ON case_links(user_id, role);

CREATE TABLE IF NOT EXISTS stage_progress (
    case_id UUID PRIMARY KEY REFERENCES cases(id) ON DELETE CASCADE,
    current_stage SMALLINT NOT NULL DEFAULT 1,
    completed_stages SMALLINT[] NOT NULL DEFAULT '{}',
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL,

    CONSTRAINT valid_current_stage CHECK (current_stage BETWEEN 1 AND 7)
);
`

const migration001Down = `
DROP TABLE IF EXISTS stage_progress;
DROP TABLE IF EXISTS case_links;
DROP TABLE IF EXISTS cases;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: ASSESSMENT
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS assessment_tasks (
    id UUID PRIMARY KEY,
    case_id UUID NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
    name VARCHAR(200) NOT NULL,
    max_score INTEGER NOT NULL,
    score_obtained INTEGER,
    created_by TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
    seq BIGSERIAL,

    CONSTRAINT valid_max_score CHECK (max_score > 0),
    CONSTRAINT valid_score CHECK (score_obtained IS NULL OR (score_obtained >= 0 AND score_obtained <= max_score))
);

CREATE INDEX IF NOT EXISTS idx_assessment_tasks_case ON assessment_tasks(case_id, seq);

CREATE TABLE IF NOT EXISTS assessment_summaries (
    case_id UUID PRIMARY KEY REFERENCES cases(id) ON DELETE CASCADE,
    cutoff_percentage DOUBLE PRECISION NOT NULL,
    total_score INTEGER NOT NULL,
    total_max_score INTEGER NOT NULL,
    percentage_score DOUBLE PRECISION NOT NULL,
    risk_level VARCHAR(10) NOT NULL,
    dyslexia_indication BOOLEAN NOT NULL,
    notes TEXT NOT NULL DEFAULT '',
    recommendations TEXT NOT NULL DEFAULT '',
    assessed_by TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL,

    CONSTRAINT valid_risk_level CHECK (risk_level IN ('low', 'medium', 'high'))
);

CREATE TABLE IF NOT EXISTS handwriting_analyses (
    id UUID PRIMARY KEY,
    case_id UUID NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
    image_url TEXT NOT NULL,
    score DOUBLE PRECISION NOT NULL,
    label TEXT NOT NULL DEFAULT '',
    letter_counts JSONB NOT NULL DEFAULT '{}'::jsonb,
    analyzed_by TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_handwriting_case ON handwriting_analyses(case_id, created_at DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS handwriting_analyses;
DROP TABLE IF EXISTS assessment_summaries;
DROP TABLE IF EXISTS assessment_tasks;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: ACTIVITIES
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS activity_assignments (
    id UUID PRIMARY KEY,
    case_id UUID NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
    name VARCHAR(200) NOT NULL,
    type VARCHAR(30) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    instructions TEXT NOT NULL DEFAULT '',
    difficulty VARCHAR(10) NOT NULL,
    frequency VARCHAR(20) NOT NULL,
    duration_minutes INTEGER NOT NULL,
    target_audience VARCHAR(10) NOT NULL,
    expected_outcomes TEXT NOT NULL DEFAULT '',
    success_criteria TEXT NOT NULL DEFAULT '',
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    doctor_id TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
    seq BIGSERIAL
);

CREATE INDEX IF NOT EXISTS idx_activity_assignments_case ON activity_assignments(case_id, seq);

CREATE TABLE IF NOT EXISTS activity_progress (
    id UUID PRIMARY KEY,
    assignment_id UUID NOT NULL REFERENCES activity_assignments(id) ON DELETE CASCADE,
    case_id UUID NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
    session_date DATE NOT NULL,
    performer VARCHAR(10) NOT NULL,
    recorder_id TEXT NOT NULL,
    status VARCHAR(20) NOT NULL,
    completion_percentage INTEGER NOT NULL DEFAULT 0,
    score INTEGER,
    duration_actual INTEGER,
    notes TEXT NOT NULL DEFAULT '',
    challenges TEXT NOT NULL DEFAULT '',
    improvements TEXT NOT NULL DEFAULT '',
    student_engagement INTEGER NOT NULL DEFAULT 0,
    difficulty_level INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
    seq BIGSERIAL,

    CONSTRAINT activity_progress_session_key UNIQUE (assignment_id, session_date, performer),
    CONSTRAINT valid_performer CHECK (performer IN ('teacher', 'parent'))
);

CREATE INDEX IF NOT EXISTS idx_activity_progress_case ON activity_progress(case_id, session_date, seq);
`

const migration003Down = `
DROP TABLE IF EXISTS activity_progress;
DROP TABLE IF EXISTS activity_assignments;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: EVALUATION AND ARCHIVE
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
CREATE TABLE IF NOT EXISTS final_evaluations (
    id UUID PRIMARY KEY,
    case_id UUID NOT NULL UNIQUE REFERENCES cases(id) ON DELETE CASCADE,
    therapy_session_number INTEGER NOT NULL DEFAULT 1,
    therapy_decision VARCHAR(30) NOT NULL,
    final_diagnosis VARCHAR(40) NOT NULL,
    diagnosis_confidence INTEGER NOT NULL,
    intervention_priority VARCHAR(10) NOT NULL,
    narrative JSONB NOT NULL DEFAULT '{}'::jsonb,
    case_completed BOOLEAN NOT NULL DEFAULT FALSE,
    completion_date TIMESTAMP WITH TIME ZONE,
    doctor_id TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL,

    CONSTRAINT valid_confidence CHECK (diagnosis_confidence BETWEEN 1 AND 10)
);

CREATE TABLE IF NOT EXISTS therapy_session_reports (
    id UUID PRIMARY KEY,
    case_id UUID NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
    session_number INTEGER NOT NULL,
    outcome VARCHAR(20) NOT NULL,
    session_start_date TIMESTAMP WITH TIME ZONE NOT NULL,
    session_end_date TIMESTAMP WITH TIME ZONE NOT NULL,
    schema_version INTEGER NOT NULL,
    payload JSONB NOT NULL,
    checksum CHAR(64) NOT NULL,
    archived_by TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL,

    CONSTRAINT therapy_session_reports_session_key UNIQUE (case_id, session_number),
    CONSTRAINT valid_outcome CHECK (outcome IN ('ongoing', 'terminated', 'continued'))
);

CREATE TABLE IF NOT EXISTS stakeholder_recommendations (
    id UUID PRIMARY KEY,
    case_id UUID NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
    stakeholder_id TEXT NOT NULL,
    stakeholder_type VARCHAR(10) NOT NULL,
    therapy_session_number INTEGER NOT NULL,
    observations TEXT NOT NULL DEFAULT '',
    recommendations TEXT NOT NULL DEFAULT '',
    concerns TEXT NOT NULL DEFAULT '',
    positive_changes TEXT NOT NULL DEFAULT '',
    support_needed TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL,

    CONSTRAINT stakeholder_recommendations_key UNIQUE (case_id, stakeholder_id, therapy_session_number),
    CONSTRAINT valid_stakeholder_type CHECK (stakeholder_type IN ('teacher', 'parent'))
);
`

const migration004Down = `
DROP TABLE IF EXISTS stakeholder_recommendations;
DROP TABLE IF EXISTS therapy_session_reports;
DROP TABLE IF EXISTS final_evaluations;
`

// GetMigrations returns all migrations in version order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_cases_and_workflow", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_assessment", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_activities", UpSQL: migration003Up, DownSQL: migration003Down},
		{Version: 4, Name: "create_evaluation_and_archive", UpSQL: migration004Up, DownSQL: migration004Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migration represents a database migration.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies the schema migrations of the service.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a migrator with the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, migrations: GetMigrations(), tableName: "schema_migrations"}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.conn.Pool().Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`, m.tableName))
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Pool().Query(ctx, fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[int]time.Time)
	for rows.Next() {
		var v int
		var at time.Time
		if err := rows.Scan(&v, &at); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		out[v] = at
	}
	return out, rows.Err()
}

// Migrate applies all pending migrations, each in its own transaction.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName), mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return count, fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
		count++
	}
	return count, nil
}

// Rollback reverts the last applied migration. It is a no-op on an empty schema.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	last := 0
	for v := range applied {
		last = max(last, v)
	}
	if last == 0 {
		return nil
	}

	var mig *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == last {
			mig = &m.migrations[i]
		}
	}
	if mig == nil || mig.DownSQL == "" {
		return fmt.Errorf("%w: missing down SQL for migration %d", ErrMigrationFailed, last)
	}

	return m.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, mig.DownSQL); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", last, err)
		}
		_, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName), last)
		return err
	})
}

// Status lists every migration with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Migration, len(m.migrations))
	copy(out, m.migrations)
	for i := range out {
		if at, ok := applied[out[i].Version]; ok {
			out[i].IsApplied = true
			out[i].AppliedAt = at
		}
	}
	return out, nil
}
