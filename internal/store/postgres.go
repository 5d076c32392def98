package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/lib/pq"
)

// Postgres persists records in PostgreSQL through database/sql and lib/pq.
// A partial unique index on (lower(city), disaster_type) WHERE status =
// 'active' backs InsertActiveAlert.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres opens a connection pool and verifies it with a ping.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

// CheckReadiness pings the database.
func (p *Postgres) CheckReadiness(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres unreachable: %w", err)
	}
	return nil
}

// Migrate creates tables and indexes if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS disaster_alerts (
			id                  TEXT PRIMARY KEY,
			city                TEXT NOT NULL,
			disaster_type       TEXT NOT NULL,
			severity            TEXT NOT NULL,
			message             TEXT NOT NULL,
			source              TEXT NOT NULL,
			affected_area       TEXT NOT NULL DEFAULT '',
			lat                 DOUBLE PRECISION,
			lon                 DOUBLE PRECISION,
			valid_from          TIMESTAMPTZ NOT NULL,
			valid_until         TIMESTAMPTZ NOT NULL,
			instructions        TEXT[] NOT NULL DEFAULT '{}',
			status              TEXT NOT NULL,
			reported_by         TEXT,
			linked_reports      TEXT[] NOT NULL DEFAULT '{}',
			confirmed_by_system BOOLEAN NOT NULL DEFAULT FALSE,
			ai_confidence       INTEGER NOT NULL,
			created_at          TIMESTAMPTZ NOT NULL,
			updated_at          TIMESTAMPTZ NOT NULL,
			CHECK (valid_from <= valid_until)
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_disaster_alerts_one_active
			ON disaster_alerts ((lower(city)), disaster_type) WHERE status = 'active';
		CREATE INDEX IF NOT EXISTS idx_disaster_alerts_created_at ON disaster_alerts (created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_disaster_alerts_reported_by ON disaster_alerts (reported_by);
		ALTER TABLE disaster_alerts ADD COLUMN IF NOT EXISTS linked_reports TEXT[] NOT NULL DEFAULT '{}';

		CREATE TABLE IF NOT EXISTS risk_reports (
			id                    TEXT PRIMARY KEY,
			user_id               TEXT NOT NULL DEFAULT '',
			city                  TEXT NOT NULL,
			state                 TEXT NOT NULL,
			lat                   DOUBLE PRECISION,
			lon                   DOUBLE PRECISION,
			risk_type             TEXT NOT NULL,
			risk_level            TEXT NOT NULL,
			description           TEXT NOT NULL,
			evidence              TEXT[] NOT NULL DEFAULT '{}',
			people_affected       INTEGER NOT NULL DEFAULT 0,
			property_damage       TEXT NOT NULL,
			immediate_actions     TEXT[] NOT NULL DEFAULT '{}',
			help_needed           TEXT[] NOT NULL DEFAULT '{}',
			contact_number        TEXT NOT NULL DEFAULT '',
			status                TEXT NOT NULL,
			verified_by           TEXT NOT NULL DEFAULT '',
			verification_time     TIMESTAMPTZ,
			response_time_minutes INTEGER,
			resolution_time       TIMESTAMPTZ,
			ai_confidence         INTEGER NOT NULL,
			pattern_matched       BOOLEAN NOT NULL,
			similar_reports_count INTEGER NOT NULL,
			created_at            TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_risk_reports_city_type ON risk_reports ((lower(city)), risk_type, created_at);

		CREATE TABLE IF NOT EXISTS weather_snapshots (
			id          TEXT PRIMARY KEY,
			city        TEXT NOT NULL,
			reading     JSONB NOT NULL,
			alerts      JSONB NOT NULL,
			risk_score  INTEGER NOT NULL,
			risk_level  TEXT NOT NULL,
			simulated   BOOLEAN NOT NULL,
			observed_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_weather_snapshots_city ON weather_snapshots ((lower(city)), observed_at DESC);
	`
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const alertColumns = `id, city, disaster_type, severity, message, source, affected_area, lat, lon,
	valid_from, valid_until, instructions, status, reported_by, linked_reports, confirmed_by_system,
	ai_confidence, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (domain.DisasterAlert, error) {
	var (
		a          domain.DisasterAlert
		severity   string
		lat, lon   sql.NullFloat64
		reportedBy sql.NullString
	)
	err := row.Scan(&a.ID, &a.City, &a.DisasterType, &severity, &a.Message, &a.Source, &a.AffectedArea,
		&lat, &lon, &a.ValidFrom, &a.ValidUntil, pq.Array(&a.Instructions), &a.Status, &reportedBy,
		pq.Array(&a.LinkedReports), &a.ConfirmedBySystem, &a.AIConfidence, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return domain.DisasterAlert{}, err
	}
	if a.Severity, err = domain.ParseRiskLevel(severity); err != nil {
		return domain.DisasterAlert{}, fmt.Errorf("scan alert %s: %w", a.ID, err)
	}
	if lat.Valid && lon.Valid {
		a.Coordinates = &domain.Coordinates{Lat: lat.Float64, Lon: lon.Float64}
	}
	a.ReportedBy = reportedBy.String
	return a, nil
}

func collectAlerts(rows *sql.Rows) ([]domain.DisasterAlert, error) {
	defer rows.Close()
	out := make([]domain.DisasterAlert, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func nullCoords(c *domain.Coordinates) (sql.NullFloat64, sql.NullFloat64) {
	if c == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: c.Lat, Valid: true}, sql.NullFloat64{Float64: c.Lon, Valid: true}
}

// textArray encodes a nil slice as an empty array rather than NULL.
func textArray(s []string) any {
	if s == nil {
		s = []string{}
	}
	return pq.Array(s)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// InsertActiveAlert stores a as the active alert for its city and type in
// one transaction. Stale active rows whose window closed before a.ValidFrom
// are expired first and returned; a live active row yields
// domain.ErrPersistenceConflict.
func (p *Postgres) InsertActiveAlert(ctx context.Context, a domain.DisasterAlert) ([]domain.DisasterAlert, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin insert alert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		UPDATE disaster_alerts SET status = 'expired', updated_at = $3
		WHERE lower(city) = lower($1) AND disaster_type = $2 AND status = 'active' AND valid_until < $3
		RETURNING `+alertColumns,
		a.City, a.DisasterType, a.ValidFrom)
	if err != nil {
		return nil, fmt.Errorf("expire stale alert: %w", err)
	}
	expired, err := collectAlerts(rows)
	if err != nil {
		return nil, fmt.Errorf("expire stale alert: %w", err)
	}

	lat, lon := nullCoords(a.Coordinates)
	res, err := tx.ExecContext(ctx, `
		INSERT INTO disaster_alerts (`+alertColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 'active', $13, $14, $15, $16, $17, $18)
		ON CONFLICT ((lower(city)), disaster_type) WHERE status = 'active' DO NOTHING`,
		a.ID, a.City, a.DisasterType, a.Severity.String(), a.Message, a.Source, a.AffectedArea, lat, lon,
		a.ValidFrom, a.ValidUntil, textArray(a.Instructions), nullString(a.ReportedBy),
		textArray(a.LinkedReports), a.ConfirmedBySystem, a.AIConfidence, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("insert alert rows affected: %w", err)
	}
	if n == 0 {
		return nil, domain.ErrPersistenceConflict
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit insert alert: %w", err)
	}
	return expired, nil
}

func (p *Postgres) ActiveAlert(ctx context.Context, city string, t domain.DisasterType, now time.Time) (domain.DisasterAlert, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM disaster_alerts
		WHERE lower(city) = lower($1) AND disaster_type = $2 AND status = 'active' AND valid_until >= $3`,
		city, t, now)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DisasterAlert{}, &domain.NotFoundError{Kind: "active alert", ID: domain.CityKey(city) + "/" + string(t)}
	}
	if err != nil {
		return domain.DisasterAlert{}, fmt.Errorf("query active alert: %w", err)
	}
	return a, nil
}

func (p *Postgres) GetAlert(ctx context.Context, id string) (domain.DisasterAlert, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM disaster_alerts WHERE id = $1`, id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DisasterAlert{}, alertNotFound(id)
	}
	if err != nil {
		return domain.DisasterAlert{}, fmt.Errorf("query alert: %w", err)
	}
	return a, nil
}

func (p *Postgres) RaiseAlertConfidence(ctx context.Context, id string, confidence int, now time.Time) (domain.DisasterAlert, bool, error) {
	row := p.db.QueryRowContext(ctx, `UPDATE disaster_alerts SET ai_confidence = $2, updated_at = $3
		WHERE id = $1 AND status = 'active' AND ai_confidence < $2
		RETURNING `+alertColumns, id, confidence, now)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		current, getErr := p.GetAlert(ctx, id)
		return current, false, getErr
	}
	if err != nil {
		return domain.DisasterAlert{}, false, fmt.Errorf("raise alert confidence: %w", err)
	}
	return a, true, nil
}

// EscalateAlert applies e while the stored severity still equals e.From.
func (p *Postgres) EscalateAlert(ctx context.Context, id string, e Escalation, now time.Time) (domain.DisasterAlert, bool, error) {
	if e.To <= e.From {
		current, err := p.GetAlert(ctx, id)
		return current, false, err
	}
	row := p.db.QueryRowContext(ctx, `UPDATE disaster_alerts
		SET severity = $3, message = $4, instructions = $5, updated_at = $6
		WHERE id = $1 AND status = 'active' AND severity = $2
		RETURNING `+alertColumns,
		id, e.From.String(), e.To.String(), e.Message, textArray(e.Instructions), now)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		current, getErr := p.GetAlert(ctx, id)
		return current, false, getErr
	}
	if err != nil {
		return domain.DisasterAlert{}, false, fmt.Errorf("escalate alert: %w", err)
	}
	return a, true, nil
}

// LinkReport appends reportID to the alert's linked reports unless it is
// already linked.
func (p *Postgres) LinkReport(ctx context.Context, id, reportID string, now time.Time) (domain.DisasterAlert, error) {
	row := p.db.QueryRowContext(ctx, `UPDATE disaster_alerts
		SET linked_reports = array_append(linked_reports, $2), updated_at = $3
		WHERE id = $1 AND reported_by IS DISTINCT FROM $2 AND NOT ($2 = ANY(linked_reports))
		RETURNING `+alertColumns, id, reportID, now)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return p.GetAlert(ctx, id)
	}
	if err != nil {
		return domain.DisasterAlert{}, fmt.Errorf("link report: %w", err)
	}
	return a, nil
}

func (p *Postgres) ExpireAlerts(ctx context.Context, now time.Time) ([]domain.DisasterAlert, error) {
	rows, err := p.db.QueryContext(ctx, `UPDATE disaster_alerts SET status = 'expired', updated_at = $1
		WHERE status = 'active' AND valid_until < $1
		RETURNING `+alertColumns, now)
	if err != nil {
		return nil, fmt.Errorf("expire alerts: %w", err)
	}
	return collectAlerts(rows)
}

func (p *Postgres) CancelAlert(ctx context.Context, id string, now time.Time) (domain.DisasterAlert, error) {
	row := p.db.QueryRowContext(ctx, `UPDATE disaster_alerts SET status = 'cancelled', updated_at = $2
		WHERE id = $1 AND status = 'active' AND valid_until >= $2
		RETURNING `+alertColumns, id, now)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		current, getErr := p.GetAlert(ctx, id)
		if getErr != nil {
			return domain.DisasterAlert{}, getErr
		}
		return current, domain.ErrInvalidTransition
	}
	if err != nil {
		return domain.DisasterAlert{}, fmt.Errorf("cancel alert: %w", err)
	}
	return a, nil
}

func (p *Postgres) ConfirmAlertsForReport(ctx context.Context, reportID string, confidence int, now time.Time) ([]domain.DisasterAlert, error) {
	rows, err := p.db.QueryContext(ctx, `UPDATE disaster_alerts
		SET confirmed_by_system = TRUE, ai_confidence = $2, updated_at = $3
		WHERE (reported_by = $1 OR $1 = ANY(linked_reports)) AND status = 'active'
		RETURNING `+alertColumns, reportID, confidence, now)
	if err != nil {
		return nil, fmt.Errorf("confirm alerts: %w", err)
	}
	return collectAlerts(rows)
}

func (p *Postgres) ListAlerts(ctx context.Context, f AlertFilter) ([]domain.DisasterAlert, error) {
	var (
		where []string
		args  []any
	)
	if f.City != "" {
		args = append(args, f.City)
		where = append(where, fmt.Sprintf("lower(city) = lower($%d)", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	query := `SELECT ` + alertColumns + ` FROM disaster_alerts` + whereClause(where) + ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return collectAlerts(rows)
}

const reportColumns = `id, user_id, city, state, lat, lon, risk_type, risk_level, description, evidence,
	people_affected, property_damage, immediate_actions, help_needed, contact_number, status, verified_by,
	verification_time, response_time_minutes, resolution_time, ai_confidence, pattern_matched,
	similar_reports_count, created_at`

func scanReport(row rowScanner) (domain.RiskReport, error) {
	var (
		r              domain.RiskReport
		level          string
		lat, lon       sql.NullFloat64
		verifiedAt     sql.NullTime
		responseMins   sql.NullInt64
		resolutionTime sql.NullTime
	)
	err := row.Scan(&r.ID, &r.UserID, &r.Location.City, &r.Location.State, &lat, &lon, &r.RiskType, &level,
		&r.Description, pq.Array(&r.Evidence), &r.PeopleAffected, &r.PropertyDamage,
		pq.Array(&r.ImmediateActionsTaken), pq.Array(&r.HelpNeeded), &r.ContactNumber, &r.Status,
		&r.VerifiedBy, &verifiedAt, &responseMins, &resolutionTime, &r.AIAnalysis.Confidence,
		&r.AIAnalysis.PatternMatched, &r.AIAnalysis.SimilarReportsCount, &r.CreatedAt)
	if err != nil {
		return domain.RiskReport{}, err
	}
	if r.RiskLevel, err = domain.ParseRiskLevel(level); err != nil {
		return domain.RiskReport{}, fmt.Errorf("scan report %s: %w", r.ID, err)
	}
	if lat.Valid && lon.Valid {
		r.Location.Coordinates = &domain.Coordinates{Lat: lat.Float64, Lon: lon.Float64}
	}
	if verifiedAt.Valid {
		r.VerificationTime = &verifiedAt.Time
	}
	if responseMins.Valid {
		m := int(responseMins.Int64)
		r.ResponseTimeMinutes = &m
	}
	if resolutionTime.Valid {
		r.ResolutionTime = &resolutionTime.Time
	}
	return r, nil
}

func (p *Postgres) InsertReport(ctx context.Context, r domain.RiskReport) error {
	lat, lon := nullCoords(r.Location.Coordinates)
	_, err := p.db.ExecContext(ctx, `INSERT INTO risk_reports (`+reportColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`,
		r.ID, r.UserID, r.Location.City, r.Location.State, lat, lon, r.RiskType, r.RiskLevel.String(),
		r.Description, textArray(r.Evidence), r.PeopleAffected, r.PropertyDamage,
		textArray(r.ImmediateActionsTaken), textArray(r.HelpNeeded), r.ContactNumber, r.Status, r.VerifiedBy,
		r.VerificationTime, r.ResponseTimeMinutes, r.ResolutionTime, r.AIAnalysis.Confidence,
		r.AIAnalysis.PatternMatched, r.AIAnalysis.SimilarReportsCount, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (p *Postgres) GetReport(ctx context.Context, id string) (domain.RiskReport, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM risk_reports WHERE id = $1`, id)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RiskReport{}, reportNotFound(id)
	}
	if err != nil {
		return domain.RiskReport{}, fmt.Errorf("query report: %w", err)
	}
	return r, nil
}

// UpdateReport writes the mutable status fields of r when the stored status
// still equals expect.
func (p *Postgres) UpdateReport(ctx context.Context, r domain.RiskReport, expect domain.ReportStatus) error {
	res, err := p.db.ExecContext(ctx, `UPDATE risk_reports
		SET status = $2, verified_by = $3, verification_time = $4, response_time_minutes = $5, resolution_time = $6
		WHERE id = $1 AND status = $7`,
		r.ID, r.Status, r.VerifiedBy, r.VerificationTime, r.ResponseTimeMinutes, r.ResolutionTime, expect)
	if err != nil {
		return fmt.Errorf("update report: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update report rows affected: %w", err)
	}
	if n == 0 {
		if _, err := p.GetReport(ctx, r.ID); err != nil {
			return err
		}
		return domain.ErrPersistenceConflict
	}
	return nil
}

func (p *Postgres) CountSimilarReports(ctx context.Context, city string, t domain.DisasterType, since time.Time) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM risk_reports
		WHERE lower(city) = lower($1) AND risk_type = $2 AND created_at >= $3`, city, t, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count similar reports: %w", err)
	}
	return n, nil
}

func (p *Postgres) ListReports(ctx context.Context, f ReportFilter) ([]domain.RiskReport, error) {
	var (
		where []string
		args  []any
	)
	if f.City != "" {
		args = append(args, f.City)
		where = append(where, fmt.Sprintf("lower(city) = lower($%d)", len(args)))
	}
	if f.RiskType != "" {
		args = append(args, f.RiskType)
		where = append(where, fmt.Sprintf("risk_type = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	query := `SELECT ` + reportColumns + ` FROM risk_reports` + whereClause(where) + ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	out := make([]domain.RiskReport, 0)
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) InsertSnapshot(ctx context.Context, s domain.WeatherSnapshot) error {
	reading, err := json.Marshal(s.Reading)
	if err != nil {
		return fmt.Errorf("encode snapshot reading: %w", err)
	}
	flags := s.Alerts
	if flags == nil {
		flags = []domain.WeatherFlag{}
	}
	alerts, err := json.Marshal(flags)
	if err != nil {
		return fmt.Errorf("encode snapshot alerts: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO weather_snapshots
		(id, city, reading, alerts, risk_score, risk_level, simulated, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.Reading.City, string(reading), string(alerts), s.RiskScore, s.RiskLevel.String(), s.Simulated, s.Timestamp)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func (p *Postgres) ListSnapshots(ctx context.Context, city string, limit int) ([]domain.WeatherSnapshot, error) {
	query := `SELECT id, reading, alerts, risk_score, risk_level, simulated, observed_at
		FROM weather_snapshots WHERE lower(city) = lower($1) ORDER BY observed_at DESC`
	args := []any{city}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	out := make([]domain.WeatherSnapshot, 0)
	for rows.Next() {
		var (
			s               domain.WeatherSnapshot
			reading, alerts []byte
			level           string
		)
		if err := rows.Scan(&s.ID, &reading, &alerts, &s.RiskScore, &level, &s.Simulated, &s.Timestamp); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if err := json.Unmarshal(reading, &s.Reading); err != nil {
			return nil, fmt.Errorf("decode snapshot reading: %w", err)
		}
		if err := json.Unmarshal(alerts, &s.Alerts); err != nil {
			return nil, fmt.Errorf("decode snapshot alerts: %w", err)
		}
		if s.RiskLevel, err = domain.ParseRiskLevel(level); err != nil {
			return nil, fmt.Errorf("scan snapshot %s: %w", s.ID, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) LatestSnapshot(ctx context.Context, city string) (domain.WeatherSnapshot, error) {
	snaps, err := p.ListSnapshots(ctx, city, 1)
	if err != nil {
		return domain.WeatherSnapshot{}, err
	}
	if len(snaps) == 0 {
		return domain.WeatherSnapshot{}, &domain.NotFoundError{Kind: "snapshot", ID: domain.CityKey(city)}
	}
	return snaps[0], nil
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}
