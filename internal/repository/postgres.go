package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventsphere/engine/internal/model"
)

// NewPostgresStore wires the four pgx-backed repositories over a shared
// connection pool.
func NewPostgresStore(db *pgxpool.Pool) *Store {
	return &Store{
		Events:        &postgresEventRepository{db: db},
		Registrations: &postgresRegistrationRepository{db: db},
		Attendance:    &postgresAttendanceRepository{db: db},
		EditRequests:  &postgresEditRequestRepository{db: db},
	}
}

// ─── Events ───────────────────────────────────────────────────────────────────

type postgresEventRepository struct {
	db *pgxpool.Pool
}

const eventColumns = `id, title, description, category, venue, start_time, end_time,
	total_seats, seats_available, status, organizer_id, version, created_at, updated_at`

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Category, &e.Venue,
		&e.StartTime, &e.EndTime, &e.TotalSeats, &e.SeatsAvailable,
		&e.Status, &e.OrganizerID, &e.Version, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrEventNotFound
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}
	return &e, nil
}

func (r *postgresEventRepository) Create(ctx context.Context, e *model.Event) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		e.ID, e.Title, e.Description, e.Category, e.Venue, e.StartTime, e.EndTime,
		e.TotalSeats, e.SeatsAvailable, e.Status, e.OrganizerID, e.Version,
		e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (r *postgresEventRepository) GetByID(ctx context.Context, id string) (*model.Event, error) {
	row := r.db.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	return scanEvent(row)
}

func (r *postgresEventRepository) List(ctx context.Context, status model.EventStatus) ([]model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY start_time DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// Update writes the event only if the stored version still matches the
// caller's copy, bumping the version in the same statement. A missing
// row is reported as not-found; a version mismatch as ErrVersionConflict.
func (r *postgresEventRepository) Update(ctx context.Context, e *model.Event) error {
	now := time.Now().UTC()
	tag, err := r.db.Exec(ctx,
		`UPDATE events
		 SET title = $3, description = $4, category = $5, venue = $6,
		     start_time = $7, end_time = $8, total_seats = $9,
		     seats_available = $10, status = $11, version = version + 1,
		     updated_at = $12
		 WHERE id = $1 AND version = $2`,
		e.ID, e.Version, e.Title, e.Description, e.Category, e.Venue,
		e.StartTime, e.EndTime, e.TotalSeats, e.SeatsAvailable, e.Status, now,
	)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, e.ID); getErr != nil {
			return getErr
		}
		return ErrVersionConflict
	}
	e.Version++
	e.UpdatedAt = now
	return nil
}

// ─── Registrations ────────────────────────────────────────────────────────────

type postgresRegistrationRepository struct {
	db *pgxpool.Pool
}

func (r *postgresRegistrationRepository) Create(ctx context.Context, reg *model.Registration) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO registrations (id, event_id, user_id, status, registered_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		reg.ID, reg.EventID, reg.UserID, reg.Status, reg.RegisteredAt,
	)
	if err != nil {
		// The partial unique index on active (event_id, user_id) pairs
		// is the last line of defense against a duplicate racing past
		// the service-level check.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return model.ErrAlreadyRegistered
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

func (r *postgresRegistrationRepository) GetByID(ctx context.Context, id string) (*model.Registration, error) {
	var reg model.Registration
	err := r.db.QueryRow(ctx,
		`SELECT id, event_id, user_id, status, registered_at
		 FROM registrations WHERE id = $1`,
		id,
	).Scan(&reg.ID, &reg.EventID, &reg.UserID, &reg.Status, &reg.RegisteredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return &reg, nil
}

func (r *postgresRegistrationRepository) GetActiveByEventAndUser(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	var reg model.Registration
	err := r.db.QueryRow(ctx,
		`SELECT id, event_id, user_id, status, registered_at
		 FROM registrations
		 WHERE event_id = $1 AND user_id = $2 AND status <> $3`,
		eventID, userID, model.RegistrationStatusCancelled,
	).Scan(&reg.ID, &reg.EventID, &reg.UserID, &reg.Status, &reg.RegisteredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("get active registration: %w", err)
	}
	return &reg, nil
}

func (r *postgresRegistrationRepository) listBy(ctx context.Context, query string, arg any) ([]model.Registration, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		var reg model.Registration
		if err := rows.Scan(&reg.ID, &reg.EventID, &reg.UserID, &reg.Status, &reg.RegisteredAt); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

func (r *postgresRegistrationRepository) ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	return r.listBy(ctx,
		`SELECT id, event_id, user_id, status, registered_at
		 FROM registrations WHERE event_id = $1
		 ORDER BY registered_at ASC`,
		eventID)
}

func (r *postgresRegistrationRepository) ListByUser(ctx context.Context, userID string) ([]model.Registration, error) {
	return r.listBy(ctx,
		`SELECT id, event_id, user_id, status, registered_at
		 FROM registrations WHERE user_id = $1
		 ORDER BY registered_at DESC`,
		userID)
}

func (r *postgresRegistrationRepository) UpdateStatus(ctx context.Context, id string, status model.RegistrationStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE registrations SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update registration status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrRegistrationNotFound
	}
	return nil
}

// ─── Attendance ───────────────────────────────────────────────────────────────

type postgresAttendanceRepository struct {
	db *pgxpool.Pool
}

func (r *postgresAttendanceRepository) Create(ctx context.Context, rec *model.AttendanceRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO attendance_records (id, user_id, event_id, method, marked_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.UserID, rec.EventID, rec.Method, rec.MarkedAt,
	)
	if err != nil {
		return fmt.Errorf("insert attendance record: %w", err)
	}
	return nil
}

func (r *postgresAttendanceRepository) GetByEventAndUser(ctx context.Context, eventID, userID string) (*model.AttendanceRecord, error) {
	var rec model.AttendanceRecord
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, event_id, method, marked_at
		 FROM attendance_records WHERE event_id = $1 AND user_id = $2`,
		eventID, userID,
	).Scan(&rec.ID, &rec.UserID, &rec.EventID, &rec.Method, &rec.MarkedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrAttendanceNotFound
		}
		return nil, fmt.Errorf("get attendance record: %w", err)
	}
	return &rec, nil
}

func (r *postgresAttendanceRepository) ListByEvent(ctx context.Context, eventID string) ([]model.AttendanceRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, event_id, method, marked_at
		 FROM attendance_records WHERE event_id = $1
		 ORDER BY marked_at DESC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list attendance records: %w", err)
	}
	defer rows.Close()

	var recs []model.AttendanceRecord
	for rows.Next() {
		var rec model.AttendanceRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.EventID, &rec.Method, &rec.MarkedAt); err != nil {
			return nil, fmt.Errorf("scan attendance record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// ─── Edit requests ────────────────────────────────────────────────────────────

type postgresEditRequestRepository struct {
	db *pgxpool.Pool
}

func (r *postgresEditRequestRepository) Create(ctx context.Context, req *model.EventEditRequest) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO event_edit_requests
		 (id, event_id, requester_id, original_data, requested_data, status,
		  admin_notes, processed_by, processed_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		req.ID, req.EventID, req.RequesterID, req.OriginalData, req.Requested,
		req.Status, req.AdminNotes, nullIfEmpty(req.ProcessedBy), req.ProcessedAt, req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert edit request: %w", err)
	}
	return nil
}

func scanEditRequest(row pgx.Row) (*model.EventEditRequest, error) {
	var req model.EventEditRequest
	var processedBy *string
	err := row.Scan(&req.ID, &req.EventID, &req.RequesterID, &req.OriginalData,
		&req.Requested, &req.Status, &req.AdminNotes, &processedBy,
		&req.ProcessedAt, &req.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrEditRequestNotFound
		}
		return nil, fmt.Errorf("scan edit request: %w", err)
	}
	if processedBy != nil {
		req.ProcessedBy = *processedBy
	}
	return &req, nil
}

func (r *postgresEditRequestRepository) GetByID(ctx context.Context, id string) (*model.EventEditRequest, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, event_id, requester_id, original_data, requested_data, status,
		        admin_notes, processed_by, processed_at, created_at
		 FROM event_edit_requests WHERE id = $1`,
		id)
	return scanEditRequest(row)
}

func (r *postgresEditRequestRepository) ListPending(ctx context.Context) ([]model.EventEditRequest, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, event_id, requester_id, original_data, requested_data, status,
		        admin_notes, processed_by, processed_at, created_at
		 FROM event_edit_requests WHERE status = $1
		 ORDER BY created_at DESC`,
		model.EditRequestStatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending edit requests: %w", err)
	}
	defer rows.Close()

	var reqs []model.EventEditRequest
	for rows.Next() {
		req, err := scanEditRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, *req)
	}
	return reqs, rows.Err()
}

func (r *postgresEditRequestRepository) Update(ctx context.Context, req *model.EventEditRequest) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE event_edit_requests
		 SET status = $2, admin_notes = $3, processed_by = $4, processed_at = $5
		 WHERE id = $1`,
		req.ID, req.Status, req.AdminNotes, nullIfEmpty(req.ProcessedBy), req.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("update edit request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrEditRequestNotFound
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
