package pg

import (
	"context"
	"database/sql"
	"strings"

	"github.com/haontuhcmut/lab-services/internal/ids"
	"github.com/haontuhcmut/lab-services/internal/store"
)

// Store bundles the PostgreSQL-backed user and detection stores over one
// connection pool.
type Store struct {
	Users      *Users
	Detections *Detections

	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{
		Users:      &Users{db: db},
		Detections: &Detections{db: db},
		db:         db,
	}
}

// EnsureSchema creates the tables on first boot. Real deployments run
// migrations; this mirrors the create-on-startup behavior of the service.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
create table if not exists users (
	uid             text primary key,
	username        text not null unique,
	email           text not null unique,
	first_name      text not null,
	last_name       text not null,
	role            text not null default 'user',
	is_verified     boolean not null default false,
	hashed_password text not null,
	created_at      timestamptz not null default now()
);
create table if not exists yolo_outputs (
	uid           text primary key,
	sample_name   text,
	total_objects integer not null,
	user_id       text not null references users(uid),
	created_at    timestamptz not null default now()
);`)
	return err
}

// Users ---------------------------------------------------------------------

type Users struct{ db *sql.DB }

var _ store.UserStore = (*Users)(nil)

func (s *Users) Create(ctx context.Context, u *store.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.Role == "" {
		u.Role = store.RoleUser
	}
	_, err := s.db.ExecContext(ctx,
		`insert into users(uid, username, email, first_name, last_name, role, is_verified, hashed_password)
		 values($1,$2,$3,$4,$5,$6,$7,$8)`,
		u.ID, u.Username, strings.ToLower(u.Email), u.FirstName, u.LastName, u.Role, u.Verified, u.PasswordHash,
	)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return store.ErrAlreadyExists
	}
	return err
}

func (s *Users) Find(ctx context.Context, id string) (*store.User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, selectUser+` where uid=$1`, id))
}

func (s *Users) FindByEmail(ctx context.Context, email string) (*store.User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, selectUser+` where email=$1`, strings.ToLower(email)))
}

func (s *Users) FindByUsername(ctx context.Context, username string) (*store.User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, selectUser+` where username=$1`, username))
}

func (s *Users) SetVerified(ctx context.Context, id string, verified bool) error {
	res, err := s.db.ExecContext(ctx, `update users set is_verified=$1 where uid=$2`, verified, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Users) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `update users set hashed_password=$1 where uid=$2`, passwordHash, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

const selectUser = `select uid, username, email, first_name, last_name, role, is_verified, hashed_password, created_at from users`

func (s *Users) scanOne(row *sql.Row) (*store.User, error) {
	var u store.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.Role, &u.Verified, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Detections ----------------------------------------------------------------

type Detections struct{ db *sql.DB }

var _ store.DetectionStore = (*Detections)(nil)

func (s *Detections) Create(ctx context.Context, d *store.Detection) error {
	if d.ID == "" {
		d.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into yolo_outputs(uid, sample_name, total_objects, user_id) values($1,$2,$3,$4)`,
		d.ID, d.SampleName, d.TotalObjects, d.UserID,
	)
	return err
}

const selectDetection = `select uid, sample_name, total_objects, user_id, created_at from yolo_outputs`

func (s *Detections) ListByUser(ctx context.Context, userID string, limit int) ([]store.Detection, error) {
	rows, err := s.db.QueryContext(ctx,
		selectDetection+` where user_id=$1 order by created_at desc limit $2`, userID, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanDetections(rows)
}

func (s *Detections) ListAll(ctx context.Context, limit int) ([]store.Detection, error) {
	rows, err := s.db.QueryContext(ctx,
		selectDetection+` order by created_at desc limit $1`, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanDetections(rows)
}

func scanDetections(rows *sql.Rows) ([]store.Detection, error) {
	defer rows.Close()
	var out []store.Detection
	for rows.Next() {
		var (
			d      store.Detection
			sample sql.NullString
		)
		if err := rows.Scan(&d.ID, &sample, &d.TotalObjects, &d.UserID, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.SampleName = sample.String
		out = append(out, d)
	}
	return out, rows.Err()
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 100
	}
	return limit
}
