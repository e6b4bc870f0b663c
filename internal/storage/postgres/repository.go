package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"goalpact/internal/core"
	"goalpact/internal/storage"
)

// Options configures the Postgres pool.
type Options struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
	Migrate         bool
}

func DefaultOptions(dsn string) Options {
	return Options{
		DSN:             dsn,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		QueryTimeout:    10 * time.Second,
		Migrate:         true,
	}
}

// Repository is the hosted relational backend. Every conditional transition is a
// single statement, so Postgres row locks give the at-most-once guarantees.
type Repository struct {
	db      *sqlx.DB
	timeout time.Duration
}

var _ storage.Store = (*Repository)(nil)

// Open connects, pings and optionally migrates.
func Open(ctx context.Context, opts Options) (*Repository, error) {
	if opts.DSN == "" {
		return nil, errors.New("postgres DSN is required")
	}

	db, err := sqlx.Open("postgres", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if opts.Migrate {
		if err := RunMigrations(db.DB); err != nil {
			db.Close()
			return nil, err
		}
	}

	return New(db, opts.QueryTimeout), nil
}

// New wraps an existing pool.
func New(db *sqlx.DB, timeout time.Duration) *Repository {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Repository{db: db, timeout: timeout}
}

func (r *Repository) Close() error { return r.db.Close() }

// DB exposes the pool for session-level features such as advisory locks.
func (r *Repository) DB() *sql.DB { return r.db.DB }

func (r *Repository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return pgErr("ping", r.db.PingContext(ctx))
}

type goalRow struct {
	ID            string    `db:"id"`
	UserID        string    `db:"user_id"`
	GroupID       string    `db:"group_id"`
	Title         string    `db:"title"`
	Frequency     string    `db:"frequency"`
	DueDate       time.Time `db:"due_date"`
	PenaltyPoints int64     `db:"penalty_points"`
	Completed     bool      `db:"completed"`
	Penalized     bool      `db:"penalized"`
	CreatedAt     time.Time `db:"created_at"`
}

func (g goalRow) toGoal() core.Goal {
	y, m, d := g.DueDate.Date()
	return core.Goal{
		ID:            g.ID,
		UserID:        g.UserID,
		GroupID:       g.GroupID,
		Title:         g.Title,
		Frequency:     g.Frequency,
		DueDate:       core.NewDate(y, int(m), d),
		PenaltyPoints: g.PenaltyPoints,
		Completed:     g.Completed,
		Penalized:     g.Penalized,
		CreatedAt:     g.CreatedAt,
	}
}

const goalColumns = `id, user_id, group_id, title, frequency, due_date, penalty_points, completed, penalized, created_at`

func (r *Repository) CreateGoal(ctx context.Context, g core.Goal) (core.Goal, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO goals (id, user_id, group_id, title, frequency, due_date, penalty_points, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		g.ID, g.UserID, g.GroupID, g.Title, g.Frequency, g.DueDate.Time, g.PenaltyPoints, g.CreatedAt)
	if err != nil {
		return core.Goal{}, pgErr("create goal", err)
	}
	g.Completed, g.Penalized = false, false
	return g, nil
}

func (r *Repository) GetGoal(ctx context.Context, id string) (core.Goal, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row goalRow
	if err := r.db.GetContext(ctx, &row, `SELECT `+goalColumns+` FROM goals WHERE id = $1`, id); err != nil {
		return core.Goal{}, pgErr("get goal", err)
	}
	return row.toGoal(), nil
}

func (r *Repository) ListGoalsByUser(ctx context.Context, userID string) ([]core.Goal, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []goalRow
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT `+goalColumns+` FROM goals WHERE user_id = $1 ORDER BY due_date ASC, created_at ASC`, userID); err != nil {
		return nil, pgErr("list goals", err)
	}
	goals := make([]core.Goal, 0, len(rows))
	for _, row := range rows {
		goals = append(goals, row.toGoal())
	}
	return goals, nil
}

func (r *Repository) CompleteGoal(ctx context.Context, id, userID string) error {
	qctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(qctx, `
		UPDATE goals SET completed = TRUE
		WHERE id = $1 AND user_id = $2 AND NOT completed AND NOT penalized`, id, userID)
	if err != nil {
		return pgErr("complete goal", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return pgErr("complete goal", err)
	} else if n == 1 {
		return nil
	}

	g, err := r.GetGoal(ctx, id)
	if err != nil {
		return err
	}
	if g.UserID != userID {
		return fmt.Errorf("complete goal: %w", core.ErrNotFound)
	}
	return fmt.Errorf("complete goal %s: %w", id, core.ErrGoalSettled)
}

func (r *Repository) ListUsersWithOverdueGoals(ctx context.Context, today core.Date) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var users []string
	if err := r.db.SelectContext(ctx, &users, `
		SELECT DISTINCT user_id FROM goals
		WHERE NOT completed AND NOT penalized AND due_date < $1
		ORDER BY user_id`, today.Time); err != nil {
		return nil, pgErr("list overdue owners", err)
	}
	return users, nil
}

// applyPenaltyQuery flips the flag, credits the fund and appends the ledger row
// in one statement. A concurrent caller re-evaluates the predicate after the
// row lock is released and matches nothing.
const applyPenaltyQuery = `
WITH penalized AS (
	UPDATE goals SET penalized = TRUE
	WHERE id = $1 AND NOT completed AND NOT penalized AND due_date < $2
	RETURNING id, group_id, user_id, penalty_points
), credited AS (
	UPDATE goal_groups grp SET fund_points = grp.fund_points + p.penalty_points
	FROM penalized p
	WHERE grp.id = p.group_id
	RETURNING grp.id
)
INSERT INTO penalty_credits (goal_id, group_id, user_id, points, applied_at)
SELECT p.id, p.group_id, p.user_id, p.penalty_points, now()
FROM penalized p
WHERE EXISTS (SELECT 1 FROM credited)
RETURNING group_id, user_id, points`

func (r *Repository) ApplyPenalty(ctx context.Context, goalID string, today core.Date) (core.PenaltyOutcome, error) {
	qctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var credit struct {
		GroupID string `db:"group_id"`
		UserID  string `db:"user_id"`
		Points  int64  `db:"points"`
	}
	err := r.db.QueryRowxContext(qctx, applyPenaltyQuery, goalID, today.Time).StructScan(&credit)
	if errors.Is(err, sql.ErrNoRows) {
		g, err := r.GetGoal(ctx, goalID)
		if err != nil {
			return "", err
		}
		return storage.SettledOutcome(g, today), nil
	}
	if err != nil {
		return "", pgErr("apply penalty", err)
	}

	slog.DebugContext(ctx, "Penalty credit committed",
		"goal_id", goalID,
		"group_id", credit.GroupID,
		"user_id", credit.UserID,
		"penalty_points", credit.Points)
	return core.Applied, nil
}

func (r *Repository) ListCredits(ctx context.Context, groupID string, limit int) ([]core.PenaltyCredit, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []struct {
		GoalID    string    `db:"goal_id"`
		GroupID   string    `db:"group_id"`
		UserID    string    `db:"user_id"`
		Points    int64     `db:"points"`
		AppliedAt time.Time `db:"applied_at"`
	}
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT goal_id, group_id, user_id, points, applied_at FROM penalty_credits
		WHERE group_id = $1 ORDER BY applied_at DESC LIMIT $2`, groupID, limit); err != nil {
		return nil, pgErr("list credits", err)
	}
	out := make([]core.PenaltyCredit, 0, len(rows))
	for _, c := range rows {
		out = append(out, core.PenaltyCredit{
			GoalID: c.GoalID, GroupID: c.GroupID, UserID: c.UserID, Points: c.Points, AppliedAt: c.AppliedAt,
		})
	}
	return out, nil
}

func (r *Repository) CreateGroup(ctx context.Context, g core.Group, ownerID string) (core.Group, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	g.FundPoints = 0

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return core.Group{}, pgErr("begin create group", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO goal_groups (id, name, fund_points, created_at) VALUES ($1, $2, 0, $3)`,
		g.ID, g.Name, g.CreatedAt); err != nil {
		return core.Group{}, pgErr("create group", err)
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO group_members (user_id, group_id, joined_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING`, ownerID, g.ID, g.CreatedAt)
	if err != nil {
		return core.Group{}, pgErr("add group owner", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return core.Group{}, pgErr("add group owner", err)
	} else if n == 0 {
		return core.Group{}, fmt.Errorf("create group: %w", core.ErrAlreadyMember)
	}

	if err := tx.Commit(); err != nil {
		return core.Group{}, pgErr("commit create group", err)
	}
	return g, nil
}

func (r *Repository) GetGroup(ctx context.Context, id string) (core.Group, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row struct {
		ID         string    `db:"id"`
		Name       string    `db:"name"`
		FundPoints int64     `db:"fund_points"`
		CreatedAt  time.Time `db:"created_at"`
	}
	if err := r.db.GetContext(ctx, &row,
		`SELECT id, name, fund_points, created_at FROM goal_groups WHERE id = $1`, id); err != nil {
		return core.Group{}, pgErr("get group", err)
	}
	return core.Group{ID: row.ID, Name: row.Name, FundPoints: row.FundPoints, CreatedAt: row.CreatedAt}, nil
}

func (r *Repository) AddMember(ctx context.Context, userID, groupID string) (core.Membership, error) {
	qctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	m := core.Membership{UserID: userID, GroupID: groupID}
	err := r.db.QueryRowxContext(qctx, `
		INSERT INTO group_members (user_id, group_id, joined_at)
		SELECT $1, id, now() FROM goal_groups WHERE id = $2
		ON CONFLICT (user_id) DO NOTHING
		RETURNING joined_at`, userID, groupID).Scan(&m.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Either the group is missing or the user already has one.
		if _, err := r.GetGroup(ctx, groupID); err != nil {
			return core.Membership{}, err
		}
		return core.Membership{}, fmt.Errorf("join group: %w", core.ErrAlreadyMember)
	}
	if err != nil {
		return core.Membership{}, pgErr("join group", err)
	}
	return m, nil
}

type membershipRow struct {
	UserID   string    `db:"user_id"`
	GroupID  string    `db:"group_id"`
	JoinedAt time.Time `db:"joined_at"`
}

func (r *Repository) MembershipForUser(ctx context.Context, userID string) (core.Membership, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row membershipRow
	if err := r.db.GetContext(ctx, &row,
		`SELECT user_id, group_id, joined_at FROM group_members WHERE user_id = $1`, userID); err != nil {
		return core.Membership{}, pgErr("get membership", err)
	}
	return core.Membership(row), nil
}

func (r *Repository) ListMembers(ctx context.Context, groupID string) ([]core.Membership, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []membershipRow
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT user_id, group_id, joined_at FROM group_members WHERE group_id = $1 ORDER BY joined_at, user_id`, groupID); err != nil {
		return nil, pgErr("list members", err)
	}
	out := make([]core.Membership, 0, len(rows))
	for _, row := range rows {
		out = append(out, core.Membership(row))
	}
	return out, nil
}

func (r *Repository) UpsertProfile(ctx context.Context, p core.Profile) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profiles (id, username, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username, updated_at = now()`, p.ID, p.Username)
	return pgErr("upsert profile", err)
}

func (r *Repository) GetProfile(ctx context.Context, id string) (core.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var p core.Profile
	if err := r.db.QueryRowxContext(ctx, `SELECT id, username FROM profiles WHERE id = $1`, id).Scan(&p.ID, &p.Username); err != nil {
		return core.Profile{}, pgErr("get profile", err)
	}
	return p, nil
}

func (r *Repository) AddNotification(ctx context.Context, n core.Notification) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, goal_id, group_id, actor_id, title, points, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, goal_id) DO NOTHING`,
		n.ID, n.UserID, n.GoalID, n.GroupID, n.ActorID, n.Title, n.Points, n.CreatedAt)
	if err != nil {
		return false, pgErr("add notification", err)
	}
	written, err := res.RowsAffected()
	if err != nil {
		return false, pgErr("add notification", err)
	}
	return written == 1, nil
}

func (r *Repository) ListNotifications(ctx context.Context, userID string, limit int) ([]core.Notification, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []struct {
		ID        string    `db:"id"`
		UserID    string    `db:"user_id"`
		GoalID    string    `db:"goal_id"`
		GroupID   string    `db:"group_id"`
		ActorID   string    `db:"actor_id"`
		Title     string    `db:"title"`
		Points    int64     `db:"points"`
		CreatedAt time.Time `db:"created_at"`
	}
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, goal_id, group_id, actor_id, title, points, created_at FROM notifications
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit); err != nil {
		return nil, pgErr("list notifications", err)
	}
	out := make([]core.Notification, 0, len(rows))
	for _, n := range rows {
		out = append(out, core.Notification(n))
	}
	return out, nil
}

// pgErr maps driver errors onto the core sentinels.
func pgErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23503": // foreign_key_violation
			return fmt.Errorf("%s: %w: %s", op, core.ErrNotFound, pqErr.Message)
		case "23505": // unique_violation
			return fmt.Errorf("%s: duplicate key %s: %w", op, pqErr.Constraint, core.ErrStoreUnavailable)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, core.ErrStoreUnavailable, err)
}
