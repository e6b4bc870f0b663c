package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"goalpact/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is the embedded entity store. All writes go through a single
// connection and every transaction starts IMMEDIATE, so the penalty update and the
// fund increment are serialized against other writers, including other processes
// sharing the same file (they wait on busy_timeout).
type SQLiteRepository struct {
	db *sql.DB
}

var _ Store = (*SQLiteRepository)(nil)

// SQLiteDSN builds the modernc DSN with the pragmas the repository relies on.
func SQLiteDSN(dbPath string) string {
	return "file:" + dbPath +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_txlock=immediate"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := SQLiteDSN(dbPath)

	// Run migrations before the main pool opens the file
	if _, err := RunMigrations(dsn); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

// CreateGoal implements GoalStore
func (r *SQLiteRepository) CreateGoal(ctx context.Context, g core.Goal) (core.Goal, error) {
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO goals (id, user_id, group_id, title, frequency, due_date, penalty_points, completed, penalized, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, ?)`,
		g.ID, g.UserID, g.GroupID, g.Title, g.Frequency, g.DueDate.String(), g.PenaltyPoints, g.CreatedAt)
	if err != nil {
		return core.Goal{}, storeErr("create goal", err)
	}
	g.Completed, g.Penalized = false, false

	slog.InfoContext(ctx, "Goal saved to SQLite",
		"goal_id", g.ID,
		"user_id", g.UserID,
		"group_id", g.GroupID,
		"due_date", g.DueDate.String(),
		"penalty_points", g.PenaltyPoints)

	return g, nil
}

const goalColumns = `id, user_id, group_id, title, frequency, due_date, penalty_points, completed, penalized, created_at`

// GetGoal implements GoalStore
func (r *SQLiteRepository) GetGoal(ctx context.Context, id string) (core.Goal, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = ?`, id)
	g, err := scanGoal(row)
	if err != nil {
		return core.Goal{}, storeErr("get goal", err)
	}
	return g, nil
}

// ListGoalsByUser implements GoalStore
func (r *SQLiteRepository) ListGoalsByUser(ctx context.Context, userID string) ([]core.Goal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE user_id = ? ORDER BY due_date ASC, created_at ASC`, userID)
	if err != nil {
		return nil, storeErr("list goals", err)
	}
	defer rows.Close()

	var goals []core.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, storeErr("scan goal", err)
		}
		goals = append(goals, g)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list goals", err)
	}
	return goals, nil
}

// CompleteGoal implements GoalStore
func (r *SQLiteRepository) CompleteGoal(ctx context.Context, id, userID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE goals SET completed = 1
		WHERE id = ? AND user_id = ? AND completed = 0 AND penalized = 0`, id, userID)
	if err != nil {
		return storeErr("complete goal", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("complete goal", err)
	}
	if n == 1 {
		slog.InfoContext(ctx, "Goal marked completed", "goal_id", id, "user_id", userID)
		return nil
	}

	// Lost the predicate: tell a missing goal apart from a settled one.
	g, err := r.GetGoal(ctx, id)
	if err != nil {
		return err
	}
	if g.UserID != userID {
		return fmt.Errorf("complete goal: %w", core.ErrNotFound)
	}
	return fmt.Errorf("complete goal %s: %w", id, core.ErrGoalSettled)
}

// ListUsersWithOverdueGoals implements GoalStore
func (r *SQLiteRepository) ListUsersWithOverdueGoals(ctx context.Context, today core.Date) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT user_id FROM goals
		WHERE completed = 0 AND penalized = 0 AND due_date < ?
		ORDER BY user_id`, today.String())
	if err != nil {
		return nil, storeErr("list overdue owners", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr("scan overdue owner", err)
		}
		users = append(users, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list overdue owners", err)
	}
	return users, nil
}

// ApplyPenalty implements PenaltyStore
func (r *SQLiteRepository) ApplyPenalty(ctx context.Context, goalID string, today core.Date) (core.PenaltyOutcome, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", storeErr("begin penalty", err)
	}
	defer tx.Rollback()

	var (
		groupID, userID string
		points          int64
	)
	err = tx.QueryRowContext(ctx, `
		UPDATE goals SET penalized = 1
		WHERE id = ? AND completed = 0 AND penalized = 0 AND due_date < ?
		RETURNING group_id, user_id, penalty_points`, goalID, today.String()).
		Scan(&groupID, &userID, &points)
	if errors.Is(err, sql.ErrNoRows) {
		if err := tx.Rollback(); err != nil {
			return "", storeErr("rollback penalty", err)
		}
		return r.unappliedOutcome(ctx, goalID, today)
	}
	if err != nil {
		return "", storeErr("mark goal penalized", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE goal_groups SET fund_points = fund_points + ? WHERE id = ?`, points, groupID)
	if err != nil {
		return "", storeErr("credit group fund", err)
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		return "", fmt.Errorf("credit group fund %s: %w", groupID, core.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO penalty_credits (goal_id, group_id, user_id, points, applied_at)
		VALUES (?, ?, ?, ?, ?)`, goalID, groupID, userID, points, time.Now().UTC()); err != nil {
		return "", storeErr("append penalty credit", err)
	}

	if err := tx.Commit(); err != nil {
		return "", storeErr("commit penalty", err)
	}

	slog.DebugContext(ctx, "Penalty credit committed",
		"goal_id", goalID,
		"group_id", groupID,
		"user_id", userID,
		"penalty_points", points)

	return core.Applied, nil
}

// unappliedOutcome explains why the conditional update matched no row.
func (r *SQLiteRepository) unappliedOutcome(ctx context.Context, goalID string, today core.Date) (core.PenaltyOutcome, error) {
	g, err := r.GetGoal(ctx, goalID)
	if err != nil {
		return "", err
	}
	return SettledOutcome(g, today), nil
}

// ListCredits implements PenaltyStore
func (r *SQLiteRepository) ListCredits(ctx context.Context, groupID string, limit int) ([]core.PenaltyCredit, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT goal_id, group_id, user_id, points, applied_at FROM penalty_credits
		WHERE group_id = ? ORDER BY applied_at DESC LIMIT ?`, groupID, limit)
	if err != nil {
		return nil, storeErr("list credits", err)
	}
	defer rows.Close()

	var credits []core.PenaltyCredit
	for rows.Next() {
		var c core.PenaltyCredit
		if err := rows.Scan(&c.GoalID, &c.GroupID, &c.UserID, &c.Points, &c.AppliedAt); err != nil {
			return nil, storeErr("scan credit", err)
		}
		credits = append(credits, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list credits", err)
	}
	return credits, nil
}

// CreateGroup implements GroupStore
func (r *SQLiteRepository) CreateGroup(ctx context.Context, g core.Group, ownerID string) (core.Group, error) {
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	g.FundPoints = 0

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Group{}, storeErr("begin create group", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO goal_groups (id, name, fund_points, created_at) VALUES (?, ?, 0, ?)`,
		g.ID, g.Name, g.CreatedAt); err != nil {
		return core.Group{}, storeErr("create group", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO group_members (user_id, group_id, joined_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING`, ownerID, g.ID, g.CreatedAt)
	if err != nil {
		return core.Group{}, storeErr("add group owner", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return core.Group{}, storeErr("add group owner", err)
	} else if n == 0 {
		return core.Group{}, fmt.Errorf("create group: %w", core.ErrAlreadyMember)
	}

	if err := tx.Commit(); err != nil {
		return core.Group{}, storeErr("commit create group", err)
	}

	slog.InfoContext(ctx, "Group created", "group_id", g.ID, "owner_id", ownerID)
	return g, nil
}

// GetGroup implements GroupStore
func (r *SQLiteRepository) GetGroup(ctx context.Context, id string) (core.Group, error) {
	var g core.Group
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, fund_points, created_at FROM goal_groups WHERE id = ?`, id).
		Scan(&g.ID, &g.Name, &g.FundPoints, &g.CreatedAt)
	if err != nil {
		return core.Group{}, storeErr("get group", err)
	}
	return g, nil
}

// AddMember implements GroupStore
func (r *SQLiteRepository) AddMember(ctx context.Context, userID, groupID string) (core.Membership, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Membership{}, storeErr("begin join group", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM goal_groups WHERE id = ?`, groupID).Scan(&exists); err != nil {
		return core.Membership{}, storeErr("find group", err)
	}

	m := core.Membership{UserID: userID, GroupID: groupID, JoinedAt: time.Now().UTC()}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO group_members (user_id, group_id, joined_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING`, m.UserID, m.GroupID, m.JoinedAt)
	if err != nil {
		return core.Membership{}, storeErr("join group", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return core.Membership{}, storeErr("join group", err)
	} else if n == 0 {
		return core.Membership{}, fmt.Errorf("join group: %w", core.ErrAlreadyMember)
	}

	if err := tx.Commit(); err != nil {
		return core.Membership{}, storeErr("commit join group", err)
	}
	return m, nil
}

// MembershipForUser implements GroupStore
func (r *SQLiteRepository) MembershipForUser(ctx context.Context, userID string) (core.Membership, error) {
	var m core.Membership
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, group_id, joined_at FROM group_members WHERE user_id = ?`, userID).
		Scan(&m.UserID, &m.GroupID, &m.JoinedAt)
	if err != nil {
		return core.Membership{}, storeErr("get membership", err)
	}
	return m, nil
}

// ListMembers implements GroupStore
func (r *SQLiteRepository) ListMembers(ctx context.Context, groupID string) ([]core.Membership, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, group_id, joined_at FROM group_members WHERE group_id = ? ORDER BY joined_at, user_id`, groupID)
	if err != nil {
		return nil, storeErr("list members", err)
	}
	defer rows.Close()

	var members []core.Membership
	for rows.Next() {
		var m core.Membership
		if err := rows.Scan(&m.UserID, &m.GroupID, &m.JoinedAt); err != nil {
			return nil, storeErr("scan member", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list members", err)
	}
	return members, nil
}

// UpsertProfile implements ProfileStore
func (r *SQLiteRepository) UpsertProfile(ctx context.Context, p core.Profile) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profiles (id, username, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET username = excluded.username, updated_at = excluded.updated_at`,
		p.ID, p.Username, time.Now().UTC())
	if err != nil {
		return storeErr("upsert profile", err)
	}
	return nil
}

// GetProfile implements ProfileStore
func (r *SQLiteRepository) GetProfile(ctx context.Context, id string) (core.Profile, error) {
	var p core.Profile
	err := r.db.QueryRowContext(ctx, `SELECT id, username FROM profiles WHERE id = ?`, id).Scan(&p.ID, &p.Username)
	if err != nil {
		return core.Profile{}, storeErr("get profile", err)
	}
	return p, nil
}

// AddNotification implements NotificationStore
func (r *SQLiteRepository) AddNotification(ctx context.Context, n core.Notification) (bool, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, goal_id, group_id, actor_id, title, points, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, goal_id) DO NOTHING`,
		n.ID, n.UserID, n.GoalID, n.GroupID, n.ActorID, n.Title, n.Points, n.CreatedAt)
	if err != nil {
		return false, storeErr("add notification", err)
	}
	written, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("add notification", err)
	}
	return written == 1, nil
}

// ListNotifications implements NotificationStore
func (r *SQLiteRepository) ListNotifications(ctx context.Context, userID string, limit int) ([]core.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, goal_id, group_id, actor_id, title, points, created_at FROM notifications
		WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, storeErr("list notifications", err)
	}
	defer rows.Close()

	var out []core.Notification
	for rows.Next() {
		var n core.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.GoalID, &n.GroupID, &n.ActorID, &n.Title, &n.Points, &n.CreatedAt); err != nil {
			return nil, storeErr("scan notification", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list notifications", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGoal(s rowScanner) (core.Goal, error) {
	var (
		g   core.Goal
		due string
	)
	if err := s.Scan(&g.ID, &g.UserID, &g.GroupID, &g.Title, &g.Frequency, &due,
		&g.PenaltyPoints, &g.Completed, &g.Penalized, &g.CreatedAt); err != nil {
		return core.Goal{}, err
	}
	d, err := core.ParseDate(due)
	if err != nil {
		return core.Goal{}, fmt.Errorf("goal %s: %w", g.ID, err)
	}
	g.DueDate = d
	return g, nil
}
