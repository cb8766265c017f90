package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/envtree/internal/crypt"
	"github.com/alfredjeanlab/envtree/internal/model"
)

// userColumns is the column list used for SELECT statements on the users table.
const userColumns = `id, email, name, username, auth_token, created_at`

// projectColumns is the column list for the projects table.
const projectColumns = `id, name, description, created_at, updated_at`

// configColumns is the column list for the configs table.
const configColumns = `id, project_id, name, data, version,
	linked_config_id, linked_project_config_id, created_at, updated_at`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// execOne runs a statement that must touch exactly one row.
func execOne(ctx context.Context, db executor, what, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return translate(err, what)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return translate(sql.ErrNoRows, what)
	}
	return nil
}

// Users

func queryCreateUser(ctx context.Context, db executor, u *model.User) error {
	err := db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, name, username, auth_token)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		u.ID, u.Email, u.Name, nullString(u.Username), nullString(u.AuthToken),
	).Scan(&u.CreatedAt)
	return translate(err, "user "+u.ID)
}

func queryGetUserBy(ctx context.Context, db executor, column, value string) (*model.User, error) {
	row := db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+column+` = $1`, value)
	u, err := scanUser(row)
	if err != nil {
		return nil, translate(err, "user with "+column)
	}
	return u, nil
}

func queryUpdateUser(ctx context.Context, db executor, u *model.User) error {
	return execOne(ctx, db, "user "+u.ID, `
		UPDATE users SET email = $2, name = $3, username = $4, auth_token = $5
		WHERE id = $1`,
		u.ID, u.Email, u.Name, nullString(u.Username), nullString(u.AuthToken),
	)
}

func queryDeleteUser(ctx context.Context, db executor, id string) error {
	return execOne(ctx, db, "user "+id, `DELETE FROM users WHERE id = $1`, id)
}

// Projects

func queryCreateProject(ctx context.Context, db executor, p *model.Project) error {
	err := db.QueryRowContext(ctx, `
		INSERT INTO projects (id, name, description)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.Description,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return translate(err, "project "+p.ID)
}

func queryGetProject(ctx context.Context, db executor, id string) (*model.Project, error) {
	row := db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	p, err := scanProject(row)
	if err != nil {
		return nil, translate(err, "project "+id)
	}
	members, err := queryListProjectMembers(ctx, db, id)
	if err != nil {
		return nil, err
	}
	p.Members = members
	return p, nil
}

func queryListProjectsForUser(ctx context.Context, db executor, userID string) ([]*model.Project, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT p.id, p.name, p.description, p.created_at, p.updated_at
		FROM projects p
		JOIN project_members m ON m.project_id = p.id
		WHERE m.user_id = $1
		ORDER BY p.name, p.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProjects(rows)
}

func queryListAllProjects(ctx context.Context, db executor) ([]*model.Project, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProjects(rows)
}

// queryDeleteProject relies on ON DELETE CASCADE for configs and memberships.
func queryDeleteProject(ctx context.Context, db executor, id string) error {
	return execOne(ctx, db, "project "+id, `DELETE FROM projects WHERE id = $1`, id)
}

// Membership

func queryAddProjectMember(ctx context.Context, db executor, projectID, userID string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO project_members (project_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		projectID, userID,
	)
	return translate(err, "project member")
}

func queryIsProjectMember(ctx context.Context, db executor, projectID, userID string) (bool, error) {
	var ok bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM project_members WHERE project_id = $1 AND user_id = $2)`,
		projectID, userID,
	).Scan(&ok)
	return ok, err
}

func queryListProjectMembers(ctx context.Context, db executor, projectID string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT user_id FROM project_members WHERE project_id = $1 ORDER BY user_id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		members = append(members, id)
	}
	return members, rows.Err()
}

// Configs

func queryCreateConfig(ctx context.Context, db executor, box *crypt.Box, c *model.Config) error {
	data, err := encodeValues(c.Values, box)
	if err != nil {
		return err
	}
	err = db.QueryRowContext(ctx, `
		INSERT INTO configs (id, project_id, name, data, version, linked_config_id, linked_project_config_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		c.ID, c.ProjectID, c.Name, data, c.Version,
		nullString(c.LinkedConfigID), nullString(c.LinkedProjectConfigID),
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	return translate(err, "config "+c.ID)
}

func queryGetConfig(ctx context.Context, db executor, box *crypt.Box, projectID, id string) (*model.Config, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+configColumns+`
		FROM configs WHERE project_id = $1 AND id = $2`, projectID, id)
	c, err := scanConfig(row, box)
	if err != nil {
		return nil, translate(err, "config "+id)
	}
	return c, nil
}

func queryListConfigs(ctx context.Context, db executor, box *crypt.Box, projectID string) ([]*model.Config, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+configColumns+`
		FROM configs WHERE project_id = $1
		ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConfigs(rows, box)
}

func queryListAllConfigs(ctx context.Context, db executor, box *crypt.Box) ([]*model.Config, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+configColumns+`
		FROM configs ORDER BY project_id, created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConfigs(rows, box)
}

// queryUpdateConfig applies patch only if the stored version still equals
// expectedVersion. When no row matches, a follow-up existence check tells a
// stale version apart from a missing config.
func queryUpdateConfig(ctx context.Context, db executor, box *crypt.Box, projectID, id, expectedVersion string, patch model.ConfigPatch) (*model.Config, error) {
	var data sql.Null[[]byte]
	if patch.Values != nil {
		sealed, err := encodeValues(patch.Values, box)
		if err != nil {
			return nil, err
		}
		data = sql.Null[[]byte]{V: sealed, Valid: true}
	}

	row := db.QueryRowContext(ctx, `
		UPDATE configs SET
			name = COALESCE($4, name),
			data = COALESCE($5, data),
			linked_config_id = CASE WHEN $6 THEN NULL ELSE linked_config_id END,
			linked_project_config_id = CASE WHEN $6 THEN NULL ELSE linked_project_config_id END,
			version = $7,
			updated_at = NOW()
		WHERE project_id = $1 AND id = $2 AND version = $3
		RETURNING `+configColumns,
		projectID, id, expectedVersion,
		nullStringPtr(patch.Name), data, patch.ClearLink, patch.Version,
	)
	c, err := scanConfig(row, box)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	var exists bool
	if err := db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM configs WHERE project_id = $1 AND id = $2)`,
		projectID, id,
	).Scan(&exists); err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("config %s: %w", id, model.ErrVersionConflict)
	}
	return nil, translate(sql.ErrNoRows, "config "+id)
}

func queryDeleteConfig(ctx context.Context, db executor, projectID, id string) error {
	return execOne(ctx, db, "config "+id,
		`DELETE FROM configs WHERE project_id = $1 AND id = $2`, projectID, id)
}

// Events

func queryRecordEvent(ctx context.Context, db executor, e *model.Event) error {
	return db.QueryRowContext(ctx, `
		INSERT INTO events (topic, project_id, config_id, actor, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		e.Topic, e.ProjectID, nullString(e.ConfigID), nullString(e.Actor), jsonbBytes(e.Payload),
	).Scan(&e.ID, &e.CreatedAt)
}

func queryGetEvents(ctx context.Context, db executor, projectID string) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, topic, project_id, config_id, actor, payload, created_at
		FROM events
		WHERE project_id = $1
		ORDER BY created_at ASC, id ASC`,
		projectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}
