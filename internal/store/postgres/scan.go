package postgres

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/envtree/internal/crypt"
	"github.com/alfredjeanlab/envtree/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanUser scans a single row into a model.User.
// The row must contain columns in the order defined by userColumns.
func scanUser(row scannable) (*model.User, error) {
	var u model.User
	var username, token sql.NullString
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &username, &token, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Username = username.String
	u.AuthToken = token.String
	return &u, nil
}

// scanProject scans a single row into a model.Project.
func scanProject(row scannable) (*model.Project, error) {
	var p model.Project
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// scanProjects scans multiple rows into a slice of model.Project pointers.
func scanProjects(rows *sql.Rows) ([]*model.Project, error) {
	var projects []*model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return projects, nil
}

// scanConfig scans a single row into a model.Config, opening the sealed
// value blob with box. The row must follow configColumns.
func scanConfig(row scannable, box *crypt.Box) (*model.Config, error) {
	var c model.Config
	var (
		data          []byte
		linkedID      sql.NullString
		linkedProject sql.NullString
	)
	err := row.Scan(
		&c.ID,
		&c.ProjectID,
		&c.Name,
		&data,
		&c.Version,
		&linkedID,
		&linkedProject,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.LinkedConfigID = linkedID.String
	c.LinkedProjectConfigID = linkedProject.String

	values, err := decodeValues(data, box)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", c.ID, err)
	}
	c.Values = values
	return &c, nil
}

// scanConfigs scans multiple rows into a slice of model.Config pointers.
func scanConfigs(rows *sql.Rows, box *crypt.Box) ([]*model.Config, error) {
	var configs []*model.Config
	for rows.Next() {
		c, err := scanConfig(rows, box)
		if err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return configs, nil
}

// scanEvent scans a single row into a model.Event.
func scanEvent(row scannable) (*model.Event, error) {
	var e model.Event
	var (
		configID sql.NullString
		actor    sql.NullString
		payload  []byte
	)
	err := row.Scan(&e.ID, &e.Topic, &e.ProjectID, &configID, &actor, &payload, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.ConfigID = configID.String
	e.Actor = actor.String
	if len(payload) > 0 {
		e.Payload = json.RawMessage(payload)
	}
	return &e, nil
}

// scanEvents scans multiple rows into a slice of model.Event pointers.
func scanEvents(rows *sql.Rows) ([]*model.Event, error) {
	var events []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// encodeValues serializes a value map and seals it with box.
func encodeValues(values model.ValueMap, box *crypt.Box) ([]byte, error) {
	if values == nil {
		values = model.ValueMap{}
	}
	plain, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("marshal values: %w", err)
	}
	return box.Seal(plain)
}

// decodeValues reverses encodeValues.
func decodeValues(data []byte, box *crypt.Box) (model.ValueMap, error) {
	plain, err := box.Open(data)
	if err != nil {
		return nil, err
	}
	values := model.ValueMap{}
	if len(plain) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(plain, &values); err != nil {
		return nil, fmt.Errorf("unmarshal values: %w", err)
	}
	return values, nil
}

// nullString converts a string to sql.NullString; empty string is null.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringPtr converts an optional string to sql.NullString.
func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// jsonbBytes converts json.RawMessage to a []byte suitable for JSONB columns.
func jsonbBytes(m json.RawMessage) []byte {
	if len(m) == 0 {
		return nil
	}
	return []byte(m)
}

// uniqueViolation is the SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// translate maps driver errors onto model error kinds.
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", what, model.ErrAlreadyExists)
	}
	return err
}
