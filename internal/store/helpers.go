package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/opengrievance/grievanced/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// placeholderFunc renders the positional SQL placeholder for argument n (1-based).
type placeholderFunc func(n int) string

func sqlitePlaceholder(int) string { return "?" }

func postgresPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

// buildComplaintQuery renders a SELECT over complaints for the spec's
// predicates, combined conjunctively, ordered most-recently-updated first and
// capped at the spec's limit.
func buildComplaintQuery(q models.QuerySpec, ph placeholderFunc) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, ph(len(args))))
	}

	if q.ID != "" {
		add("id = %s", q.ID)
	}
	if q.Submitter != "" {
		add("LOWER(submitter) LIKE %s", "%"+strings.ToLower(q.Submitter)+"%")
	}
	if q.Contact != "" {
		add("contact = %s", q.Contact)
	}
	if q.Category != "" {
		add("LOWER(category) = %s", strings.ToLower(q.Category))
	}
	if q.Status != "" {
		add("status = %s", string(q.Status))
	}
	if q.Since != nil {
		add("created_at >= %s", *q.Since)
	}
	if q.Until != nil {
		add("created_at <= %s", *q.Until)
	}

	query := `SELECT id, submitter, contact, category, description, priority, status, created_at, updated_at FROM complaints`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = models.DefaultQueryLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY updated_at DESC LIMIT %s", ph(len(args)))
	return query, args
}

// scanComplaintRow scans a Complaint from a single sql.Row.
func scanComplaintRow(row *sql.Row) (*models.Complaint, error) {
	var c models.Complaint
	var contact sql.NullString
	err := row.Scan(&c.ID, &c.Submitter, &contact, &c.Category, &c.Description, &c.Priority, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Contact = contact.String
	return &c, nil
}

// scanComplaints scans all Complaint rows from a query result.
func scanComplaints(rows *sql.Rows) ([]models.Complaint, error) {
	var complaints []models.Complaint
	for rows.Next() {
		var c models.Complaint
		var contact sql.NullString
		if err := rows.Scan(&c.ID, &c.Submitter, &contact, &c.Category, &c.Description, &c.Priority, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan complaint failed: %w", err)
		}
		c.Contact = contact.String
		complaints = append(complaints, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate complaint rows failed: %w", err)
	}
	return complaints, nil
}

// scanSessions scans serialized sessions from a query over the data column.
func scanSessions(rows *sql.Rows) ([]models.Session, error) {
	var sessions []models.Session
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan session failed: %w", err)
		}
		var sess models.Session
		if err := sess.FromJSON(data); err != nil {
			return nil, fmt.Errorf("decode session failed: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows failed: %w", err)
	}
	return sessions, nil
}
