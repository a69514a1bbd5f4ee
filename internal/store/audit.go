package store

import (
	"context"
	"fmt"
	"time"
)

// AuditEntry is one immutable row from either audit table. Structural
// entries carry Command; connection entries carry Host and AppName.
type AuditEntry struct {
	ID         int64
	Actor      string
	Command    string
	Host       string
	AppName    string
	RecordedAt time.Time
}

// RecordStructuralChange appends a structural-change event. There is no
// corresponding update or delete operation; the schema triggers reject both.
func RecordStructuralChange(ctx context.Context, q querier, actor, command string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO audit_structural (actor, command, recorded_at) VALUES (?, ?, ?)`,
		actor, command, time.Now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to append structural audit entry: %w", err)
	}
	return nil
}

// RecordConnection appends a connection event.
func RecordConnection(ctx context.Context, q querier, actor, host, appName string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO audit_connection (actor, host, app_name, recorded_at) VALUES (?, ?, ?, ?)`,
		actor, host, appName, time.Now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to append connection audit entry: %w", err)
	}
	return nil
}

// ListStructuralChanges returns all structural-change entries in append order.
func ListStructuralChanges(ctx context.Context, q querier) ([]AuditEntry, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, actor, command, recorded_at FROM audit_structural ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list structural audit entries: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var at int64
		if err := rows.Scan(&e.ID, &e.Actor, &e.Command, &at); err != nil {
			return nil, fmt.Errorf("failed to scan structural audit entry: %w", err)
		}
		e.RecordedAt = time.Unix(0, at).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListConnections returns all connection entries in append order.
func ListConnections(ctx context.Context, q querier) ([]AuditEntry, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, actor, host, app_name, recorded_at FROM audit_connection ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list connection audit entries: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var at int64
		if err := rows.Scan(&e.ID, &e.Actor, &e.Host, &e.AppName, &at); err != nil {
			return nil, fmt.Errorf("failed to scan connection audit entry: %w", err)
		}
		e.RecordedAt = time.Unix(0, at).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
