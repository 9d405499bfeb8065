package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"backend-pilanitrails/internal/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Postgres keeps every collection in one JSONB table.
type Postgres struct {
	db       db.Querier
	notifier Notifier
	clock    *clock
}

func NewPostgres(q db.Querier, n Notifier) *Postgres {
	return &Postgres{db: q, notifier: n, clock: newClock()}
}

func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			data JSONB NOT NULL,
			version BIGINT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (collection, id)
		)
	`); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS documents_collection_created_idx
		ON documents (collection, created_at)
	`)
	return err
}

func (s *Postgres) Get(ctx context.Context, collection, id string) (Document, error) {
	row := s.db.QueryRow(ctx, `
		SELECT data, version, created_at, updated_at
		FROM documents WHERE collection=$1 AND id=$2
	`, collection, id)

	var raw []byte
	doc := Document{ID: id}
	if err := row.Scan(&raw, &doc.Version, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	fields, err := decodeFields(raw)
	if err != nil {
		return Document{}, err
	}
	doc.Fields = fields
	return doc, nil
}

func (s *Postgres) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, data, version, created_at, updated_at FROM documents WHERE collection=$1`)
	args := []any{collection}
	for _, f := range q.Where {
		args = append(args, strings.Split(f.Path, "."), textValue(f.Value))
		writeMatch(&sb, len(args)-1, len(args), f.OrMissing)
	}
	if q.Newest {
		sb.WriteString(` ORDER BY created_at DESC, id DESC`)
	} else {
		sb.WriteString(` ORDER BY created_at ASC, id ASC`)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&sb, ` LIMIT %d`, q.Limit)
	}

	rows, err := s.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var raw []byte
		var doc Document
		if err := rows.Scan(&doc.ID, &raw, &doc.Version, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, err
		}
		if doc.Fields, err = decodeFields(raw); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *Postgres) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.NewString()
	if err := s.CreateWithID(ctx, collection, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Postgres) CreateWithID(ctx context.Context, collection, id string, fields map[string]any) error {
	now := s.clock.next()
	raw, _, err := encodeFields(fields, now)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES ($1,$2,$3::jsonb,$4,$4)
		ON CONFLICT (collection, id) DO NOTHING
	`, collection, id, string(raw), now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	notify(s.notifier, collection)
	return nil
}

func (s *Postgres) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.UpdateIf(ctx, collection, id, Condition{}, fields)
}

func (s *Postgres) UpdateIf(ctx context.Context, collection, id string, cond Condition, fields map[string]any) error {
	now := s.clock.next()
	raw, _, err := encodeFields(fields, now)
	if err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString(`UPDATE documents
		SET data = data || $3::jsonb, version = version + 1, updated_at = $4
		WHERE collection=$1 AND id=$2`)
	args := []any{collection, id, string(raw), now}
	if cond.Version != 0 {
		args = append(args, cond.Version)
		fmt.Fprintf(&sb, ` AND version = $%d`, len(args))
	}
	if cond.Path != "" {
		args = append(args, strings.Split(cond.Path, "."), textValue(cond.Equals))
		writeMatch(&sb, len(args)-1, len(args), cond.OrMissing)
	}

	tag, err := s.db.Exec(ctx, sb.String(), args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		exists, err := s.exists(ctx, collection, id)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConditionFailed
	}
	notify(s.notifier, collection)
	return nil
}

func (s *Postgres) Delete(ctx context.Context, collection, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM documents WHERE collection=$1 AND id=$2`, collection, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	notify(s.notifier, collection)
	return nil
}

func (s *Postgres) Subscribe(ctx context.Context, collection string, q Query) (*Subscription, error) {
	if s.notifier == nil {
		return nil, errors.New("postgres store has no change notifier")
	}
	return watch(ctx, s.notifier, collection, func(ctx context.Context) ([]Document, error) {
		return s.Query(ctx, collection, q)
	}), nil
}

func (s *Postgres) exists(ctx context.Context, collection, id string) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM documents WHERE collection=$1 AND id=$2)
	`, collection, id).Scan(&ok)
	return ok, err
}

// writeMatch appends the comparison of the JSON value at the path held in
// parameter pathArg against parameter valueArg. #>> yields NULL for absent
// keys and JSON null alike.
func writeMatch(sb *strings.Builder, pathArg, valueArg int, orMissing bool) {
	if orMissing {
		fmt.Fprintf(sb, ` AND (data #>> $%d IS NULL OR data #>> $%d = $%d)`, pathArg, pathArg, valueArg)
		return
	}
	fmt.Fprintf(sb, ` AND data #>> $%d = $%d`, pathArg, valueArg)
}
