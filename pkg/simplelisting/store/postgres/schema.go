package postgres

import "context"

// Schema creates the resources table. Documents of every kind share one
// table; kind fields live in the doc column.
const Schema = `
CREATE TABLE IF NOT EXISTS resources (
    collection  TEXT        NOT NULL,
    id          TEXT        NOT NULL,
    owner       TEXT        NOT NULL DEFAULT '',
    doc         JSONB       NOT NULL DEFAULT '{}'::jsonb,
    created_at  TIMESTAMPTZ NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (collection, id)
);

CREATE INDEX IF NOT EXISTS resources_order_idx
    ON resources (collection, created_at, id);

CREATE UNIQUE INDEX IF NOT EXISTS resources_media_url_key
    ON resources ((doc->>'url'))
    WHERE collection = 'media';

CREATE UNIQUE INDEX IF NOT EXISTS resources_slug_key
    ON resources (collection, (doc->>'slug'))
    WHERE coalesce(doc->>'slug', '') <> '';
`

// Migrate applies Schema. It is safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return s.handlePostgresError("migrate", err)
	}
	return nil
}
