package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/knowledge-library/internal/apperror"
	"github.com/sakif/knowledge-library/internal/model"
	"github.com/sakif/knowledge-library/internal/repository"
)

var _ repository.EntryRepository = (*DB)(nil)

// ListEntries returns the owner's entries, most recently updated first, with
// links, videos and categories attached.
//
// Sub-collections are loaded with one query each rather than one per entry;
// the entry rows are fully read before those queries run because the pool
// holds a single connection.
func (db *DB) ListEntries(ctx context.Context, ownerID string) ([]model.Entry, error) {
	rows, err := db.q(ctx).QueryContext(ctx,
		`SELECT id, user_id, title, content, created_at, updated_at
		 FROM entries
		 WHERE user_id = ?
		 ORDER BY updated_at DESC, id DESC`,
		ownerID,
	)
	if err != nil {
		return nil, classify("listing entries", err)
	}

	entries := []model.Entry{}
	for rows.Next() {
		var e model.Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Title, &e.Content, &e.CreatedAt, &e.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scanning entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, classify("iterating entries", err)
	}
	rows.Close()

	if len(entries) == 0 {
		return entries, nil
	}

	scope := subquery{
		clause: `entry_id IN (SELECT id FROM entries WHERE user_id = ?)`,
		arg:    ownerID,
	}
	if err := db.attach(ctx, entries, scope); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetEntry returns one entry owned by ownerID.
func (db *DB) GetEntry(ctx context.Context, ownerID, id string) (*model.Entry, error) {
	var e model.Entry
	err := db.q(ctx).QueryRowContext(ctx,
		`SELECT id, user_id, title, content, created_at, updated_at
		 FROM entries WHERE id = ? AND user_id = ?`,
		id, ownerID,
	).Scan(&e.ID, &e.UserID, &e.Title, &e.Content, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("entry", id)
		}
		return nil, classify(fmt.Sprintf("getting entry %s", id), err)
	}

	entries := []model.Entry{e}
	if err := db.attach(ctx, entries, subquery{clause: `entry_id = ?`, arg: id}); err != nil {
		return nil, err
	}
	return &entries[0], nil
}

// InsertEntry stores the entry row only; sub-collections are written with the
// Replace* methods.
func (db *DB) InsertEntry(ctx context.Context, entry *model.Entry) error {
	now := time.Now().UTC()
	entry.ID = xid.New().String()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	_, err := db.q(ctx).ExecContext(ctx,
		`INSERT INTO entries (id, user_id, title, content, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.UserID,
		entry.Title,
		entry.Content,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if err != nil {
		return classify("inserting entry", err)
	}
	return nil
}

// UpdateEntryFields rewrites title and content and bumps updated_at. The
// WHERE clause matches on both id and owner.
func (db *DB) UpdateEntryFields(ctx context.Context, entry *model.Entry) error {
	entry.UpdatedAt = time.Now().UTC()

	result, err := db.q(ctx).ExecContext(ctx,
		`UPDATE entries SET title = ?, content = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		entry.Title,
		entry.Content,
		entry.UpdatedAt,
		entry.ID,
		entry.UserID,
	)
	if err != nil {
		return classify(fmt.Sprintf("updating entry %s", entry.ID), err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return classify("checking rows affected", err)
	}
	if n == 0 {
		return apperror.NotFound("entry", entry.ID)
	}

	return db.q(ctx).QueryRowContext(ctx,
		`SELECT created_at FROM entries WHERE id = ?`, entry.ID,
	).Scan(&entry.CreatedAt)
}

// DeleteEntry removes the entry; links, videos and category associations
// follow through ON DELETE CASCADE.
func (db *DB) DeleteEntry(ctx context.Context, ownerID, id string) error {
	result, err := db.q(ctx).ExecContext(ctx,
		`DELETE FROM entries WHERE id = ? AND user_id = ?`, id, ownerID)
	if err != nil {
		return classify(fmt.Sprintf("deleting entry %s", id), err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return classify("checking rows affected", err)
	}
	if n == 0 {
		return apperror.NotFound("entry", id)
	}
	return nil
}

// ===== SUB-COLLECTIONS =====

func (db *DB) ReplaceLinks(ctx context.Context, entryID string, links []model.Link) error {
	q := db.q(ctx)
	if _, err := q.ExecContext(ctx, `DELETE FROM links WHERE entry_id = ?`, entryID); err != nil {
		return classify("clearing links", err)
	}
	for i := range links {
		links[i].ID = xid.New().String()
		links[i].EntryID = entryID
		_, err := q.ExecContext(ctx,
			`INSERT INTO links (id, entry_id, title, url, position) VALUES (?, ?, ?, ?, ?)`,
			links[i].ID, entryID, links[i].Title, links[i].URL, i,
		)
		if err != nil {
			return classify("inserting link", err)
		}
	}
	return nil
}

func (db *DB) ReplaceVideos(ctx context.Context, entryID string, videos []model.Video) error {
	q := db.q(ctx)
	if _, err := q.ExecContext(ctx, `DELETE FROM videos WHERE entry_id = ?`, entryID); err != nil {
		return classify("clearing videos", err)
	}
	for i := range videos {
		videos[i].ID = xid.New().String()
		videos[i].EntryID = entryID
		_, err := q.ExecContext(ctx,
			`INSERT INTO videos (id, entry_id, title, youtube_id, position) VALUES (?, ?, ?, ?, ?)`,
			videos[i].ID, entryID, videos[i].Title, videos[i].YouTubeID, i,
		)
		if err != nil {
			return classify("inserting video", err)
		}
	}
	return nil
}

// ReplaceCategories sets the entry's category set to exactly categoryIDs.
// IDs with no matching category are skipped by the INSERT ... SELECT.
func (db *DB) ReplaceCategories(ctx context.Context, entryID string, categoryIDs []string) error {
	q := db.q(ctx)
	if _, err := q.ExecContext(ctx, `DELETE FROM entry_categories WHERE entry_id = ?`, entryID); err != nil {
		return classify("clearing entry categories", err)
	}
	for _, id := range uniqueStrings(categoryIDs) {
		_, err := q.ExecContext(ctx,
			`INSERT OR IGNORE INTO entry_categories (entry_id, category_id)
			 SELECT ?, id FROM categories WHERE id = ?`,
			entryID, id,
		)
		if err != nil {
			return classify("attaching category", err)
		}
	}
	return nil
}

// subquery restricts the sub-collection loads to a set of entries.
type subquery struct {
	clause string
	arg    any
}

// attach fills Links, Videos and Categories on every element of entries.
func (db *DB) attach(ctx context.Context, entries []model.Entry, scope subquery) error {
	idx := make(map[string]int, len(entries))
	for i := range entries {
		idx[entries[i].ID] = i
		entries[i].Links = []model.Link{}
		entries[i].Videos = []model.Video{}
		entries[i].Categories = []model.Category{}
	}

	links, err := db.q(ctx).QueryContext(ctx,
		`SELECT id, entry_id, title, url FROM links
		 WHERE `+scope.clause+` ORDER BY entry_id, position`, scope.arg)
	if err != nil {
		return classify("loading links", err)
	}
	for links.Next() {
		var l model.Link
		if err := links.Scan(&l.ID, &l.EntryID, &l.Title, &l.URL); err != nil {
			links.Close()
			return fmt.Errorf("sqlite: scanning link: %w", err)
		}
		if i, ok := idx[l.EntryID]; ok {
			entries[i].Links = append(entries[i].Links, l)
		}
	}
	if err := closeRows(links, "iterating links"); err != nil {
		return err
	}

	videos, err := db.q(ctx).QueryContext(ctx,
		`SELECT id, entry_id, title, youtube_id FROM videos
		 WHERE `+scope.clause+` ORDER BY entry_id, position`, scope.arg)
	if err != nil {
		return classify("loading videos", err)
	}
	for videos.Next() {
		var v model.Video
		if err := videos.Scan(&v.ID, &v.EntryID, &v.Title, &v.YouTubeID); err != nil {
			videos.Close()
			return fmt.Errorf("sqlite: scanning video: %w", err)
		}
		if i, ok := idx[v.EntryID]; ok {
			entries[i].Videos = append(entries[i].Videos, v)
		}
	}
	if err := closeRows(videos, "iterating videos"); err != nil {
		return err
	}

	cats, err := db.q(ctx).QueryContext(ctx,
		`SELECT ec.entry_id, c.id, c.name, c.parent_id, c.created_at, c.updated_at
		 FROM entry_categories ec
		 JOIN categories c ON c.id = ec.category_id
		 WHERE ec.`+scope.clause+`
		 ORDER BY c.name ASC, c.id ASC`, scope.arg)
	if err != nil {
		return classify("loading entry categories", err)
	}
	for cats.Next() {
		var (
			entryID string
			c       model.Category
			parent  sql.NullString
		)
		if err := cats.Scan(&entryID, &c.ID, &c.Name, &parent, &c.CreatedAt, &c.UpdatedAt); err != nil {
			cats.Close()
			return fmt.Errorf("sqlite: scanning entry category: %w", err)
		}
		if parent.Valid {
			p := parent.String
			c.ParentID = &p
		}
		if i, ok := idx[entryID]; ok {
			entries[i].Categories = append(entries[i].Categories, c)
		}
	}
	return closeRows(cats, "iterating entry categories")
}

func closeRows(rows *sql.Rows, op string) error {
	err := rows.Err()
	rows.Close()
	if err != nil {
		return classify(op, err)
	}
	return nil
}
