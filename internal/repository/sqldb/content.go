package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/xid"

	"github.com/sakif/blockhub/internal/apperror"
	"github.com/sakif/blockhub/internal/model"
	"github.com/sakif/blockhub/internal/repository"
)

var _ repository.ContentRepository = (*Store)(nil)

// itemRow is one content row with its author columns flattened in. The
// author columns are nullable because the join is a LEFT JOIN.
type itemRow struct {
	ID                string         `db:"id"`
	Title             string         `db:"title"`
	ViewLink          string         `db:"view_link"`
	Image             string         `db:"image"`
	FileName          string         `db:"file_name"`
	FileURL           string         `db:"file_url"`
	IxID              string         `db:"ix_id"`
	Votes             int64          `db:"votes"`
	AuthorID          string         `db:"author_id"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
	AuthorUsername    sql.NullString `db:"author_username"`
	AuthorAvatar      sql.NullString `db:"author_avatar"`
	AuthorDisplayName sql.NullString `db:"author_display_name"`
}

func (r itemRow) item(kind model.Kind) model.Item {
	it := model.Item{
		ID:        r.ID,
		Kind:      kind,
		Title:     r.Title,
		ViewLink:  r.ViewLink,
		Image:     r.Image,
		FileName:  r.FileName,
		FileURL:   r.FileURL,
		IxID:      r.IxID,
		Tags:      []string{},
		Votes:     r.Votes,
		AuthorID:  r.AuthorID,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.AuthorUsername.Valid {
		it.Author = &model.AuthorSummary{
			ID:          r.AuthorID,
			Username:    r.AuthorUsername.String,
			Avatar:      r.AuthorAvatar.String,
			DisplayName: r.AuthorDisplayName.String,
		}
	}
	return it
}

// selectItems is the common projection for item reads. Table names come from
// model.Kind.Table, never from input.
func selectItems(kind model.Kind) string {
	return `
		SELECT c.id, c.title, c.view_link, c.image, c.file_name, c.file_url, c.ix_id, c.votes,
		       c.author_id, c.created_at, c.updated_at,
		       u.username AS author_username, u.avatar AS author_avatar,
		       u.display_name AS author_display_name
		FROM ` + kind.Table() + ` c
		LEFT JOIN users u ON u.id = c.author_id`
}

// Create stores a new item with its tags. ID, Votes and timestamps are set
// on item.
func (s *Store) Create(ctx context.Context, item *model.Item) error {
	now := s.timestamp()
	if item.ID == "" {
		item.ID = xid.New().String()
	}
	item.Votes = 0
	item.CreatedAt = now
	item.UpdatedAt = now
	if item.Tags == nil {
		item.Tags = []string{}
	}

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO `+item.Kind.Table()+`
				(id, title, view_link, image, file_name, file_url, ix_id, votes, author_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			item.ID, item.Title, item.ViewLink, item.Image, item.FileName, item.FileURL, item.IxID,
			item.Votes, item.AuthorID, item.CreatedAt, item.UpdatedAt,
		)
		if err != nil {
			return err
		}
		return insertTags(ctx, tx, item.Kind, item.ID, item.Tags)
	})
	if err != nil {
		return fmt.Errorf("sqldb: creating %s: %w", item.Kind, err)
	}
	return nil
}

// GetByID returns one item with its author and tags.
func (s *Store) GetByID(ctx context.Context, kind model.Kind, id string) (*model.Item, error) {
	var row itemRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(selectItems(kind)+` WHERE c.id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound(kind.Label(), id)
		}
		return nil, fmt.Errorf("sqldb: getting %s %s: %w", kind, id, err)
	}

	items, err := s.withTags(ctx, kind, []itemRow{row})
	if err != nil {
		return nil, err
	}
	return &items[0], nil
}

// List returns every item of kind, newest first.
func (s *Store) List(ctx context.Context, kind model.Kind) ([]model.Item, error) {
	var rows []itemRow
	if err := s.db.SelectContext(ctx, &rows, selectItems(kind)+` ORDER BY c.created_at DESC, c.id DESC`); err != nil {
		return nil, fmt.Errorf("sqldb: listing %ss: %w", kind, err)
	}
	return s.withTags(ctx, kind, rows)
}

// Search filters by title and author username (case-insensitive substrings)
// and by tags (an item must carry all of them). Results are ordered by votes,
// then newest first.
func (s *Store) Search(ctx context.Context, kind model.Kind, filter model.SearchFilter) ([]model.Item, error) {
	var (
		where []string
		args  []any
	)

	if filter.Title != "" {
		where = append(where, `LOWER(c.title) LIKE ? ESCAPE '\'`)
		args = append(args, likeContains(strings.ToLower(filter.Title)))
	}
	if filter.Author != "" {
		where = append(where, `LOWER(u.username) LIKE ? ESCAPE '\'`)
		args = append(args, likeContains(strings.ToLower(filter.Author)))
	}
	if tags := distinct(filter.Tags); len(tags) > 0 {
		where = append(where, `c.id IN (
			SELECT content_id FROM content_tags
			WHERE kind = ? AND tag IN (?)
			GROUP BY content_id
			HAVING COUNT(DISTINCT tag) = ?)`)
		args = append(args, string(kind), tags, len(tags))
	}

	query := selectItems(kind)
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY c.votes DESC, c.created_at DESC, c.id DESC`

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqldb: building %s search: %w", kind, err)
	}

	var rows []itemRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("sqldb: searching %ss: %w", kind, err)
	}
	return s.withTags(ctx, kind, rows)
}

// Update overwrites the mutable columns of an item and replaces its tags.
// AuthorID, Votes and CreatedAt are never changed.
func (s *Store) Update(ctx context.Context, item *model.Item) error {
	item.UpdatedAt = s.timestamp()
	if item.Tags == nil {
		item.Tags = []string{}
	}

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(`
			UPDATE `+item.Kind.Table()+`
			SET title = ?, view_link = ?, image = ?, file_name = ?, file_url = ?, ix_id = ?, updated_at = ?
			WHERE id = ?`),
			item.Title, item.ViewLink, item.Image, item.FileName, item.FileURL, item.IxID, item.UpdatedAt, item.ID,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperror.NotFound(item.Kind.Label(), item.ID)
		}

		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM content_tags WHERE kind = ? AND content_id = ?`),
			string(item.Kind), item.ID); err != nil {
			return err
		}
		return insertTags(ctx, tx, item.Kind, item.ID, item.Tags)
	})
	return wrapTxErr(err, "updating", item.Kind, item.ID)
}

// Delete removes an item together with its tags and vote rows.
func (s *Store) Delete(ctx context.Context, kind model.Kind, id string) error {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, q := range []string{
			`DELETE FROM content_tags WHERE kind = ? AND content_id = ?`,
			`DELETE FROM votes WHERE kind = ? AND content_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, tx.Rebind(q), string(kind), id); err != nil {
				return err
			}
		}

		res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM `+kind.Table()+` WHERE id = ?`), id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperror.NotFound(kind.Label(), id)
		}
		return nil
	})
	return wrapTxErr(err, "deleting", kind, id)
}

// Vote moves the counter by one and records the vote in the same
// transaction. The votes primary key makes the insert a no-op for a repeat
// voter, which rolls the counter change back.
func (s *Store) Vote(ctx context.Context, kind model.Kind, id, userID string, up bool) (*model.Item, error) {
	delta := -1
	if up {
		delta = 1
	}

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE `+kind.Table()+` SET votes = votes + ? WHERE id = ?`), delta, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperror.NotFound(kind.Label(), id)
		}

		res, err = tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO votes (user_id, kind, content_id, up, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (user_id, kind, content_id) DO NOTHING`),
			userID, string(kind), id, up, s.timestamp(),
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperror.AlreadyVoted(string(kind), id)
		}
		return nil
	})
	if err := wrapTxErr(err, "voting on", kind, id); err != nil {
		return nil, err
	}

	return s.GetByID(ctx, kind, id)
}

// withTags converts rows to items and attaches their tags in one query.
func (s *Store) withTags(ctx context.Context, kind model.Kind, rows []itemRow) ([]model.Item, error) {
	items := make([]model.Item, 0, len(rows))
	if len(rows) == 0 {
		return items, nil
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}

	query, args, err := sqlx.In(`
		SELECT content_id, tag FROM content_tags
		WHERE kind = ? AND content_id IN (?)
		ORDER BY content_id, position`, string(kind), ids)
	if err != nil {
		return nil, fmt.Errorf("sqldb: building tag query: %w", err)
	}

	var tagRows []struct {
		ContentID string `db:"content_id"`
		Tag       string `db:"tag"`
	}
	if err := s.db.SelectContext(ctx, &tagRows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("sqldb: loading %s tags: %w", kind, err)
	}

	tags := make(map[string][]string, len(rows))
	for _, t := range tagRows {
		tags[t.ContentID] = append(tags[t.ContentID], t.Tag)
	}

	for _, r := range rows {
		it := r.item(kind)
		if t, ok := tags[r.ID]; ok {
			it.Tags = t
		}
		items = append(items, it)
	}
	return items, nil
}

func insertTags(ctx context.Context, tx *sqlx.Tx, kind model.Kind, id string, tags []string) error {
	for i, tag := range distinct(tags) {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO content_tags (kind, content_id, tag, position) VALUES (?, ?, ?, ?)`),
			string(kind), id, tag, i,
		); err != nil {
			return err
		}
	}
	return nil
}

// distinct drops empty and repeated values, keeping first-seen order.
func distinct(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// wrapTxErr passes apperrors through untouched and adds context to driver
// errors.
func wrapTxErr(err error, action string, kind model.Kind, id string) error {
	if err == nil {
		return nil
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return fmt.Errorf("sqldb: %s %s %s: %w", action, kind, id, err)
}
