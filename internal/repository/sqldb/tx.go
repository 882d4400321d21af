package sqldb

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
)

// queryer is the part of sqlx shared by *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// withTx runs fn in a transaction. It commits when fn returns nil and rolls
// back on error or panic; panics are re-raised.
//
// With SQLite the pool has a single connection, so fn must only use tx.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(tx)
	return err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likeContains builds a LIKE pattern matching s anywhere, with wildcards in s
// taken literally. Use it with ESCAPE '\'.
func likeContains(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
