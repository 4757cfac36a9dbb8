package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentinelai/sentinel-engine/pkg/apperrors"
	"github.com/sentinelai/sentinel-engine/pkg/database"
)

// pgForeignKeyViolation is the SQLSTATE for a missing referenced row.
const pgForeignKeyViolation = "23503"

func connFromContext(ctx context.Context) (*pgxpool.Conn, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}
	return scope.Conn, nil
}

// filterBuilder accumulates WHERE clauses with positional arguments.
type filterBuilder struct {
	clauses []string
	args    []any
}

// add appends a clause; every "?" in clause is replaced by the next placeholder
// bound to the same value.
func (f *filterBuilder) add(clause string, value any) {
	f.args = append(f.args, value)
	f.clauses = append(f.clauses, strings.ReplaceAll(clause, "?", fmt.Sprintf("$%d", len(f.args))))
}

func (f *filterBuilder) where() string {
	if len(f.clauses) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(f.clauses, " AND ")
}

// page appends LIMIT/OFFSET placeholders and returns the clause plus the full argument list.
func (f *filterBuilder) page(limit, offset int) (string, []any) {
	args := append(append([]any{}, f.args...), limit, offset)
	return fmt.Sprintf("LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args
}

// likePattern wraps s for a case-insensitive substring match, escaping LIKE metacharacters.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// mapForeignKeyError turns a foreign-key violation into apperrors.ErrNotFound
// so callers can report the missing parent.
func mapForeignKeyError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return fmt.Errorf("%w: %s", apperrors.ErrNotFound, pgErr.ConstraintName)
	}
	return err
}
