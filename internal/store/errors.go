package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	apperrors "github.com/charlesng35/accessdesk/pkg/errors"
)

var (
	// ErrNotFound is returned by First when no row matches.
	ErrNotFound = errors.New("store: record not found")
	// ErrDuplicate is returned when a write violates a unique constraint.
	ErrDuplicate = errors.New("store: duplicate record")
	// ErrUnavailable wraps any other storage failure.
	ErrUnavailable = errors.New("store: unavailable")
)

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case isUniqueConstraintError(err):
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	default:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
}

// isUniqueConstraintError detects uniqueness violations across vendors.
func isUniqueConstraintError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return true
	}

	// sqlite reports "UNIQUE constraint failed: table.column".
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// Classify maps store errors onto the application error taxonomy: missing
// rows become NotFound and storage failures become StoreUnavailable. Other
// errors are returned unchanged.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return apperrors.ErrNotFound.WithInternal(err)
	case errors.Is(err, ErrUnavailable):
		return apperrors.ErrStoreUnavailable.WithInternal(err)
	default:
		return err
	}
}
