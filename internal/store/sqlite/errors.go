package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned wrapped by read methods when no row matches.
var ErrNotFound = errors.New("sqlite: not found")

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("sqlite: %s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
