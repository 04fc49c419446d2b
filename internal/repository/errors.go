package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/leadhunter-backend/internal/errors"
)

// translate maps postgres error codes onto store error classes.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", appErrors.ErrDuplicate, pqErr.Constraint)
		case "42703", "42P01": // undefined_column, undefined_table
			return fmt.Errorf("%w: %s", appErrors.ErrUnsupportedQuery, pqErr.Message)
		}
	}
	return err
}

func toInt64s(v []int) []int64 {
	out := make([]int64, len(v))
	for i, n := range v {
		out[i] = int64(n)
	}
	return out
}

func toInts(v []int64) []int {
	out := make([]int, len(v))
	for i, n := range v {
		out[i] = int(n)
	}
	return out
}
