package database

import (
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

// NewMockPool returns a pgxmock pool satisfying the snapshot repository's
// Pool interface, so repository tests run against scripted expectations
// instead of a live database. Assert ExpectationsWereMet at the end of each
// test.
func NewMockPool() (pgxmock.PgxPoolIface, error) {
	return pgxmock.NewPool()
}
