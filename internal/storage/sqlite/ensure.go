package sqlite

import (
	"github.com/felixgeelhaar/sensei/internal/challenge"
	"github.com/felixgeelhaar/sensei/internal/progression"
)

// Ensure the SQLite store implements the storage interfaces.
var (
	_ progression.Store = (*Store)(nil)
	_ challenge.Store   = (*Store)(nil)
)
