// Package all links every storage backend into the binary.
package all

import (
	_ "desabasto/internal/storage/mssql"
	_ "desabasto/internal/storage/postgres"
	_ "desabasto/internal/storage/sqlite"
)
