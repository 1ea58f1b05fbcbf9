// Package all registers every built-in storage backend with the storage
// factory. Import it for side effects:
//
//	import _ "redcapetl/internal/storage/all"
package all

import (
	_ "redcapetl/internal/storage/duckdb"
	_ "redcapetl/internal/storage/mssql"
	_ "redcapetl/internal/storage/mysql"
	_ "redcapetl/internal/storage/postgres"
	_ "redcapetl/internal/storage/sqlite"
)
