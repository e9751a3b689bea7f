package datasource

// Register the database/sql drivers for the supported backends. Oracle has no
// pure-Go driver in this build; callers targeting Oracle register their own
// driver under the name returned by config.DBConfig.DSN.
import (
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"
)
