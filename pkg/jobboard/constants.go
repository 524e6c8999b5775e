package jobboard

const (
	BackendPostgres  = "postgres"
	BackendSQLite    = "sqlite"
	BackendPostgREST = "postgrest"
	BackendMemory    = "memory"
	// BackendNone serves everything from the static corpus.
	BackendNone = ""

	DefaultPageSize = 20
	MaxPageSize     = 100
)
