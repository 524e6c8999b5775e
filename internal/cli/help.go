package cli

const rootLong = `jobboard reads and writes the job board's tables on a backend whose
schema may have drifted: renamed or missing columns are negotiated per
logical field, and reads fall back to a bundled dataset when the live table
is unusable.

BACKENDS
  auto       pick from whatever connection settings are present (default)
  postgrest  Supabase REST endpoint (SUPABASE_URL, SUPABASE_ANON_KEY)
  postgres   direct Postgres connection (--pg-dsn, DATABASE_URL)
  sqlite     local SQLite file (--sqlite-path)
  memory     in-process tables seeded with the bundled dataset
  none       serve the bundled dataset only

Every flag has a JOBBOARD_* environment equivalent, e.g. JOBBOARD_LOG_LEVEL.`
