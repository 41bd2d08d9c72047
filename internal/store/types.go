package store

type DatabaseType string

const (
	DBTypePostgres DatabaseType = "postgres"
	DBTypeSQLite   DatabaseType = "sqlite"
)

// AttemptsSchema is written in the Postgres dialect; other backends
// translate it.
const AttemptsSchema = `
CREATE TABLE IF NOT EXISTS attempts (
	id SERIAL PRIMARY KEY,
	user_id VARCHAR(100),
	oauth_consumer_key TEXT,
	lis_result_sourcedid TEXT,
	lis_outcome_service_url TEXT,
	is_correct BOOLEAN,
	attempt_type VARCHAR(10),
	created_at TIMESTAMP
)`
