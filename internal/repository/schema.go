package repository

// Schema definitions for the Shikra database.
// Compatible with both SQLite and PostgreSQL.

const schemaDatasets = `
CREATE TABLE IF NOT EXISTS datasets (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    total_rows INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL
);
`

const schemaClaims = `
CREATE TABLE IF NOT EXISTS claims (
    dataset_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    beneficiary_id TEXT NOT NULL,
    name TEXT NOT NULL,
    aadhaar TEXT NOT NULL,
    income REAL NOT NULL,
    location_state TEXT NOT NULL,
    subsidy_type TEXT NOT NULL,
    amount REAL NOT NULL,
    claim_date TEXT NOT NULL,
    distributor_id TEXT NOT NULL,
    PRIMARY KEY (dataset_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_claims_dataset ON claims(dataset_id);
CREATE INDEX IF NOT EXISTS idx_claims_state ON claims(dataset_id, location_state);
`

const schemaReports = `
CREATE TABLE IF NOT EXISTS reports (
    dataset_id TEXT PRIMARY KEY,
    report TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);
`

const schemaScreenRules = `
CREATE TABLE IF NOT EXISTS screen_rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    reason TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_screen_rules_enabled ON screen_rules(enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaDatasets,
		schemaClaims,
		schemaReports,
		schemaScreenRules,
	}
}
