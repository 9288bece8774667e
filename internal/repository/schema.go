package repository

// Schema definitions for the prediction store.
// Compatible with both SQLite and PostgreSQL.

const schemaPredictions = `
CREATE TABLE IF NOT EXISTS predictions (
    id TEXT PRIMARY KEY,
    overall_risk TEXT NOT NULL,
    special_attention INTEGER NOT NULL DEFAULT 0,
    patient TEXT NOT NULL,
    outcomes TEXT NOT NULL,
    summary TEXT NOT NULL,
    alerts TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_predictions_created ON predictions(created_at);
CREATE INDEX IF NOT EXISTS idx_predictions_risk ON predictions(overall_risk);
CREATE INDEX IF NOT EXISTS idx_predictions_attention ON predictions(special_attention);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaPredictions,
	}
}
