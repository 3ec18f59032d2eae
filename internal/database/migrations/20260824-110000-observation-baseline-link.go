package migrations

func init() {
	Register(Migration{
		Timestamp:   "20260824-110000",
		Description: "link baseline observations to their snapshot",
		Up: []string{
			`ALTER TABLE catalog_observations ADD COLUMN baseline_id TEXT`,
			`CREATE INDEX IF NOT EXISTS idx_observations_baseline ON catalog_observations(baseline_id)`,
		},
	})
}
