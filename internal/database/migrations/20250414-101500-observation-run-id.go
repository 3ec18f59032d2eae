package migrations

func init() {
	Register(Migration{
		Timestamp:   "20250414-101500",
		Description: "track originating run on observations",
		Up: []string{
			`ALTER TABLE catalog_observations ADD COLUMN run_id TEXT`,
			`CREATE INDEX IF NOT EXISTS idx_observations_run ON catalog_observations(run_id)`,
		},
	})
}
