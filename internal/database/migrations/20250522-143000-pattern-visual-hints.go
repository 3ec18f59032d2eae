package migrations

func init() {
	Register(Migration{
		Timestamp:   "20250522-143000",
		Description: "cross-function hint provenance on learned patterns",
		Up: []string{
			`ALTER TABLE learned_patterns ADD COLUMN transferred_from TEXT`,
		},
	})
}
