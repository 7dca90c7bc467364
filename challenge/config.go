package challenge

//nolint:lll
type Config struct {
	MaxDurationDays    uint32 `long:"max-duration-days"    description:"the maximum duration of a challenge in days"`
	ChallengeCacheSize int    `long:"challenge-cache-size" description:"the number of decoded challenge records to cache in memory"`
}

func DefaultConfig() Config {
	return Config{
		// Participant records carry one completion flag per day; the cap
		// keeps them small and matches what verification devices report.
		MaxDurationDays:    30,
		ChallengeCacheSize: 128,
	}
}
