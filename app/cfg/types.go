package cfg

type Cfg struct {
	// Storage configuration
	DBPath string

	// Application configuration
	SourcesDir        string
	Port              string
	WorkerCount       int
	SchedulerInterval int
	APIAccessKey      string

	// Outbound request configuration
	UserAgent     string
	HTTPTimeout   int
	MaxConcurrent int

	// Summarization service (optional)
	SummaryAPIKey  string
	SummaryBaseURL string
	SummaryModel   string

	// Digest freshness windows, minutes
	DigestFresh int
	DigestStale int

	// Application metadata
	Timezone string
	Debug    bool
	Version  string
}
