package store

// Interaction is one ingested behavioral event: the user did something
// (read, liked, starred) with some subject in some category.
type Interaction struct {
	ID         int64
	UserID     string
	Category   string
	Action     string
	Subject    string
	Source     *string
	OccurredAt string // YYYY-MM-DD
	IngestedAt *string
}

// Run is the persisted record of a pipeline run.
type Run struct {
	ID         string
	UserID     string
	Status     string // running | complete | failed
	Stage      string
	Percent    int
	Error      *string
	StartedAt  *string
	FinishedAt *string
}

// DashboardRow is a stored dashboard artifact; Payload holds the
// JSON-serialized model.Dashboard.
type DashboardRow struct {
	ID          int64
	RunID       string
	UserID      string
	Payload     string
	GeneratedAt *string
}
