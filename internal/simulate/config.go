package simulate

import "time"

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL    string        // Base URL of the service
	Scenario   string        // Scenario name, see Scenarios
	Subjects   int           // Number of simulated subjects
	Count      int           // Events per subject for the random scenario
	Workers    int           // Number of concurrent subject workers
	WindowSize int           // Server side event window size
	Timeout    time.Duration // HTTP request timeout
	Interval   time.Duration // Pause between events of one subject
	Timezone   string        // Zone the local scorer reads the hour in
	OutputFile string        // Optional JSON report of every submission
	Verbose    bool          // Log every submission

	// Now is the clock the local scorer checks scores against.
	Now func() time.Time
}

// Submission is one event sent for a subject together with the score the
// service returned and the score computed locally.
type Submission struct {
	SubjectID string `json:"subjectId"`
	EventID   string `json:"eventId"`
	Type      string `json:"type"`
	Score     int    `json:"score"`
	Expected  int    `json:"expected"`
	Level     string `json:"level"`
	Armed     bool   `json:"armed"`
}

// Stats holds simulation statistics.
type Stats struct {
	EventsSubmitted  int
	EventsSuccessful int
	EventsDuplicate  int
	EventsFailed     int
	Mismatches       int
	Armed            int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
