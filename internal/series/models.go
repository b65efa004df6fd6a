package series

// Entry is one real observation. Temperature is always a finite number.
type Entry struct {
	Date        Date    `json:"date"`
	Temperature float64 `json:"temperature"`
}

// Record is the shape a Provider lists: the raw date string and a nullable reading.
// Records are normalized into Entries on load; malformed ones are dropped.
type Record struct {
	Date        string   `json:"date"`
	Temperature *float64 `json:"temperature"`
}

// DenseEntry is one calendar day of the gap-filled series.
// A day without an observation has a nil Temperature and Missing set.
type DenseEntry struct {
	Date        Date     `json:"date"`
	Temperature *float64 `json:"temperature"`
	Missing     bool     `json:"missing"`
}

// Snapshot is a read-only copy of the sparse series handed to subscribers.
type Snapshot struct {
	Entries    []Entry `json:"entries"`
	Generation uint64  `json:"generation"`
}

// Status describes the orchestration state the presentation layer renders around.
type Status struct {
	Loading  bool `json:"loading"`
	SignedIn bool `json:"signedIn"`
	Entries  int  `json:"entries"`
	Days     int  `json:"days"`
}
