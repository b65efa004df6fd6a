package series

import (
	"context"
	"time"
)

// Provider abstracts the remote store holding the series (spreadsheet rows,
// realtime database documents, a local database). One record per date.
type Provider interface {
	List(ctx context.Context) ([]Record, error)
	Upsert(ctx context.Context, e Entry) error
	Delete(ctx context.Context, date Date) error
}

// Identity abstracts the sign-in session guarding mutations.
type Identity interface {
	IsSignedIn() bool
	SignIn(ctx context.Context) error
	SignOut()
}

// Notifier receives every error the orchestration surfaces to the user.
type Notifier interface {
	Notify(kind, message string)
}

// Recorder observes operations for metrics. A nil Recorder is allowed.
type Recorder interface {
	ObserveOperation(op string, err error, elapsed time.Duration)
	SetSeriesSize(entries, days int)
}
