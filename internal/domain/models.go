package domain

// Domain contains core models shared by providers, the fetch pipeline and publishers.

// Post is the normalized record served to callers.
type Post struct {
	ID        string   `json:"id,omitempty"`
	Title     string   `json:"title"`
	Caption   string   `json:"caption"`
	Hashtags  []string `json:"hashtags"`
	URL       string   `json:"url,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// JobStatus is the provider-reported state of a scrape job.
type JobStatus string

const (
	JobSubmitted JobStatus = "SUBMITTED"
	JobRunning   JobStatus = "RUNNING"
	JobSucceeded JobStatus = "SUCCEEDED"
	JobFailed    JobStatus = "FAILED"
	JobAborted   JobStatus = "ABORTED"
	JobTimedOut  JobStatus = "TIMED_OUT"
)

// Terminal reports whether no further transitions are expected.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobSucceeded, JobFailed, JobAborted, JobTimedOut:
		return true
	default:
		return false
	}
}

// Job is a unit of asynchronous work submitted to a provider.
type Job struct {
	ID           string    `json:"id"`
	Status       JobStatus `json:"status"`
	ResultHandle string    `json:"result_handle,omitempty"`
}

// ResultKind tags the shape a provider returned results in.
type ResultKind int

const (
	ResultStructured ResultKind = iota
	ResultHTML
)

func (k ResultKind) String() string {
	if k == ResultHTML {
		return "html"
	}
	return "structured"
}

// Result is what a provider hands back on retrieval: either post-shaped
// records or a single HTML document that still needs extraction.
type Result struct {
	Kind    ResultKind
	Records []RawRecord
	HTML    string
}

// StructuredResult wraps provider records.
func StructuredResult(records []RawRecord) Result {
	return Result{Kind: ResultStructured, Records: records}
}

// HTMLResult wraps a raw HTML document.
func HTMLResult(doc string) Result {
	return Result{Kind: ResultHTML, HTML: doc}
}
