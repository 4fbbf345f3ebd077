package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultProject ResultType = "project"
	ResultTask    ResultType = "task"
	ResultMessage ResultType = "message"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        int64      `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	ProjectID int64      `json:"projectId"`
}

// Query describes a search request. ProjectIDs limits hits to the caller's
// projects; a nil slice means no restriction (admin).
type Query struct {
	Text            string
	FilterType      ResultType // empty = all types
	FilterProjectID int64
	ProjectIDs      []int64
	Limit           int
	Offset          int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexProject(p ProjectRecord) error
	IndexTask(t TaskRecord) error
	IndexMessage(m MessageRecord) error
	DeleteProject(id int64) error
	DeleteTask(id int64) error
	DeleteMessage(id int64) error
}

// ProjectRecord is the data we index for a project.
type ProjectRecord struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Subtitle    string `json:"subtitle"`
	Description string `json:"description"`
}

// TaskRecord is the data we index for a task.
type TaskRecord struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ProjectID   int64  `json:"projectId"`
	Done        bool   `json:"done"`
}

// MessageRecord is the data we index for a message.
type MessageRecord struct {
	ID        int64  `json:"id"`
	Content   string `json:"content"`
	ProjectID int64  `json:"projectId"`
}
