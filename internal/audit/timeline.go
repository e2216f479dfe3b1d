package audit

import "time"

// Entry is a single recorded admin action.
type Entry struct {
	ID         int64
	ActorID    int64
	ActorEmail string
	Action     string
	Detail     string
	IP         string
	CreatedAt  time.Time
}

// Filters narrows the timeline query.
type Filters struct {
	From     time.Time
	To       time.Time
	ActorID  int64
	Action   string
	Page     int
	PageSize int
}

// PagingInfo carries simple pagination metadata.
type PagingInfo struct {
	Page     int
	HasNext  bool
	PageSize int
	PrevPage int
	NextPage int
}

// Result bundles timeline rows with paging info.
type Result struct {
	Rows   []Entry
	Paging PagingInfo
}
