package jobboard

import "github.com/nonibytes/jobboard/pkg/jobboard/query"

// DefaultRequest is page 1 at the default page size with no filters.
func DefaultRequest() query.Request {
	return query.Request{Page: 1, PageSize: DefaultPageSize}
}
