package store

import "errors"

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var (
	ErrBadPagination = errors.New("invalid pagination")

	// ErrBadPattern flags a filter pattern the database regex engine
	// rejected. Callers pre-validate with RE2, but Postgres applies POSIX
	// ARE semantics and refuses some constructs RE2 alone accepts.
	ErrBadPattern = errors.New("invalid pattern")
)

// Pagination is the caller-supplied page/size window. Validate before use;
// an invalid window must short-circuit the operation with no scan.
type Pagination struct {
	Page int
	Size int
}

// NewPagination validates the window. A zero size takes the default; an
// explicit size must fall within 1..MaxPageSize.
func NewPagination(page, size int) (Pagination, error) {
	if size == 0 {
		size = DefaultPageSize
	}
	if page < 1 || size < 1 || size > MaxPageSize {
		return Pagination{}, ErrBadPagination
	}
	return Pagination{Page: page, Size: size}, nil
}

func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Size
}

// DeletePredicate selects the rows a delete may touch: by id alone (forced,
// for holders of the class management permission) or by id plus owner in one
// compound match (owned). Both fields of an owned predicate travel together,
// so no call site depends on argument order.
type DeletePredicate struct {
	ID      string
	OwnerID string
}

func ByID(id string) DeletePredicate {
	return DeletePredicate{ID: id}
}

func ByIDAndOwner(id, ownerID string) DeletePredicate {
	return DeletePredicate{ID: id, OwnerID: ownerID}
}

func (p DeletePredicate) Owned() bool {
	return p.OwnerID != ""
}

// ListFilter selects at most one of the three listing modes: exact name/title
// match, regex pattern match, or unfiltered. All=true bypasses the visibility
// scope for the request; otherwise only PUBLIC rows and rows owned by ViewerID
// are scanned.
type ListFilter struct {
	Name     string
	Pattern  string
	All      bool
	ViewerID string
}
