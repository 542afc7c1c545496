package entity

// RecordFilter is the store-agnostic description of a bulk read. Each store
// translates it into its own query language.
type RecordFilter struct {
	TenantID      string
	RecordTypes   []RecordType
	ModifiedAfter *int64 // strict: lastModified > ModifiedAfter
	AnyTagIDs     []string
	Keyword       string
	UniqueIDs     []string
	// NewestFirst orders by lastModified descending; the default is ascending,
	// which keeps offset paging stable while writes keep landing.
	NewestFirst bool
}

// VectorQuery is a similarity read scoped by an optional filter.
type VectorQuery struct {
	Filter RecordFilter
	Vector []float32
}
