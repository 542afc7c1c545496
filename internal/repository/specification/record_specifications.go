package specification

import (
	"encoding/json"
	"strings"

	"notesync-be/internal/entity"

	"gorm.io/gorm"
)

// ByTenant partitions every record and ledger query.
type ByTenant struct {
	TenantID string
}

func (s ByTenant) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("tenant_id = ?", s.TenantID)
}

type ByUniqueID struct {
	UniqueID string
}

func (s ByUniqueID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("unique_id = ?", s.UniqueID)
}

type UniqueIDIn struct {
	UniqueIDs []string
}

func (s UniqueIDIn) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("unique_id IN ?", s.UniqueIDs)
}

type RecordTypeIn struct {
	Types []entity.RecordType
}

func (s RecordTypeIn) Apply(db *gorm.DB) *gorm.DB {
	types := make([]string, len(s.Types))
	for i, t := range s.Types {
		types[i] = string(t)
	}
	return db.Where("record_type IN ?", types)
}

// ModifiedAfter is strict.
type ModifiedAfter struct {
	Millis int64
}

func (s ModifiedAfter) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("last_modified > ?", s.Millis)
}

// AnyTagID matches records whose tag_ids jsonb array contains at least one of the ids.
type AnyTagID struct {
	TagIDs []string
}

func (s AnyTagID) Apply(db *gorm.DB) *gorm.DB {
	conds := make([]string, 0, len(s.TagIDs))
	args := make([]interface{}, 0, len(s.TagIDs))
	for _, id := range s.TagIDs {
		raw, _ := json.Marshal([]string{id})
		conds = append(conds, "tag_ids @> ?::jsonb")
		args = append(args, string(raw))
	}
	return db.Where("("+strings.Join(conds, " OR ")+")", args...)
}

// KeywordMatch is a case-insensitive substring match over the searchable text columns.
type KeywordMatch struct {
	Keyword string
}

func (s KeywordMatch) Apply(db *gorm.DB) *gorm.DB {
	pattern := "%" + escapeLike(s.Keyword) + "%"
	return db.Where(
		"(title ILIKE ? OR content ILIKE ? OR properties->>'text' ILIKE ? OR properties->>'name' ILIKE ?)",
		pattern, pattern, pattern, pattern,
	)
}

// DeletedSince is inclusive.
type DeletedSince struct {
	Millis int64
}

func (s DeletedSince) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("deleted_at >= ?", s.Millis)
}

// ForRecordFilter translates a store-agnostic filter into specifications.
func ForRecordFilter(f entity.RecordFilter) []Specification {
	specs := []Specification{ByTenant{TenantID: f.TenantID}}
	if len(f.RecordTypes) > 0 {
		specs = append(specs, RecordTypeIn{Types: f.RecordTypes})
	}
	if f.ModifiedAfter != nil {
		specs = append(specs, ModifiedAfter{Millis: *f.ModifiedAfter})
	}
	if len(f.AnyTagIDs) > 0 {
		specs = append(specs, AnyTagID{TagIDs: f.AnyTagIDs})
	}
	if f.Keyword != "" {
		specs = append(specs, KeywordMatch{Keyword: f.Keyword})
	}
	if len(f.UniqueIDs) > 0 {
		specs = append(specs, UniqueIDIn{UniqueIDs: f.UniqueIDs})
	}
	return specs
}

// OrderForRecordFilter keeps offset paging deterministic with a unique_id tiebreak.
func OrderForRecordFilter(f entity.RecordFilter) []Specification {
	return []Specification{
		OrderBy{Field: "last_modified", Desc: f.NewestFirst},
		OrderBy{Field: "unique_id"},
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
