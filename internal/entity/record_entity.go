package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"notesync-be/pkg/lexical"
)

var ErrInvalidRecord = errors.New("invalid record")

type RecordType string

const (
	RecordTypeNote        RecordType = "note"
	RecordTypeTag         RecordType = "tag"
	RecordTypeNoteBody    RecordType = "noteBody"
	RecordTypeMisc        RecordType = "misc"
	RecordTypeDailyNote   RecordType = "dailyNote"
	RecordTypeMeetingNote RecordType = "meetingNote"
)

// attributeKeys lists the variant-specific properties each record type may carry
// besides the common columns.
func (t RecordType) attributeKeys() map[string]struct{} {
	var keys []string
	switch t {
	case RecordTypeNote:
		keys = []string{"filePath", "fileData", "fileType", "fileText", "noteType", "blobPath"}
	case RecordTypeTag:
		keys = []string{"name", "color"}
	case RecordTypeNoteBody:
		keys = []string{"text", "referenceId", "referenceTitle", "type", "position", "journalDate"}
	case RecordTypeMisc:
		keys = []string{"date", "foreignId", "miscData", "startId", "startData", "endId", "endData", "type"}
	case RecordTypeDailyNote:
		keys = []string{"date"}
	case RecordTypeMeetingNote:
		keys = []string{"description", "notes", "transcript", "referenceId"}
	default:
		return nil
	}
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

func (t RecordType) Valid() bool {
	return t.attributeKeys() != nil
}

// EventCategory is the relay category mutations of this type are broadcast under.
func (t RecordType) EventCategory() string {
	if t == RecordTypeTag {
		return "tag"
	}
	return "note"
}

type TagRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Record is the unit of storage. Connections are id references only; they are
// resolved through the store, never embedded.
type Record struct {
	UniqueID            string         `json:"uniqueId"`
	TenantID            string         `json:"tenantId"`
	RecordType          RecordType     `json:"recordType"`
	Created             int64          `json:"created"`
	LastModified        int64          `json:"lastModified"`
	Vector              []float32      `json:"vector,omitempty"`
	LastUpdateDevice    string         `json:"lastUpdateDevice"`
	LastUpdateDeviceID  string         `json:"lastUpdateDeviceId"`
	Title               string         `json:"title,omitempty"`
	Content             string         `json:"content,omitempty"`
	Tags                []TagRef       `json:"tags,omitempty"`
	TagIDs              []string       `json:"tagIds,omitempty"`
	IncomingConnections []string       `json:"incomingConnections,omitempty"`
	OutgoingConnections []string       `json:"outgoingConnections,omitempty"`
	Attributes          map[string]any `json:"-"`
}

// commonKeys are the JSON keys owned by Record's typed fields.
var commonKeys = map[string]struct{}{
	"uniqueId": {}, "tenantId": {}, "recordType": {}, "created": {}, "lastModified": {},
	"vector": {}, "lastUpdateDevice": {}, "lastUpdateDeviceId": {}, "title": {}, "content": {},
	"tags": {}, "tagIds": {}, "incomingConnections": {}, "outgoingConnections": {},
}

type recordFields Record

// MarshalJSON flattens Attributes next to the common fields.
func (r Record) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(recordFields(r))
	if err != nil || len(r.Attributes) == 0 {
		return base, err
	}
	flat := make(map[string]json.RawMessage, len(commonKeys)+len(r.Attributes))
	if err := json.Unmarshal(base, &flat); err != nil {
		return nil, err
	}
	for k, v := range r.Attributes {
		if _, taken := commonKeys[k]; taken {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal attribute %s: %w", k, err)
		}
		flat[k] = raw
	}
	return json.Marshal(flat)
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var fields recordFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	*r = Record(fields)
	for k, v := range flat {
		if _, taken := commonKeys[k]; taken {
			continue
		}
		if r.Attributes == nil {
			r.Attributes = make(map[string]any)
		}
		r.Attributes[k] = v
	}
	return nil
}

// Validate checks the discriminant and that every attribute belongs to the variant.
func (r *Record) Validate() error {
	if r.UniqueID == "" {
		return fmt.Errorf("%w: uniqueId is required", ErrInvalidRecord)
	}
	if r.TenantID == "" {
		return fmt.Errorf("%w: tenantId is required", ErrInvalidRecord)
	}
	allowed := r.RecordType.attributeKeys()
	if allowed == nil {
		return fmt.Errorf("%w: unknown recordType %q", ErrInvalidRecord, r.RecordType)
	}
	for k := range r.Attributes {
		if _, ok := allowed[k]; !ok {
			return fmt.Errorf("%w: attribute %q is not valid for %s", ErrInvalidRecord, k, r.RecordType)
		}
	}
	return nil
}

// SyncTagIDs recomputes TagIDs from Tags. Safe to apply repeatedly.
func (r *Record) SyncTagIDs() {
	r.TagIDs = SortedTagIDs(r.Tags)
}

// SortedTagIDs returns the sorted, de-duplicated, non-empty ids of tags.
func SortedTagIDs(tags []TagRef) []string {
	seen := make(map[string]struct{}, len(tags))
	ids := make([]string, 0, len(tags))
	for _, t := range tags {
		if t.ID == "" {
			continue
		}
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		ids = append(ids, t.ID)
	}
	sort.Strings(ids)
	return ids
}

// BlobPath returns the blob storage object backing the record, if any.
func (r *Record) BlobPath() string {
	for _, key := range []string{"blobPath", "filePath"} {
		if s, ok := r.Attributes[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// EmbeddingText is the text the embedding model sees for this record.
func (r *Record) EmbeddingText() string {
	switch r.RecordType {
	case RecordTypeTag:
		name, _ := r.Attributes["name"].(string)
		return name
	case RecordTypeNoteBody:
		text, _ := r.Attributes["text"].(string)
		return text
	case RecordTypeMisc, RecordTypeDailyNote:
		return lexical.PlainText(r.Content)
	default:
		content := lexical.PlainText(r.Content)
		if content == "" {
			return r.Title
		}
		return r.Title + "\n" + content
	}
}

// FitVector pads with zeros or truncates v to dim.
func FitVector(v []float32, dim int) []float32 {
	if dim <= 0 || len(v) == dim {
		return v
	}
	out := make([]float32, dim)
	copy(out, v)
	return out
}

// MetadataUpdate is a partial update of a record's non-vector properties.
// Nil fields are left untouched.
type MetadataUpdate struct {
	Title               *string        `json:"title,omitempty"`
	Content             *string        `json:"content,omitempty"`
	Tags                *[]TagRef      `json:"tags,omitempty"`
	IncomingConnections *[]string      `json:"incomingConnections,omitempty"`
	OutgoingConnections *[]string      `json:"outgoingConnections,omitempty"`
	Attributes          map[string]any `json:"attributes,omitempty"`
	LastModified        int64          `json:"lastModified"`
	LastUpdateDevice    string         `json:"lastUpdateDevice"`
	LastUpdateDeviceID  string         `json:"lastUpdateDeviceId"`
}

// ValidateFor rejects attributes that a record of type t may not carry.
func (u *MetadataUpdate) ValidateFor(t RecordType) error {
	allowed := t.attributeKeys()
	if allowed == nil {
		return fmt.Errorf("%w: unknown recordType %q", ErrInvalidRecord, t)
	}
	for k := range u.Attributes {
		if _, ok := allowed[k]; !ok {
			return fmt.Errorf("%w: attribute %q is not valid for %s", ErrInvalidRecord, k, t)
		}
	}
	return nil
}

// Apply mutates r. Whenever Tags is set, TagIDs is recomputed.
func (u *MetadataUpdate) Apply(r *Record) {
	if u.Title != nil {
		r.Title = *u.Title
	}
	if u.Content != nil {
		r.Content = *u.Content
	}
	if u.Tags != nil {
		r.Tags = append([]TagRef(nil), (*u.Tags)...)
		r.SyncTagIDs()
	}
	if u.IncomingConnections != nil {
		r.IncomingConnections = append([]string(nil), (*u.IncomingConnections)...)
	}
	if u.OutgoingConnections != nil {
		r.OutgoingConnections = append([]string(nil), (*u.OutgoingConnections)...)
	}
	for k, v := range u.Attributes {
		if r.Attributes == nil {
			r.Attributes = make(map[string]any)
		}
		r.Attributes[k] = v
	}
	if u.LastModified > r.LastModified {
		r.LastModified = u.LastModified
	}
	if u.LastUpdateDevice != "" {
		r.LastUpdateDevice = u.LastUpdateDevice
	}
	if u.LastUpdateDeviceID != "" {
		r.LastUpdateDeviceID = u.LastUpdateDeviceID
	}
}

// Changes renders the update as the flat map carried in note_updated events.
func (u *MetadataUpdate) Changes() map[string]any {
	out := make(map[string]any)
	if u.Title != nil {
		out["title"] = *u.Title
	}
	if u.Content != nil {
		out["content"] = *u.Content
	}
	if u.Tags != nil {
		out["tags"] = *u.Tags
		out["tagIds"] = SortedTagIDs(*u.Tags)
	}
	if u.IncomingConnections != nil {
		out["incomingConnections"] = *u.IncomingConnections
	}
	if u.OutgoingConnections != nil {
		out["outgoingConnections"] = *u.OutgoingConnections
	}
	for k, v := range u.Attributes {
		out[k] = v
	}
	out["lastModified"] = u.LastModified
	return out
}
