package diffdetect

import "time"

// Snapshot is the immutable content of a resource captured at CreateDate.
type Snapshot struct {
	ID         int64     `json:"id"`
	ResourceID int64     `json:"resource_id"`
	Content    []byte    `json:"content"`
	CreateDate time.Time `json:"createdate"`
	CreateUser string    `json:"createuser"`
	Checked    bool      `json:"checked"`
}

// Summary is returning the metadata of the snapshot.
func (s *Snapshot) Summary() SnapshotSummary {
	return SnapshotSummary{
		ID:         s.ID,
		CreateDate: s.CreateDate,
		CreateUser: s.CreateUser,
		Size:       int64(len(s.Content)),
		Checked:    s.Checked,
	}
}

// SnapshotSummary is describing a snapshot without its content.
type SnapshotSummary struct {
	ID         int64     `json:"id"`
	CreateDate time.Time `json:"createdate"`
	CreateUser string    `json:"createuser"`
	Size       int64     `json:"size"`
	Checked    bool      `json:"checked"`
}
