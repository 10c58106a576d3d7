package models

// SessionRecord is the persisted visitor identity for one owner: which room
// the visitor belongs to and the token that proves it. One record exists per
// owner being chatted with; the owner ID is the storage key, not part of the
// serialized value.
type SessionRecord struct {
	OwnerID      string `json:"-"`
	RoomID       string `json:"roomId"`
	VisitorToken string `json:"visitorToken"`
}
