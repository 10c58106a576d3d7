package session

import "net/url"

// Query parameter names carried by a shareable chat link.
const (
	paramRoomID       = "room_id"
	paramVisitorToken = "visitor_token"
)

// ResumeParams identify a previously issued room. When carried in a
// shareable link they take precedence over the stored session record.
type ResumeParams struct {
	RoomID       string
	VisitorToken string
}

// ShareURL returns pageURL with room_id and visitor_token set in its query,
// leaving unrelated parameters untouched, so the chat is resumable from the
// address alone.
func ShareURL(pageURL, roomID, visitorToken string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(paramRoomID, roomID)
	q.Set(paramVisitorToken, visitorToken)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ParseResumeParams extracts resume parameters from a page URL. Both
// parameters must be present; otherwise there is nothing to resume.
func ParseResumeParams(raw string) *ResumeParams {
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	q := u.Query()
	roomID, token := q.Get(paramRoomID), q.Get(paramVisitorToken)
	if roomID == "" || token == "" {
		return nil
	}
	return &ResumeParams{RoomID: roomID, VisitorToken: token}
}
