package session

import (
	"net/url"
	"testing"
)

func TestShareURLPreservesExistingQuery(t *testing.T) {
	out, err := ShareURL("https://cars.example/listing?id=42", "r1", "t1")
	if err != nil {
		t.Fatal(err)
	}

	u, err := url.Parse(out)
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	if q.Get("id") != "42" {
		t.Fatalf("existing parameter lost: %s", out)
	}
	if q.Get("room_id") != "r1" || q.Get("visitor_token") != "t1" {
		t.Fatalf("resume parameters missing: %s", out)
	}
}

func TestShareURLRoundTrip(t *testing.T) {
	out, err := ShareURL("https://cars.example/listing", "room-abc", "tok en+1")
	if err != nil {
		t.Fatal(err)
	}

	p := ParseResumeParams(out)
	if p == nil {
		t.Fatalf("expected resume params in %s", out)
	}
	if p.RoomID != "room-abc" || p.VisitorToken != "tok en+1" {
		t.Fatalf("round trip mangled params: %+v", p)
	}
}

func TestParseResumeParamsRequiresBoth(t *testing.T) {
	for _, raw := range []string{
		"https://cars.example/listing",
		"https://cars.example/listing?room_id=r1",
		"https://cars.example/listing?visitor_token=t1",
	} {
		if p := ParseResumeParams(raw); p != nil {
			t.Fatalf("expected nil for %s, got %+v", raw, p)
		}
	}
}

func TestParseResumeParamsBadURL(t *testing.T) {
	if p := ParseResumeParams("://not-a-url"); p != nil {
		t.Fatalf("expected nil for an unparseable URL, got %+v", p)
	}
}
