package webrtc

import (
	"net/http/httptest"
	"testing"
)

func TestStatusWithNoPeer(t *testing.T) {
	s := New(Config{Port: 0})
	req := httptest.NewRequest("GET", "/status", nil)
	rec := httptest.NewRecorder()
	s.handleStatus(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Body.String(); got == "" {
		t.Fatalf("expected a status body")
	}
}

func TestAnswerWithoutOfferIsRejected(t *testing.T) {
	s := New(Config{Port: 0})
	req := httptest.NewRequest("POST", "/answer", nil)
	rec := httptest.NewRecorder()
	s.handleAnswer(rec, req)

	if rec.Code != 400 {
		t.Fatalf("expected 400 for answer with no pending offer, got %d", rec.Code)
	}
}
