package gmail

import (
	"encoding/base64"
	"strings"
	"testing"

	"google.golang.org/api/gmail/v1"

	"support_server/core/domain"
)

func b64(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func TestParseMessagePlainText(t *testing.T) {
	msg := &gmail.Message{
		Id:           "m1",
		ThreadId:     "t1",
		InternalDate: 1700000000000,
		Payload: &gmail.MessagePart{
			MimeType: "multipart/alternative",
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: "Jamie Doe <jamie@example.com>"},
				{Name: "Subject", Value: "Order #1001"},
			},
			Parts: []*gmail.MessagePart{
				{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: b64("<p>Where is my order?</p>")}},
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64("Where is my order?")}},
			},
		},
	}

	got := parseMessage(msg)
	if got.ID != "m1" || got.ThreadID != "t1" {
		t.Fatalf("ids = %q/%q", got.ID, got.ThreadID)
	}
	if got.From != "Jamie Doe <jamie@example.com>" {
		t.Fatalf("From = %q", got.From)
	}
	if got.Subject != "Order #1001" {
		t.Fatalf("Subject = %q", got.Subject)
	}
	if got.Body != "Where is my order?" {
		t.Fatalf("Body = %q, want plain text preferred", got.Body)
	}
	if got.ReceivedAt.IsZero() {
		t.Fatal("ReceivedAt not set")
	}
}

func TestParseMessageFallsBackToHTMLThenSnippet(t *testing.T) {
	htmlOnly := &gmail.Message{
		Id: "m2", ThreadId: "t2",
		Payload: &gmail.MessagePart{
			MimeType: "text/html",
			Body:     &gmail.MessagePartBody{Data: b64("<p>hello</p>")},
		},
	}
	if got := parseMessage(htmlOnly); got.Body != "<p>hello</p>" {
		t.Fatalf("Body = %q, want html fallback", got.Body)
	}

	snippetOnly := &gmail.Message{Id: "m3", ThreadId: "t3", Snippet: "just a snippet"}
	if got := parseMessage(snippetOnly); got.Body != "just a snippet" {
		t.Fatalf("Body = %q, want snippet fallback", got.Body)
	}
}

func TestBuildRawReply(t *testing.T) {
	raw := buildRawReply(&domain.DraftReply{
		To:       "jamie@example.com",
		Subject:  "Re: Order #1001",
		BodyHTML: "<p>On its way.</p>",
	})

	for _, want := range []string{
		"To: jamie@example.com\r\n",
		"Subject: Re: Order #1001\r\n",
		"Content-Type: text/html; charset=UTF-8\r\n",
		"\r\n\r\n<p>On its way.</p>",
	} {
		if !strings.Contains(raw, want) {
			t.Errorf("raw reply missing %q:\n%s", want, raw)
		}
	}
}
