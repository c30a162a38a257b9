package agent

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"support_server/core/domain"
)

// fakeCompleter scripts language detection per input and records re-render
// requests.
type fakeCompleter struct {
	languages map[string]string // detection input prefix -> tag
	rendered  string
	renders   int
}

func (f *fakeCompleter) CompleteJSON(_ context.Context, _, userPrompt string) (string, error) {
	for prefix, tag := range f.languages {
		if strings.HasPrefix(userPrompt, prefix) {
			return `{"language": "` + tag + `"}`, nil
		}
	}
	return `{"language": "en"}`, nil
}

func (f *fakeCompleter) CompleteWithSystem(_ context.Context, _, _ string) (string, error) {
	f.renders++
	return f.rendered, nil
}

func inboundMsg(subject, body string) domain.InboundMessage {
	return domain.InboundMessage{
		ID:       "msg-1",
		ThreadID: "thread-1",
		From:     "Jamie Doe <jamie@example.com>",
		Subject:  subject,
		Body:     body,
	}
}

func TestComposeMatchingLanguage(t *testing.T) {
	llm := &fakeCompleter{languages: map[string]string{
		"Where is my order": "en",
		"It ships tomorrow": "en",
	}}
	c := NewComposer(llm, zerolog.Nop())

	draft, err := c.Compose(context.Background(), inboundMsg("Order #1001", "Where is my order?"), "It ships tomorrow.")
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if llm.renders != 0 {
		t.Fatalf("re-rendered %d times, want 0", llm.renders)
	}
	if draft.ThreadID != "thread-1" {
		t.Fatalf("ThreadID = %q", draft.ThreadID)
	}
	if draft.To != "jamie@example.com" {
		t.Fatalf("To = %q", draft.To)
	}
	if draft.Subject != "Re: Order #1001" {
		t.Fatalf("Subject = %q", draft.Subject)
	}
	if draft.LanguageTag != "en" {
		t.Fatalf("LanguageTag = %q", draft.LanguageTag)
	}
	if !strings.Contains(draft.BodyHTML, "<p>It ships tomorrow.</p>") {
		t.Fatalf("BodyHTML = %q", draft.BodyHTML)
	}
	if !strings.Contains(draft.BodyHTML, "--<br>Customer Support Team") {
		t.Fatal("BodyHTML missing sign-off")
	}
}

func TestComposeRerendersOnLanguageMismatch(t *testing.T) {
	llm := &fakeCompleter{
		languages: map[string]string{
			"Wo ist meine Bestellung": "de",
			"It ships tomorrow":       "en",
		},
		rendered: "Sie wird morgen versandt.",
	}
	c := NewComposer(llm, zerolog.Nop())

	draft, err := c.Compose(context.Background(), inboundMsg("Bestellung", "Wo ist meine Bestellung?"), "It ships tomorrow.")
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if llm.renders != 1 {
		t.Fatalf("re-rendered %d times, want 1", llm.renders)
	}
	if draft.LanguageTag != "de" {
		t.Fatalf("LanguageTag = %q, want de", draft.LanguageTag)
	}
	if !strings.Contains(draft.BodyHTML, "Sie wird morgen versandt.") {
		t.Fatalf("BodyHTML = %q", draft.BodyHTML)
	}
}

func TestComposeEmptyAnswerFails(t *testing.T) {
	c := NewComposer(&fakeCompleter{}, zerolog.Nop())
	if _, err := c.Compose(context.Background(), inboundMsg("Hi", "hello"), "   "); err == nil {
		t.Fatal("expected error for empty answer")
	}
}

func TestReplySubject(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Order #1001", "Re: Order #1001"},
		{"Re: Order #1001", "Re: Order #1001"},
		{"RE: Order #1001", "RE: Order #1001"},
		{"", "Re: your message"},
		{"  spaced  ", "Re: spaced"},
	}
	for _, tc := range tests {
		if got := replySubject(tc.in); got != tc.want {
			t.Errorf("replySubject(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRenderHTMLParagraphsAndBreaks(t *testing.T) {
	got := renderHTML("Hello Jamie,\n\nYour order shipped.\nTracking: ABC123")
	want := "<p>Hello Jamie,</p><p>Your order shipped.<br>Tracking: ABC123</p><p>--<br>Customer Support Team</p>"
	if got != want {
		t.Fatalf("renderHTML() = %q, want %q", got, want)
	}
}

func TestTruncateForDetectionKeepsRunesWhole(t *testing.T) {
	// "é" is two bytes and straddles the 600-byte cap here.
	long := strings.Repeat("a", 599) + strings.Repeat("é", 40)
	got := truncateForDetection(long)
	if len(got) > 600 {
		t.Fatalf("len = %d, want <= 600", len(got))
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncated text is not valid UTF-8: %q", got[len(got)-4:])
	}
	if got != strings.Repeat("a", 599) {
		t.Fatalf("cut at byte %d, want 599", len(got))
	}

	short := "¿Dónde está mi pedido?"
	if truncateForDetection(short) != short {
		t.Fatal("short text must pass through unchanged")
	}
}
