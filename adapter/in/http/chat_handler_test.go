package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"support_server/core/agent"
	"support_server/core/domain"
)

type fakeClassifier struct{ category domain.Category }

func (f *fakeClassifier) Classify(context.Context, string) domain.Category { return f.category }

type fakeRunner struct {
	result  *agent.RunResult
	err     error
	history []domain.Turn
}

func (f *fakeRunner) Run(_ context.Context, _ domain.Category, _ string, history []domain.Turn) (*agent.RunResult, error) {
	f.history = history
	return f.result, f.err
}

const testSecret = "test-secret"

func newTestApp(run *fakeRunner) *fiber.App {
	app := fiber.New()
	h := NewChatHandler(&fakeClassifier{category: domain.CategoryProductInfoAvailability}, run, testSecret, Integrations{OpenAI: true, Shopify: true}, zerolog.Nop())
	h.Register(app)
	return app
}

func TestChatRequiresSecret(t *testing.T) {
	app := newTestApp(&fakeRunner{result: &agent.RunResult{Answer: "hi"}})

	tests := []struct {
		name   string
		secret string
	}{
		{"missing secret", ""},
		{"wrong secret", "nope"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/chat", bytes.NewBufferString(`{"message":"hello"}`))
			req.Header.Set("Content-Type", "application/json")
			if tc.secret != "" {
				req.Header.Set("X-Secret", tc.secret)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test() error = %v", err)
			}
			if resp.StatusCode != fiber.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", resp.StatusCode)
			}
		})
	}
}

func TestChatHappyPath(t *testing.T) {
	run := &fakeRunner{result: &agent.RunResult{Answer: "In stock!"}}
	app := newTestApp(run)

	body := `{"message":"Is the blue mug available?","history":[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}]}`
	req := httptest.NewRequest("POST", "/chat", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Secret", testSecret)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	raw, _ := io.ReadAll(resp.Body)
	var parsed struct {
		Success bool `json:"success"`
		Data    struct {
			Response string `json:"response"`
			Category string `json:"category"`
			History  []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"history"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if !parsed.Success {
		t.Fatal("success = false")
	}
	if parsed.Data.Response != "In stock!" {
		t.Fatalf("response = %q", parsed.Data.Response)
	}
	if parsed.Data.Category != string(domain.CategoryProductInfoAvailability) {
		t.Fatalf("category = %q", parsed.Data.Category)
	}
	if len(parsed.Data.History) != 4 {
		t.Fatalf("history length = %d, want 4", len(parsed.Data.History))
	}
	last := parsed.Data.History[3]
	if last.Role != domain.RoleAssistant || last.Content != "In stock!" {
		t.Fatalf("last turn = %+v", last)
	}

	if len(run.history) != 2 {
		t.Fatalf("loop received %d history turns, want 2", len(run.history))
	}
}

func TestChatEmptyMessageRejected(t *testing.T) {
	app := newTestApp(&fakeRunner{result: &agent.RunResult{Answer: "hi"}})

	req := httptest.NewRequest("POST", "/chat", bytes.NewBufferString(`{"message":"  "}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Secret", testSecret)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestChatBackendFailure(t *testing.T) {
	app := newTestApp(&fakeRunner{err: errors.New("rate limited")})

	req := httptest.NewRequest("POST", "/chat", bytes.NewBufferString(`{"message":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Secret", testSecret)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
}

func TestChatEscalatedAnswer(t *testing.T) {
	app := newTestApp(&fakeRunner{result: &agent.RunResult{Escalated: true, EscalationReason: "cap"}})

	req := httptest.NewRequest("POST", "/chat", bytes.NewBufferString(`{"message":"complicated"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Secret", testSecret)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	raw, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(raw, []byte("escalated")) {
		t.Fatalf("escalation notice missing from %s", raw)
	}
}

func TestHealth(t *testing.T) {
	app := newTestApp(&fakeRunner{result: &agent.RunResult{Answer: "hi"}})

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	raw, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(raw, []byte(`"openai":true`)) || !bytes.Contains(raw, []byte(`"redis":false`)) {
		t.Fatalf("integration report missing from %s", raw)
	}
}
