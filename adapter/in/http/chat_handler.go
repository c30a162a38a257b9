// Package http exposes the manual testing surface: a secret-gated chat
// endpoint that runs the same routing and tool loop as the mailbox pipeline.
package http

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"support_server/core/agent"
	"support_server/core/domain"
	"support_server/pkg/apperr"
	"support_server/pkg/response"
)

type classifier interface {
	Classify(ctx context.Context, content string) domain.Category
}

type runner interface {
	Run(ctx context.Context, category domain.Category, userInput string, history []domain.Turn) (*agent.RunResult, error)
}

// Integrations reports which external backends are configured, for the
// health endpoint.
type Integrations struct {
	OpenAI  bool `json:"openai"`
	Shopify bool `json:"shopify"`
	Gmail   bool `json:"gmail"`
	Redis   bool `json:"redis"`
}

// ChatHandler serves the manual chat surface.
type ChatHandler struct {
	router       classifier
	loop         runner
	secret       string
	integrations Integrations
	log          zerolog.Logger
}

// NewChatHandler creates the handler. secret guards every chat request.
func NewChatHandler(router classifier, loop runner, secret string, integrations Integrations, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		router:       router,
		loop:         loop,
		secret:       secret,
		integrations: integrations,
		log:          log.With().Str("component", "chat_handler").Logger(),
	}
}

// Register mounts routes on the app.
func (h *ChatHandler) Register(app *fiber.App) {
	app.Get("/", h.Root)
	app.Get("/health", h.Health)
	app.Post("/chat", h.RequireSecret, h.Chat)
}

// Root returns service identification.
func (h *ChatHandler) Root(c *fiber.Ctx) error {
	return response.OK(c, fiber.Map{
		"service": "support_server",
		"status":  "running",
	})
}

// Health returns liveness and which integrations are configured.
func (h *ChatHandler) Health(c *fiber.Ctx) error {
	return response.OK(c, fiber.Map{
		"status":       "ok",
		"integrations": h.integrations,
	})
}

// RequireSecret rejects requests without the shared secret header.
func (h *ChatHandler) RequireSecret(c *fiber.Ctx) error {
	got := c.Get("X-Secret")
	if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
		return response.AppError(c, apperr.Unauthorized("invalid secret"))
	}
	return c.Next()
}

type chatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Message string     `json:"message"`
	History []chatTurn `json:"history"`
}

type chatResponse struct {
	Response string     `json:"response"`
	Category string     `json:"category"`
	History  []chatTurn `json:"history"`
}

// Chat classifies the message and runs the tool loop, returning the updated
// conversation so the caller can continue it.
func (h *ChatHandler) Chat(c *fiber.Ctx) error {
	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		return response.AppError(c, apperr.BadRequest("invalid request body"))
	}
	if strings.TrimSpace(req.Message) == "" {
		return response.AppError(c, apperr.BadRequest("message is required"))
	}

	ctx := c.UserContext()
	category := h.router.Classify(ctx, req.Message)

	history := make([]domain.Turn, 0, len(req.History))
	for _, t := range req.History {
		role := t.Role
		if role != domain.RoleAssistant {
			role = domain.RoleUser
		}
		history = append(history, domain.Turn{Role: role, Content: t.Content})
	}

	result, err := h.loop.Run(ctx, category, req.Message, history)
	if err != nil {
		h.log.Error().Err(err).Msg("chat loop failed")
		return response.AppError(c, apperr.External("generation backend unavailable", err))
	}

	answer := result.Answer
	if result.Escalated {
		answer = "This conversation has been escalated to our support team. " +
			"Someone will follow up with you shortly."
	}

	updated := append(req.History,
		chatTurn{Role: domain.RoleUser, Content: req.Message},
		chatTurn{Role: domain.RoleAssistant, Content: answer},
	)

	return response.OK(c, chatResponse{
		Response: answer,
		Category: string(category),
		History:  updated,
	})
}
