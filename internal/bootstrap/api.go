package bootstrap

import (
	"errors"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	httpin "support_server/adapter/in/http"
	"support_server/config"
	"support_server/pkg/apperr"
	"support_server/pkg/response"
)

// NewAPI builds the fiber app serving the manual chat surface.
func NewAPI(cfg *config.Config, deps *Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: cfg.IsProduction(),
		ReadBufferSize:        16384,
		WriteBufferSize:       16384,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		BodyLimit:             1 * 1024 * 1024,
		ErrorHandler:          apiErrorHandler,
	})

	app.Use(recover.New())
	app.Use(requestid.New())

	integrations := httpin.Integrations{
		OpenAI:  cfg.OpenAIAPIKey != "",
		Shopify: cfg.ShopifyStoreURL != "" && cfg.ShopifyAccessToken != "",
		Gmail:   cfg.GoogleClientID != "" && cfg.GoogleTokenJSON != "",
		Redis:   cfg.RedisURL != "",
	}
	handler := httpin.NewChatHandler(deps.Router, deps.Loop, cfg.AgentSecret, integrations, deps.Log)
	handler.Register(app)

	return app
}

// apiErrorHandler renders every escaped error in the standard response
// envelope. Router-level errors keep their fiber status; anything else maps
// through the application error taxonomy.
func apiErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return response.Error(c, fe.Code, apperr.CodeBadRequest, fe.Message)
	}
	return response.AppError(c, apperr.From(err))
}
