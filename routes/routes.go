package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tasker/config"
	controller "tasker/controllers"
	"tasker/metrics"
	"tasker/middleware"
	"tasker/utils"
)

// Options carries what the routes need from configuration.
type Options struct {
	Location           *time.Location
	APISecret          string
	RateLimitPerMinute int
	Redis              config.RedisConfig
	CORSOrigins        []string
	AccessLog          bool

	// Now overrides the clock used for "today" and snoozing.
	Now func() time.Time
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Location:           config.Location(),
		APISecret:          cfg.APISecret,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Redis:              cfg.Redis,
		CORSOrigins:        cfg.CORSOrigins,
		AccessLog:          true,
	}
}

// NewApp creates the fiber app with the error handler and the middleware
// every route shares.
func NewApp(opts Options) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "tasker",
		ErrorHandler: utils.ErrorHandler,
		// values handed to logs, Sentry and metrics outlive the request
		Immutable: true,
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(middleware.CORS(opts.CORSOrigins))
	app.Use(metrics.Middleware)

	return app
}

func SetupRoutes(app *fiber.App, db *gorm.DB, opts Options) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	userController := controller.NewUserController(db)
	taskController := controller.NewTaskController(db, opts.Location)
	teamController := controller.NewTeamController(db)
	if opts.Now != nil {
		taskController.Now = opts.Now
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", metrics.Handler())

	handlers := []fiber.Handler{
		middleware.ServiceAuth(opts.APISecret),
		middleware.RateLimiter(opts.RateLimitPerMinute, opts.Redis),
	}
	if opts.AccessLog {
		handlers = append(handlers, logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path} ${locals:requestid}\n",
		}))
	}
	api := app.Group("", handlers...)

	identity := middleware.Identity()

	// Users
	users := api.Group("/users")
	users.Post("/upsert", userController.Upsert)
	users.Get("/me", identity, userController.Me)

	// Tasks. Fixed paths go first so they win over /:scope/:id.
	tasks := api.Group("/tasks")
	tasks.Post("", taskController.CreateFromBot)
	tasks.Post("/personal", identity, taskController.CreatePersonal)
	tasks.Get("/personal", identity, taskController.ListPersonal)
	tasks.Get("/personal/count", identity, taskController.CountPersonal)
	tasks.Get("/personal/today", identity, taskController.TodayPersonal)
	tasks.Get("/team/today", identity, taskController.TodayTeam)
	tasks.Get("/today", identity, taskController.TodayContext)
	tasks.Get("/:scope/:id", identity, taskController.Get)
	tasks.Patch("/:scope/:id/done", identity, taskController.MarkDone)
	tasks.Patch("/:scope/:id/tomorrow", identity, taskController.Snooze)

	// Teams
	teams := api.Group("/teams", identity)
	teams.Post("", teamController.Create)
	teams.Get("/my", teamController.MyTeams)
	teams.Get("/active/join_code", teamController.ActiveJoinCode)
	teams.Post("/join", teamController.JoinBot)
	teams.Post("/join-by-code", teamController.JoinByCode)
	teams.Post("/deactivate", teamController.Deactivate)
	teams.Post("/:id/join", teamController.Join)
	teams.Get("/:id/me", teamController.Membership)
	teams.Post("/:id/activate", teamController.Activate)

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	logrus.WithField("timezone", opts.Location.String()).Info("routes initialized")
}
