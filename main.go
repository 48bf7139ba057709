package main

import (
	"fmt"
	"html/template"
	"io"
	golog "log"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/httprate"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vidgrab/allowlist"
	"vidgrab/config"
	"vidgrab/database"
	"vidgrab/downloads"
	"vidgrab/ffmpeg"
	"vidgrab/handlers"
	"vidgrab/history"
	"vidgrab/ratelimit"
	"vidgrab/ytdlp"
)

var db *gorm.DB

func ensureAdminAccount(db *gorm.DB) error {

	var user history.User
	if err := db.Where("username = ?", "admin").First(&user).Error; err != nil {
		// no such user

		password, err := config.GetAdminInitialPassword()
		if err != nil {
			return err
		}

		err = history.CreateUser(db, "admin", password)
		if err != nil {
			return err
		}
	}
	return nil
}

func main() {

	initLogger()
	config.LoadDotEnv()

	log.Infof("GitSHA: %s", config.GetGitSHA())
	log.Infof("BuildDate: %s", config.GetBuildDate())

	ffmpeg.Init(log)
	ytdlp.Init(log)
	downloads.Init(log)
	ratelimit.Init(log)

	if err := ytdlp.LookPath(); err != nil {
		log.Panicln(err)
	}
	if err := ffmpeg.LookPath(); err != nil {
		log.Panicln(err)
	}

	gormLogger := logger.New(
		golog.New(os.Stdout, "\r\n", golog.LstdFlags), // io writer
		logger.Config{
			SlowThreshold:             time.Second, // Slow SQL threshold
			LogLevel:                  logger.Warn, // Log level
			IgnoreRecordNotFoundError: true,        // Ignore ErrRecordNotFound error for logger
			ParameterizedQueries:      true,        // Don't include params in the SQL log
			Colorful:                  false,       // Disable color
		},
	)

	// create working directories
	for _, dir := range []string{config.GetConfigDir(), config.GetTempDir()} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			log.Panicf("failed to create dir %s", dir)
		}
	}

	// Initialize database
	dbPath := filepath.Join(config.GetConfigDir(), "vidgrab.db")
	var err error
	db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		log.Panicf("failed to connect to database %s", dbPath)
	}

	// set only a single connection so we don't actually have concurrent writes
	sqlDB, err := db.DB()
	if err != nil {
		log.Panicln("failed to retrieve database")
	}
	sqlDB.SetMaxOpenConns(1)

	// Migrate the schema
	db.AutoMigrate(&history.Download{}, &history.User{})

	database.Init(db, log)
	defer database.Fini()

	// create a user
	err = ensureAdminAccount(db)
	if err != nil {
		panic(fmt.Sprintf("failed to create admin user: %v", err))
	}

	// per-client sliding-window limit on the download endpoint; Redis
	// keeps replicas honest, memory is fine for a single instance
	var memStore *ratelimit.MemoryStore
	var store ratelimit.Store
	if addr := config.GetRedisAddr(); addr != "" {
		redisStore, err := ratelimit.NewRedisStore(addr, config.GetRedisPassword())
		if err != nil {
			log.Panicln(err)
		}
		defer redisStore.Close()
		store = redisStore
	} else {
		memStore = ratelimit.NewMemoryStore()
		store = memStore
	}
	downloadLimiter := ratelimit.New(store, config.GetRateLimit(), config.GetRateWindow())

	list := allowlist.New(config.GetAllowedHosts())
	manager := downloads.NewManager(config.GetMaxConcurrent(), config.GetTempDir(), ytdlp.Options{
		MaxDuration: config.GetMaxDuration(),
		MaxFileSize: config.GetMaxFileSize(),
	})

	err = handlers.Init(log, list, manager)
	if err != nil {
		log.Panicln(err)
	}

	go PeriodicCleanup(memStore)

	// Initialize Echo
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// Templates
	t := &Template{
		templates: template.Must(template.ParseGlob("templates/*.html")),
	}
	e.Renderer = t

	// Routes
	e.GET("/", handlers.HomeGet)
	e.GET("/login", handlers.LoginGet)
	e.POST("/login", handlers.LoginPost)
	e.GET("/logout", handlers.Logout)
	e.GET("/history", handlers.HistoryGet, handlers.AuthMiddleware)
	e.GET("/status", handlers.StatusGet, handlers.AuthMiddleware)
	e.GET("/healthz", handlers.HealthGet)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	apiGroup := e.Group("/api")
	// coarse per-IP limit across the whole API
	apiGroup.Use(echo.WrapMiddleware(httprate.LimitByIP(config.GetAPIRateLimit(), time.Minute)))
	apiGroup.GET("/info", handlers.InfoGet)
	apiGroup.GET("/download", handlers.Download, ratelimit.Middleware(downloadLimiter))
	apiGroup.POST("/download", handlers.Download, ratelimit.Middleware(downloadLimiter))
	apiGroup.GET("/downloads", handlers.DownloadsGet, handlers.AuthMiddleware)

	staticGroup := e.Group("/static")
	staticGroup.Static("/", "static")

	// Start server
	e.Logger.Fatal(e.Start(config.GetListenAddr()))
}

// Template renderer
type Template struct {
	templates *template.Template
}

func (t *Template) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return t.templates.ExecuteTemplate(w, name, data)
}
