package main

import (
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"consilium/internal/agent"
	"consilium/internal/diagnosis"
	"consilium/internal/logging"
	"consilium/internal/report"
)

func main() {
	log := logging.WithComponent("server")

	// 1. Infrastructure: the verdict archive is optional. Without a
	// database sessions still run, verdicts just are not retrievable later.
	var db *sql.DB
	dbConnStr := os.Getenv("DATABASE_URL")
	if dbConnStr != "" {
		var err error
		for i := 0; i < 10; i++ {
			db, err = sql.Open("postgres", dbConnStr)
			if err == nil {
				err = db.Ping()
			}
			if err == nil {
				break
			}
			log.Info("waiting for database", "attempt", i+1)
			time.Sleep(2 * time.Second)
		}
		if err != nil {
			log.Warn("could not connect to database, verdict archive disabled", "error", err)
			db = nil
		} else {
			log.Info("connected to database")
			m, err := migrate.New("file://migrations", dbConnStr)
			if err != nil {
				log.Warn("migration init failed", "error", err)
			} else if err := m.Up(); err != nil && err != migrate.ErrNoChange {
				log.Warn("migration up failed", "error", err)
			} else {
				log.Info("migrations applied")
			}
		}
	} else {
		log.Info("DATABASE_URL not set, verdict archive disabled")
	}

	// 2. Reasoning backend for live mode
	var backend agent.Backend
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		cfg := agent.DefaultBackendConfig()
		cfg.APIKey = apiKey
		if model := os.Getenv("OPENAI_MODEL"); model != "" {
			cfg.Model = model
		}
		if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
			cfg.BaseURL = baseURL
		}
		backend = agent.NewOpenAIBackend(cfg)
		log.Info("live reasoning backend configured", "model", cfg.Model)
	} else {
		log.Info("OPENAI_API_KEY not set, only demo mode available")
	}

	// 3. Services
	var archive diagnosis.Repository
	if db != nil {
		archive = diagnosis.NewRepository(db)
	}
	svc := diagnosis.NewService(agent.NewPanelFactory(backend), archive)
	reportSvc := report.NewService()

	defaults := diagnosis.Config{Mode: diagnosis.ModeDemo}
	if mode := os.Getenv("CONSILIUM_MODE"); mode != "" {
		defaults.Mode = diagnosis.Mode(mode)
	}
	if seed := os.Getenv("CONSILIUM_SEED"); seed != "" {
		if n, err := strconv.ParseInt(seed, 10, 64); err == nil {
			defaults.Seed = n
		}
	}
	handler := diagnosis.NewHandler(svc, reportSvc, defaults)

	// 4. Router
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS for frontend
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
			if r.Method == "OPTIONS" {
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Route("/api", func(r chi.Router) {
		diagnosis.RegisterRoutes(r, handler)
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Info("server starting", "port", port)
	if err := http.ListenAndServe(":"+port, r); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
