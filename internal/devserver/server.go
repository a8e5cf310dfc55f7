// Package devserver is a self-contained stand-in for the marketplace
// backend: the REST endpoints and websocket channels the client talks
// to, backed by PostgreSQL and Redis. It exists for local development
// and integration testing, not production.
package devserver

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"roomchat/internal/config"
)

// Server bundles the whole dev backend.
type Server struct {
	cfg     config.Server
	engine  *gin.Engine
	hub     *Hub
	storage *Service
}

// New connects to PostgreSQL and Redis, runs migrations and wires the
// routes.
func New(cfg config.Server) (*Server, error) {
	db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       0,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, err
	}

	storage := NewService(db, rdb)
	if err := storage.AutoMigrate(); err != nil {
		return nil, err
	}
	log.Println("Database and Redis connections established, migrations complete.")

	hub := NewHub(storage)
	hub.StartEventListener(storage.Subscribe())

	engine := gin.Default()
	NewHandler(hub, storage, cfg.JWTSecret).Routes(engine)

	return &Server{
		cfg:     cfg,
		engine:  engine,
		hub:     hub,
		storage: storage,
	}, nil
}

// Run starts the hub and serves HTTP until the listener fails.
func (s *Server) Run() error {
	go s.hub.Run()

	server := &http.Server{
		Addr:           s.cfg.ListenAddr,
		Handler:        s.engine,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	log.Printf("Dev server listening on %s", s.cfg.ListenAddr)
	return server.ListenAndServe()
}
