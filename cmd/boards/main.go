// Command boards serves the feature, bug and support boards on their own,
// without the console session. Intended for local triage against a copy of
// the data set.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/webaffe/webaffe/backend/console/internal/board/handler"
	"github.com/webaffe/webaffe/backend/console/internal/board/service"
	"github.com/webaffe/webaffe/backend/console/internal/config"
	"github.com/webaffe/webaffe/backend/console/internal/database"
	"github.com/webaffe/webaffe/backend/console/pkg/logger"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Setup(os.Stdout, cfg.Log.Format)
	logger.Init(cfg.Log.Level)

	port := os.Getenv("BOARDS_PORT")
	if port == "" {
		port = "5010"
	}

	r := gin.New()
	r.Use(gin.Recovery())

	// Prefer Mongo-backed boards when MONGODB_URI is provided.
	var svc service.Service
	if cfg.MongoDB.URI != "" {
		client, err := database.ConnectMongo(context.Background(), cfg.MongoDB.URI, cfg.MongoDB.Timeout)
		if err != nil {
			logger.Warnf("cannot connect to MongoDB (%v), using memory-backed boards", err)
			svc = service.NewMemoryService()
		} else {
			svc = service.NewMongoService(client.Database(cfg.MongoDB.Database))
		}
	} else {
		svc = service.NewMemoryService()
	}

	handler.RegisterBoardRoutes(r, svc)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, port)
	logger.Infof("boards listening on %s", addr)
	if err := r.Run(addr); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}
