package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/spitfire-app/spitfire-backend/internal/battle"
	appcfg "github.com/spitfire-app/spitfire-backend/internal/config"
	"github.com/spitfire-app/spitfire-backend/internal/httpapi"
	"github.com/spitfire-app/spitfire-backend/internal/identity"
	"github.com/spitfire-app/spitfire-backend/internal/msgcat"
	"github.com/spitfire-app/spitfire-backend/internal/notify"
	"github.com/spitfire-app/spitfire-backend/internal/obslog"
	"github.com/spitfire-app/spitfire-backend/internal/queue"
	"github.com/spitfire-app/spitfire-backend/internal/storage"
	"github.com/spitfire-app/spitfire-backend/internal/voting"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded")
	}
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}

	rdb, err := storage.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis init error: %v", err)
	}
	repo, err := battle.NewRepository(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("repository init error: %v", err)
	}

	msgs, err := msgcat.New(cfg.MsgOverrideDir)
	if err != nil {
		log.Fatalf("message catalog error: %v", err)
	}

	events := notify.NewPublisher(rdb)

	battles := battle.NewManager(rdb)
	battles.AttachRepository(repo)
	battles.AttachNotifier(events)

	queues := queue.NewManager(rdb)

	votes := voting.NewController(rdb, battles, cfg.VotingWindow, cfg.VotingMaxVotes)
	votes.AttachRepository(repo)
	votes.AttachNotifier(events)

	var idp identity.Provider
	if cfg.AuthBaseURL != "" {
		idp = identity.NewClient(cfg.AuthBaseURL)
	} else {
		idp = identity.NewStaticProvider(cfg.AuthStaticTokens)
		obslog.L().Warn("auth_static_tokens_in_use")
	}

	api := httpapi.New(queues, battles, votes, idp, msgs, events)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		obslog.L().Info("http_listen", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			obslog.L().Fatal("http_serve_failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	_ = repo.Close()
	_ = rdb.Close()
}
