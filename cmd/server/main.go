package main

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"

	"github.com/kanbanlab/kanban-client/config"
	"github.com/kanbanlab/kanban-client/internal/board/repository"
	boardservice "github.com/kanbanlab/kanban-client/internal/board/service"
	"github.com/kanbanlab/kanban-client/internal/board/store"
	"github.com/kanbanlab/kanban-client/internal/bootstrap"
	"github.com/kanbanlab/kanban-client/internal/identity"
	identitycache "github.com/kanbanlab/kanban-client/internal/identity/cache"
	identityrepo "github.com/kanbanlab/kanban-client/internal/identity/repository"
	identityservice "github.com/kanbanlab/kanban-client/internal/identity/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	bootstrap.SetGinMode(cfg.App.Environment)

	ctx := context.Background()

	fb, err := bootstrap.OpenFirebase(ctx, &cfg.Firebase)
	if err != nil {
		log.Fatalf("failed to initialize Firebase: %v", err)
	}
	defer fb.Close()

	provider, err := identity.NewFirebaseProvider(ctx, &cfg.Firebase)
	if err != nil {
		log.Fatalf("failed to initialize identity provider: %v", err)
	}

	profiles := identityrepo.NewProfileRepository(fb.Firestore)

	var sessionOpts []identityservice.Option
	redisClient, err := bootstrap.OpenRedis(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("failed to connect Redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		sessionOpts = append(sessionOpts,
			identityservice.WithProfileCache(identitycache.NewProfileCache(redisClient, cfg.Redis.ProfileTTL)))
	}

	session := identityservice.NewSession(provider, profiles, sessionOpts...)
	session.Init()

	google := identity.NewGoogleOAuth(&cfg.OAuth)

	boardRepo := repository.NewFirestoreRepository(fb.Firestore)

	// The facade does its confirmation at the route level (the
	// confirm query parameter), so the store itself auto-confirms.
	boardStore := store.New(boardRepo, session, store.WithConfirmer(store.AutoConfirm))

	maintenance := boardservice.NewMaintenanceService(boardRepo, log.Default())
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@midnight", func() {
		uid := session.UID()
		if uid == "" {
			return
		}
		if err := maintenance.RecountProjects(context.Background(), uid); err != nil {
			log.Printf("scheduled recount failed: %v", err)
		}
	}); err != nil {
		log.Fatalf("failed to schedule counter recount: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	router := bootstrap.BuildRouter(bootstrap.RouterDeps{
		ServiceName: "kanban-client",
		Version:     cfg.App.Version,
		AuthClient:  fb.Auth,
		Session:     session,
		Google:      google,
		Store:       boardStore,
	})

	log.Printf("listening on :%s", cfg.Server.Port)
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
