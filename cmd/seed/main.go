// Seed inserts development users for local testing: go run ./cmd/seed.
// Idempotent: users that already exist are left untouched.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"lms-sessions/internal/config"
	"lms-sessions/internal/db"
	"lms-sessions/internal/logger"
	"lms-sessions/internal/security"
	"lms-sessions/internal/user/domain"
	"lms-sessions/internal/user/repository"
)

const devPassword = "password123"

type seedUser struct {
	username string
	auth     string
	password string
}

// guest must come first so a fresh database assigns it id 1 (the SITE_GUEST_ID default).
var seedUsers = []seedUser{
	{username: "guest", auth: "manual", password: "guest"},
	{username: "admin", auth: "manual", password: devPassword},
	{username: "student", auth: "manual", password: devPassword},
	{username: "kiosk", auth: "policy"},
	{username: "ldapuser", auth: "ldap"},
	{username: "noreply", auth: "nologin"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Env, cfg.LogLevel)

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	users := repository.NewPostgresRepository(conn)
	hasher := security.NewHasher(cfg.BcryptCost)
	now := time.Now().UTC()

	for _, su := range seedUsers {
		existing, err := users.GetByUsername(ctx, su.username)
		if err != nil {
			log.Error("seed check", "username", su.username, "error", err)
			os.Exit(1)
		}
		if existing != nil {
			log.Info("seed: user exists, skipping", "username", su.username, "id", existing.ID)
			continue
		}

		u := &domain.User{Username: su.username, Auth: su.auth, CreatedAt: now}
		if su.password != "" {
			if u.Password, err = hasher.Hash(su.password); err != nil {
				log.Error("hash password", "username", su.username, "error", err)
				os.Exit(1)
			}
		}
		id, err := users.Create(ctx, u)
		if err != nil {
			log.Error("create user", "username", su.username, "error", err)
			os.Exit(1)
		}
		log.Info("seed: user created", "username", su.username, "auth", su.auth, "id", id)
		if su.username == "guest" && id != cfg.SiteGuestID {
			log.Warn("seed: guest id differs from SITE_GUEST_ID", "id", id, "site_guest_id", cfg.SiteGuestID)
		}
	}

	log.Info("seed completed", "password", devPassword)
}
