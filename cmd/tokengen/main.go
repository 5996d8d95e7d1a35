// tokengen выпускает JWT для существующего пользователя. Нужен для ручной
// проверки админских эндпоинтов, так как логина в сервисе нет.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/linemk/event-shop/internal/config"
	security "github.com/linemk/event-shop/internal/jwt-new"
	"github.com/linemk/event-shop/internal/storage"
)

func main() {
	var (
		userID int64
		ttl    time.Duration
	)
	flag.Int64Var(&userID, "user", 0, "user id to issue the token for")
	flag.DurationVar(&ttl, "ttl", 0, "token lifetime, defaults to jwt.token_ttl from config")

	cfg := config.MustLoad()
	if userID <= 0 {
		log.Fatal("-user is required")
	}
	if ttl == 0 {
		ttl = cfg.JWT.TokenTTL
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	user, err := storage.NewUserRepository(db).GetUserByID(ctx, userID)
	if err != nil {
		log.Fatalf("failed to load user %d: %v", userID, err)
	}

	token, err := security.NewToken(user, ttl, cfg.JWT.Secret)
	if err != nil {
		log.Fatalf("failed to sign token: %v", err)
	}

	fmt.Fprintf(os.Stderr, "token for %s (admin=%t), valid for %s\n", user.Email, user.IsAdmin, ttl)
	fmt.Println(token)
}
