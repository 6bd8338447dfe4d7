package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/wgelabs/lms-backend/internal/db"
	"github.com/wgelabs/lms-backend/internal/logger"
	"github.com/wgelabs/lms-backend/internal/repos"
	"github.com/wgelabs/lms-backend/internal/requestdata"
	"github.com/wgelabs/lms-backend/internal/services"
	"github.com/wgelabs/lms-backend/internal/utils"
)

// Mints a session token for local testing and support work. The API only
// verifies tokens; this is the issuing side of that boundary for environments
// that run without a full identity provider.
func main() {
	userFlag := flag.String("user", "", "user uuid to issue the token for")
	roleFlag := flag.String("role", requestdata.RoleStudent, "role claim (student|instructor|admin)")
	ttlFlag := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	log, err := logger.New(os.Getenv("LOG_MODE"))
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	userID, err := uuid.Parse(*userFlag)
	if err != nil {
		log.Fatal("-user must be a uuid", "error", err)
	}

	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	userRepo := repos.NewUserRepo(postgresService.DB(), log)

	user, err := userRepo.GetByID(context.Background(), nil, userID)
	if err != nil {
		log.Fatal("User lookup failed", "error", err)
	}
	if user == nil {
		log.Fatal("Unknown user", "user_id", userID)
	}

	secret := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	auth := services.NewAuthService(postgresService.DB(), log, userRepo, secret)
	token, err := auth.IssueToken(userID, *roleFlag, *ttlFlag)
	if err != nil {
		log.Fatal("Token issuance failed", "error", err)
	}

	fmt.Println(token)
}
