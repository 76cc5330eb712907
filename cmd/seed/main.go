// Command seed creates a couple of demo accounts and a listing, then prints
// ready-to-use bearer tokens so the websocket endpoint can be exercised by
// hand.
package main

import (
	"fmt"
	"log"
	"time"

	"market-chat/auth"
	"market-chat/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BadgerFilepath string        `envconfig:"BADGER_FILEPATH" default:"./data/badger"`
	JWTSecret      string        `envconfig:"JWT_SECRET" required:"true"`
	TokenTTL       time.Duration `envconfig:"TOKEN_TTL" default:"24h"`
}

func main() {
	_ = godotenv.Load()
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	db, err := badger.Open(badger.DefaultOptions(cfg.BadgerFilepath).WithLogger(nil))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	users := repositories.NewUserRepository(db)
	items := repositories.NewItemRepository(db)

	aliceID := mustCreateUser(users, "alice", "alice@example.com")
	bobID := mustCreateUser(users, "bob", "bob@example.com")

	itemID, err := items.CreateItem("city bike, barely used", bobID)
	if err != nil {
		log.Fatalf("Failed to create listing: %v", err)
	}

	header := color.New(color.BgBlack, color.FgGreen)
	header.Println("Seeded demo data")
	fmt.Printf("listing: %s (seller bob)\n\n", itemID)

	printToken(cfg, "alice", aliceID)
	printToken(cfg, "bob", bobID)
}

func mustCreateUser(users *repositories.UserRepository, username, email string) string {
	hash, err := auth.HashPassword("ComplexPass123!")
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}
	id, err := users.CreateUser(username, email, hash)
	if err != nil {
		log.Fatalf("Failed to create user %s: %v", username, err)
	}
	return id
}

func printToken(cfg Config, username, userID string) {
	token, err := auth.GenerateToken(cfg.JWTSecret, userID, cfg.TokenTTL)
	if err != nil {
		log.Fatalf("Failed to issue token for %s: %v", username, err)
	}
	color.New(color.FgCyan).Printf("%s (%s)\n", username, userID)
	fmt.Printf("  %s\n\n", token)
}
