// Command token issues a bearer token for the admin API.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	config "github.com/maheshrc27/postlater/configs"
	"github.com/maheshrc27/postlater/pkg/utils"
)

func main() {
	userID := flag.Int64("user", 0, "user id the token acts as")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}
	cfg := config.LoadConfig()

	token, err := issueToken(cfg.SecretKey, *userID, *ttl)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}
	fmt.Println(token)
}

func issueToken(secretKey string, userID int64, ttl time.Duration) (string, error) {
	if secretKey == "" {
		return "", errors.New("SECRET_KEY is not set")
	}
	if userID <= 0 {
		return "", errors.New("user id must be positive")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}
	return utils.GenerateToken(secretKey, strconv.FormatInt(userID, 10), ttl)
}
