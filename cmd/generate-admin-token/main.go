package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"rps-backend/internal/config"
)

// Issues a short-lived operator token for the admin API. The secret
// comes from the server config so tokens minted here verify against
// the running server.
func main() {
	var (
		operator = flag.String("operator", "ops", "Operator name recorded in the token subject")
		ttl      = flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	)
	flag.Parse()

	if err := config.LoadConfig(""); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	secret := config.AppConfig.Admin.JWTSecret
	if secret == "" {
		log.Fatal("admin.jwt_secret is not configured; the admin API is disabled")
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(*ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		Issuer:    "rps-backend",
		Subject:   *operator,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		log.Fatalf("Error generating token: %v", err)
	}

	fmt.Println("============================================================")
	fmt.Println("Admin Token Generated")
	fmt.Println("============================================================")
	fmt.Println()
	fmt.Println(tokenString)
	fmt.Println()
	fmt.Printf("  Operator: %s\n", *operator)
	fmt.Printf("  Expires:  %s\n", claims.ExpiresAt.Time)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  curl -H \"Authorization: Bearer $TOKEN\" -X POST http://localhost:8080/api/admin/wagers/<id>/complete\n")
}
