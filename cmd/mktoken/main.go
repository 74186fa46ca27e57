package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/parley-chat/parley/internal/auth"
)

// mktoken mints a signed access token for local testing, so curl and
// websocket clients can hit authenticated endpoints without a login flow.
func main() {
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "JWT signing secret (or JWT_SECRET env)")
	userID := flag.String("user", "", "User UUID (subject)")
	email := flag.String("email", "dev@localhost", "Email claim")
	ttl := flag.Duration("ttl", time.Hour, "Token lifetime")
	refresh := flag.Bool("refresh", false, "Mint a refresh token instead of an access token")
	flag.Parse()

	if *secret == "" || *userID == "" {
		fmt.Fprintln(os.Stderr, "Usage: mktoken -secret <jwt-secret> -user <user-uuid> [-email <email>] [-ttl <duration>] [-refresh]")
		os.Exit(1)
	}

	id, err := uuid.Parse(*userID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid user id: %v\n", err)
		os.Exit(1)
	}

	mgr := auth.NewManager(*secret, *ttl, *ttl)

	var token string
	if *refresh {
		token, err = mgr.IssueRefreshToken(id, *email)
	} else {
		token, err = mgr.IssueAccessToken(id, *email)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
