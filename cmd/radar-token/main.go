// radar-token mints bearer tokens for the status API.
//
// Usage:
//
//	radar-token -secret <jwt-secret> -name ops-dashboard -ttl 720h
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"futures-radar-bot/internal/auth"
)

func main() {
	secret := flag.String("secret", os.Getenv("AUTH_JWT_SECRET"), "JWT signing secret (default: AUTH_JWT_SECRET env)")
	name := flag.String("name", "", "token holder name, recorded in the claims")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "error: -secret (or AUTH_JWT_SECRET) is required")
		os.Exit(1)
	}
	if *name == "" {
		fmt.Fprintln(os.Stderr, "error: -name is required")
		os.Exit(1)
	}

	token, err := auth.NewManager(*secret, *ttl).GenerateToken(*name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Token for %q (expires in %s):\n%s\n", *name, *ttl, token)
}
