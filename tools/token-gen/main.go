// token-gen mints HS256 tokens for local development against the gateway.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garageboard/garageboard/libs/auth"
)

func main() {
	var (
		secret = flag.String("secret", getenv("JWT_SECRET", "dev-secret"), "HS256 signing secret")
		sub    = flag.String("sub", getenv("TOKEN_SUB", ""), "subject (user id), random when empty")
		tenant = flag.String("tenant", getenv("TOKEN_TENANT_ID", ""), "tenant id, random when empty")
		role   = flag.String("role", getenv("TOKEN_ROLE", "owner"), "role claim (owner, admin, mechanic)")
		ttl    = flag.Duration("ttl", 24*time.Hour, "token lifetime")
	)
	flag.Parse()

	switch *role {
	case "owner", "admin", "mechanic":
	default:
		fatal("role must be one of owner, admin, mechanic")
	}

	subject := strings.TrimSpace(*sub)
	if subject == "" {
		subject = uuid.NewString()
	}
	tenantID := strings.TrimSpace(*tenant)
	if tenantID == "" {
		tenantID = uuid.NewString()
	} else if _, err := uuid.Parse(tenantID); err != nil {
		fatal("tenant must be a UUID")
	}

	now := time.Now().UTC()
	token, err := auth.SignHS256(auth.Claims{
		Sub:      subject,
		TenantID: tenantID,
		Role:     *role,
		Iat:      now.Unix(),
		Exp:      now.Add(*ttl).Unix(),
	}, *secret)
	if err != nil {
		fatal(err.Error())
	}

	fmt.Printf("tenant_id=%s\n", tenantID)
	fmt.Printf("sub=%s\n", subject)
	fmt.Printf("token=%s\n", token)
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
