// Command token mints an access token for local testing and operations.
//
//	go run ./cmd/token -user 42 -role ADMIN -ttl 1h
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/iliyamo/room-reservation/internal/config"
	"github.com/iliyamo/room-reservation/internal/middleware"
	"github.com/iliyamo/room-reservation/internal/utils"
)

func main() {
	user := flag.Uint64("user", 0, "subject user id")
	role := flag.String("role", middleware.RoleCustomer, "CUSTOMER or ADMIN")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	jwtCfg, err := config.LoadJWT()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	tok, err := utils.NewAccessToken(jwtCfg.Secret, *user, *role, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(tok.Token)
}
