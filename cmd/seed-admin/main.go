// seed-admin creates or promotes the first admin member and prints a bearer
// token for it, so the API can be used before any other member exists.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//	  go run ./cmd/seed-admin -email admin@example.com -name "Mess Admin" -mobile 01712345678
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sami157/dining-management-server/config"
	"github.com/sami157/dining-management-server/models"
	"github.com/sami157/dining-management-server/store"
	"github.com/sami157/dining-management-server/utils"
)

func main() {
	email := flag.String("email", "", "Required: admin email")
	name := flag.String("name", "Mess Admin", "Display name")
	mobile := flag.String("mobile", "", "Required: BD mobile number")
	flag.Parse()

	*email = strings.ToLower(strings.TrimSpace(*email))
	if *email == "" || strings.TrimSpace(*mobile) == "" {
		fmt.Fprintln(os.Stderr, "-email and -mobile are required")
		os.Exit(1)
	}
	if err := utils.ValidatePhoneNumber(*mobile, utils.CountryCode); err != nil {
		fmt.Fprintf(os.Stderr, "invalid mobile: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	settings := config.LoadSettings()
	db, err := config.ConnectDatabaseWithRetry(ctx, settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "database not reachable: %v\n", err)
		os.Exit(1)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := models.MigrateTable(db); err != nil {
		fmt.Fprintf(os.Stderr, "failed to migrate: %v\n", err)
		os.Exit(1)
	}
	st := store.NewMySQLStore(db)

	member, err := st.GetMemberByEmail(ctx, *email)
	switch {
	case errors.Is(err, store.ErrNotFound):
		member = &models.Member{
			Name:     strings.TrimSpace(*name),
			Email:    *email,
			Mobile:   *mobile,
			Role:     models.UserRoleAdmin,
			IsActive: utils.NewTrue(),
		}
		if err := st.CreateMember(ctx, member); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create admin: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created admin member: id=%d email=%q\n", member.ID, member.Email)
	case err != nil:
		fmt.Fprintf(os.Stderr, "failed to lookup member: %v\n", err)
		os.Exit(1)
	default:
		member.Role = models.UserRoleAdmin
		member.IsActive = utils.NewTrue()
		if err := st.UpdateMember(ctx, member); err != nil {
			fmt.Fprintf(os.Stderr, "failed to promote member: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Promoted member to admin: id=%d email=%q\n", member.ID, member.Email)
	}

	token, err := utils.JwtGenerate(member.ID, member.Email, string(member.Role))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
