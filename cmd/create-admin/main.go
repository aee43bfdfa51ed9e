package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"asteriskgui/internal/auth"
	"asteriskgui/internal/config"
	"asteriskgui/internal/database"
	"asteriskgui/internal/models"
)

func main() {
	var configPath, username, password, email string
	var reset bool

	flag.StringVar(&configPath, "config", "", "path to a YAML config file")
	flag.StringVar(&username, "username", "", "admin username (defaults to the configured default admin)")
	flag.StringVar(&password, "password", "", "admin password (defaults to the configured default password)")
	flag.StringVar(&email, "email", "", "admin email")
	flag.BoolVar(&reset, "reset", false, "reset the password if the user already exists")
	flag.Parse()

	cfg := config.MustLoad(configPath)
	if username == "" {
		username = cfg.DefaultAdmin
	}
	if password == "" {
		password = cfg.DefaultPassword
	}
	if email == "" {
		email = cfg.DefaultEmail
	}

	db, err := database.New(cfg.Paths.DataDir)
	if err != nil {
		fail("open database: %v", err)
	}
	defer db.Close()

	users := auth.NewUserService(db, auth.UserOptions{
		BcryptCost:       cfg.Auth.BcryptCost,
		MaxLoginAttempts: cfg.Auth.MaxLoginAttempts,
		LockoutDuration:  cfg.Auth.LockoutDuration,
	})

	existing, err := users.GetByUsername(username)
	switch {
	case err == nil:
		if !reset {
			fmt.Printf("user %q already exists, pass -reset to change its password\n", username)
			return
		}
		if _, err := users.ResetPassword(existing.ID, password); err != nil {
			fail("reset password: %v", err)
		}
		fmt.Printf("password for %q reset\n", username)
	case errors.Is(err, auth.ErrUserNotFound):
		if _, err := users.Create(auth.CreateUserInput{
			Username: username,
			Password: password,
			Email:    email,
			Role:     models.RoleAdmin,
		}); err != nil {
			fail("create user: %v", err)
		}
		fmt.Printf("admin user %q created\n", username)
	default:
		fail("lookup user: %v", err)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
