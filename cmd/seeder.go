package cmd

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/auth"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/core/user"
	"github.com/ojhankit/team-collaboration-sys-backend/pkg/logger"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

// demoPassword satisfies the password strength rules so demo accounts can
// also log in normally.
const demoPassword = "Demo@1234"

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo users",
	Long:  `Seed the database with one demo user per role for development and the demo login.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logger.InitWithLevel(cfg.Observability.Logging.Env, cfg.Observability.Logging.Level)

		db, err := initDB(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to init db: %w", err)
		}
		defer db.Close()

		return seed(cmd.Context(), db, cfg.Security.BCryptCost, clearData)
	},
}

type demoUser struct {
	Role      user.Role
	FirstName string
	LastName  string
}

var demoUsers = []demoUser{
	{Role: user.RoleAdmin, FirstName: "Demo", LastName: "Admin"},
	{Role: user.RoleManager, FirstName: "Demo", LastName: "Manager"},
	{Role: user.RoleEmployee, FirstName: "Demo", LastName: "Employee"},
}

func seed(ctx context.Context, db *sqlx.DB, cost int, clear bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.L()

	if clear {
		// children first; users referenced by tasks go last
		for _, table := range []string{"task_attachments", "task_comments", "tasks", "users"} {
			if _, err := db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
			log.Info("cleared table", "table", table)
		}
	}

	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(demoPassword), cost)
	if err != nil {
		return fmt.Errorf("hash demo password: %w", err)
	}

	for _, d := range demoUsers {
		username := auth.DemoUsernames[d.Role]
		email := username + "@demo.local"

		var exists bool
		if err := db.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)", username); err != nil {
			return fmt.Errorf("check %s: %w", username, err)
		}
		if exists {
			log.Info("demo user already exists", "username", username)
			continue
		}

		_, err := db.NamedExecContext(ctx, `
			INSERT INTO users (username, email, first_name, last_name, password_hash, role, is_active, created_at, updated_at)
			VALUES (:username, :email, :first_name, :last_name, :password_hash, :role, true, now(), now())`,
			map[string]interface{}{
				"username":      username,
				"email":         email,
				"first_name":    d.FirstName,
				"last_name":     d.LastName,
				"password_hash": string(hash),
				"role":          string(d.Role),
			})
		if err != nil {
			return fmt.Errorf("insert %s: %w", username, err)
		}
		log.Info("seeded demo user", "username", username, "role", d.Role)
	}

	log.Info("demo users seeded", "count", len(demoUsers))
	return nil
}
