package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"khm-membership/internal/application"
	"khm-membership/internal/domain"
	"khm-membership/internal/domain/model"
	"khm-membership/internal/domain/ports/repository"
	"khm-membership/internal/infra/security"
)

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Email queue operations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "process",
		Short: "Send one batch of due queued emails",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(func(ctx context.Context, c *application.Container) error {
				n, err := c.EmailUC.ProcessQueue(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("processed %d queued emails\n", n)
				return nil
			})
		},
	})
	return cmd
}

func tasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Scheduled membership tasks",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "daily",
		Short: "Expire memberships and send expiry warnings now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(func(ctx context.Context, c *application.Container) error {
				rep, err := c.TasksUC.RunDaily(ctx)
				fmt.Printf("expired=%d warned=%d\n", rep.Expired, rep.Warned)
				return err
			})
		},
	})
	return cmd
}

func emailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "email",
		Short: "Email log and delivery tools",
	}

	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete sent/failed queue rows and log rows older than --days",
		RunE: func(cmd *cobra.Command, args []string) error {
			days, _ := cmd.Flags().GetInt("days")
			if days <= 0 {
				return fmt.Errorf("--days must be positive")
			}
			return withContainer(func(ctx context.Context, c *application.Container) error {
				res, err := c.EmailUC.Cleanup(ctx, time.Duration(days)*24*time.Hour)
				if err != nil {
					return err
				}
				fmt.Printf("deleted queue=%d log=%d\n", res.QueueRows, res.LogRows)
				return nil
			})
		},
	}
	cleanup.Flags().IntP("days", "d", 30, "retention in days")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print email log counters as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(func(ctx context.Context, c *application.Container) error {
				st, err := c.EmailUC.Stats(ctx)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			})
		},
	}

	test := &cobra.Command{
		Use:   "test [recipient]",
		Short: "Send the test email with the stored delivery settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(func(ctx context.Context, c *application.Container) error {
				if err := c.EmailUC.SendTest(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("test email sent")
				return nil
			})
		},
	}

	cmd.AddCommand(cleanup, stats, test)
	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "API user management",
	}
	create := &cobra.Command{
		Use:   "create",
		Short: "Create or update an API user with a bcrypt password",
		RunE: func(cmd *cobra.Command, args []string) error {
			login, _ := cmd.Flags().GetString("login")
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			admin, _ := cmd.Flags().GetBool("admin")
			if login == "" || email == "" || password == "" {
				return fmt.Errorf("--login, --email and --password are required")
			}
			hash, err := security.HashPassword(password)
			if err != nil {
				return err
			}
			role := model.UserRoleMember
			if admin {
				role = model.UserRoleAdmin
			}
			return withContainer(func(ctx context.Context, c *application.Container) error {
				u, err := c.Users.FindByLogin(ctx, repository.NoTX, login)
				switch {
				case errors.Is(err, domain.ErrNotFound):
					u = &model.User{Login: login, DisplayName: login}
				case err != nil:
					return err
				}
				u.Email, u.Role, u.PasswordHash = email, role, hash
				if err := c.Users.Save(ctx, repository.NoTX, u); err != nil {
					return err
				}
				fmt.Printf("saved user id=%d login=%s role=%s\n", u.ID, u.Login, u.Role)
				return nil
			})
		},
	}
	create.Flags().String("login", "", "login name")
	create.Flags().String("email", "", "email address")
	create.Flags().String("password", "", "password (hashed with bcrypt)")
	create.Flags().Bool("admin", false, "grant the admin role")
	cmd.AddCommand(create)
	return cmd
}
