package commands

import (
	"context"
	"fmt"
	"syscall"

	"golang.org/x/term"

	"aprenda/internal/observability"
	"aprenda/internal/services"
	contextutils "aprenda/internal/utils"

	"github.com/spf13/cobra"
)

// UserCommands returns the user management commands
func UserCommands(userService services.UserService, logger *observability.Logger, databaseURL string) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "User management commands",
		Long: `User management commands for the learning platform.

Available commands:
  list    - List all users
  create  - Create a new user`,
	}

	userCmd.AddCommand(listCmd(userService, logger, databaseURL))
	userCmd.AddCommand(createCmd(userService, logger))

	return userCmd
}

func listCmd(userService services.UserService, logger *observability.Logger, databaseURL string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all users",
		Long:  `List all users in the database with their basic information.`,
		RunE:  runListUsers(userService, logger, databaseURL),
	}
}

func createCmd(userService services.UserService, logger *observability.Logger) *cobra.Command {
	var withPassword bool

	cmd := &cobra.Command{
		Use:   "create [name] [email]",
		Short: "Create a new user",
		Long:  `Create a new user account. Use --password to be prompted for a password.`,
		Args:  cobra.ExactArgs(2),
		RunE:  runCreateUser(userService, logger, &withPassword),
	}

	cmd.Flags().BoolVar(&withPassword, "password", false, "Prompt for a password for the new user")

	return cmd
}

// runListUsers returns a function that lists all users
func runListUsers(userService services.UserService, logger *observability.Logger, databaseURL string) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		logger.Info(ctx, "Listing all users", map[string]interface{}{"database_url": MaskDatabaseURL(databaseURL)})

		users, err := userService.ListUsers(ctx)
		if err != nil {
			logger.Error(ctx, "Failed to get users", err, map[string]interface{}{})
			return contextutils.WrapError(err, "failed to get users")
		}

		if len(users) == 0 {
			logger.Info(ctx, "No users found in the database", nil)
			return nil
		}

		fmt.Printf("%-5s %-25s %-35s %-12s %-12s\n", "ID", "Name", "Email", "Active", "Created")

		for _, user := range users {
			lastActive := "never"
			if user.LastActive.Valid {
				lastActive = user.LastActive.Time.Format("2006-01-02")
			}

			fmt.Printf("%-5d %-25s %-35s %-12s %-12s\n",
				user.ID,
				user.Name,
				user.Email,
				lastActive,
				user.CreatedAt.Format("2006-01-02"),
			)
		}

		logger.Info(ctx, "Listed users", map[string]interface{}{"total": len(users)})
		return nil
	}
}

// runCreateUser returns a function that creates a new user
func runCreateUser(userService services.UserService, logger *observability.Logger, withPassword *bool) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, args []string) error {
		ctx := context.Background()

		name := args[0]
		email := args[1]

		var password string
		if *withPassword {
			fmt.Print("Enter password: ")
			passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
			if err != nil {
				return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to read password: %v", err)
			}
			password = string(passwordBytes)
			fmt.Println()

			fmt.Print("Confirm password: ")
			confirmBytes, err := term.ReadPassword(int(syscall.Stdin))
			if err != nil {
				return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to read password confirmation: %v", err)
			}
			fmt.Println()

			if password != string(confirmBytes) {
				return contextutils.ErrorWithContextf("passwords do not match")
			}
		}

		user, err := userService.CreateUser(ctx, name, email, password)
		if err != nil {
			logger.Error(ctx, "Failed to create user", err, map[string]interface{}{"email": email})
			return contextutils.WrapError(err, "failed to create user")
		}

		fmt.Printf("Created user '%s' (ID: %d)\n", user.Name, user.ID)
		logger.Info(ctx, "User created", map[string]interface{}{"user_id": user.ID, "email": email})

		return nil
	}
}
