package commands

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"evalgo.org/deployhub/internal/auth"
	"evalgo.org/deployhub/internal/storage"
	"evalgo.org/deployhub/internal/users"
	"evalgo.org/deployhub/models"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage authentication tokens",
	Long:  `Generate Center access tokens for scripts and automation`,
}

var generateUserTokenCmd = &cobra.Command{
	Use:   "user [username]",
	Short: "Generate a Center access token for a user",
	Long: `Generate a JWT access token for an existing Center user.

The token is signed with the jwt_secret from the configuration file and
carries the same claims as a token issued by the login endpoint.

Examples:
  # Token for the admin user with the configured lifetime
  deployhub token user admin

  # Token valid for one week
  deployhub token user deployer --expiration 168

  # Use a custom secret (overrides config)
  deployhub token user admin --secret "my-custom-secret"`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerateUserToken,
}

var (
	tokenExpiration int64
	tokenSecret     string
)

func init() {
	generateUserTokenCmd.Flags().Int64Var(&tokenExpiration, "expiration", 0, "Token expiration in hours (default: security.token_expiration)")
	generateUserTokenCmd.Flags().StringVar(&tokenSecret, "secret", "", "JWT secret (default: from config file)")

	tokenCmd.AddCommand(generateUserTokenCmd)
}

func runGenerateUserToken(cmd *cobra.Command, args []string) error {
	username := args[0]

	secret := tokenSecret
	if secret == "" && cfg != nil {
		secret = cfg.Security.JWTSecret
	}
	if secret == "" {
		return fmt.Errorf(`jwt_secret not found in config file and --secret not provided

Please either:
  1. Add to your config.yaml:
     security:
       jwt_secret: your-secret-here

  2. Or use the --secret flag:
     deployhub token user %s --secret "your-secret-here"`, username)
	}

	expiration := cfg.Security.TokenExpiration
	if tokenExpiration > 0 {
		expiration = time.Duration(tokenExpiration) * time.Hour
	}

	store, err := storage.Open[models.User](filepath.Join(cfg.Storage.DataDir, storage.UsersFile), zerolog.Nop())
	if err != nil {
		return fmt.Errorf("failed to open user store: %w", err)
	}
	user, ok := users.New(store, zerolog.Nop()).GetByUsername(username)
	if !ok {
		return fmt.Errorf("user %q not found in %s", username, store.Path())
	}
	if user.Status != models.UserEnabled {
		return fmt.Errorf("user %q is disabled", username)
	}

	token, err := auth.NewJWTService(secret).GenerateToken(&user, expiration)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	fmt.Printf("User Token Generated Successfully\n")
	fmt.Printf("=================================\n\n")
	fmt.Printf("User:       %s (id %d, role %s)\n", user.Username, user.ID, user.Role)
	fmt.Printf("Expiration: %s\n", expiration)
	fmt.Printf("\nToken:\n%s\n\n", token)
	fmt.Printf("Send it in the Authorization header:\n")
	fmt.Printf("  Authorization: Bearer %s\n", token)

	return nil
}
