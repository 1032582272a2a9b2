// Command adminctl performs operator tasks on admin accounts directly against
// the database: provisioning, assigning the main admin and password resets.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/BradenHooton/wazgo/internal/auth"
	"github.com/BradenHooton/wazgo/internal/config"
	"github.com/BradenHooton/wazgo/internal/database"
	"github.com/BradenHooton/wazgo/internal/models"
	"github.com/BradenHooton/wazgo/internal/repositories"
	"github.com/BradenHooton/wazgo/internal/services"
	pkgauth "github.com/BradenHooton/wazgo/pkg/auth"
	pkglogger "github.com/BradenHooton/wazgo/pkg/logger"
)

const usage = `usage: adminctl <command> [flags]

commands:
  create-admin    -email EMAIL -password PASSWORD [-main]
  set-main-admin  -email EMAIL [-transfer]
  reset-password  -email EMAIL -password PASSWORD
`

// operator is the subset of services.AdminService adminctl drives.
type operator interface {
	ProvisionAdmin(ctx context.Context, email, password string, isMainAdmin bool) (*models.Account, error)
	PromoteMainAdmin(ctx context.Context, email string, transfer bool) error
	ResetPassword(ctx context.Context, email, password string) error
}

var errUsage = errors.New("invalid usage")

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := database.Open(context.Background(), database.Targets{Postgres: &cfg.Database}, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}

	hasher := pkgauth.NewBcryptHasher(pkgauth.BcryptCost)
	repo := repositories.NewAccountRepository(db, hasher)
	// Operator actions never touch sessions.
	lockout := auth.NewLockoutPolicy(cfg.Auth.LockoutThreshold, cfg.Auth.LockoutDuration)
	admin := services.NewAdminService(repo, hasher, lockout, nil, cfg.Auth.EmailCaseInsensitive,
		logger, pkglogger.NewAuditLogger(logger))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = run(ctx, admin, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	db.Close()

	if err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "adminctl: %v\n", describe(err))
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, admin operator, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errUsage
	}

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	email := fs.String("email", "", "admin email address")

	switch args[0] {
	case "create-admin":
		password := fs.String("password", "", "initial password")
		isMain := fs.Bool("main", false, "make the new account the main admin")
		if err := parse(fs, args[1:]); err != nil {
			return err
		}
		if *email == "" || *password == "" {
			return missingFlags(fs, stderr)
		}
		created, err := admin.ProvisionAdmin(ctx, *email, *password, *isMain)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "created admin %s (%s)\n", created.Email, created.ID)

	case "set-main-admin":
		transfer := fs.Bool("transfer", false, "demote the current main admin")
		if err := parse(fs, args[1:]); err != nil {
			return err
		}
		if *email == "" {
			return missingFlags(fs, stderr)
		}
		if err := admin.PromoteMainAdmin(ctx, *email, *transfer); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s is now the main admin\n", *email)

	case "reset-password":
		password := fs.String("password", "", "new password")
		if err := parse(fs, args[1:]); err != nil {
			return err
		}
		if *email == "" || *password == "" {
			return missingFlags(fs, stderr)
		}
		if err := admin.ResetPassword(ctx, *email, *password); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "password reset for %s; two-factor removed and lockouts cleared\n", *email)

	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return errUsage
	}
	return nil
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	return nil
}

func missingFlags(fs *flag.FlagSet, stderr io.Writer) error {
	fmt.Fprintf(stderr, "%s: missing required flags\n", fs.Name())
	fs.PrintDefaults()
	return errUsage
}

// describe turns service errors into operator-facing messages.
func describe(err error) string {
	var pve *pkgauth.PasswordValidationError
	switch {
	case errors.As(err, &pve):
		return fmt.Sprintf("password rejected: %v", pve.Errors)
	case errors.Is(err, models.ErrNotFound):
		return "no admin with that email"
	case errors.Is(err, models.ErrConflict):
		return "conflict: the email is taken or another main admin exists (use -transfer to move the role)"
	default:
		return err.Error()
	}
}
