package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/99designs/keyring"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/pflag"

	"github.com/nhle/otp-relay/internal/credential"
	"github.com/nhle/otp-relay/internal/model"
	"github.com/nhle/otp-relay/internal/store"
	"github.com/nhle/otp-relay/internal/theme"
	"github.com/nhle/otp-relay/internal/ui/accountform"
)

func runAccounts(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "accounts: expected list, add or remove")
		return exitBadInput
	}

	fs := pflag.NewFlagSet("accounts "+args[0], pflag.ContinueOnError)
	configPath := fs.String("config", model.DefaultConfigPath(), "path to config.yaml")
	if err := fs.Parse(args[1:]); err != nil {
		return exitBadInput
	}

	ctx := context.Background()

	var err error
	switch args[0] {
	case "list":
		err = listAccounts(ctx, *configPath)
	case "add":
		err = addAccount(ctx, *configPath)
	case "remove":
		if fs.NArg() != 1 {
			fmt.Fprintln(os.Stderr, "accounts remove: exactly one account id is required")
			return exitBadInput
		}
		err = removeAccount(ctx, *configPath, fs.Arg(0))
	default:
		fmt.Fprintf(os.Stderr, "accounts: unknown subcommand %q\n", args[0])
		return exitBadInput
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "accounts %s: %v\n", args[0], err)
		return exitFailure
	}
	return exitOK
}

func listAccounts(ctx context.Context, configPath string) error {
	env, err := bootstrap(ctx, configPath, storeIfPresent)
	if err != nil {
		return err
	}
	defer env.Close()

	all := env.registry.All()
	if len(all) == 0 {
		fmt.Println(theme.HelpStyle.Render("No accounts configured."))
		return nil
	}

	fmt.Println(theme.HeaderStyle.Render("Accounts"))
	for _, acc := range all {
		status := "inactive"
		if acc.Searchable() {
			status = "active"
		}
		fmt.Println(lipgloss.JoinHorizontal(lipgloss.Top,
			theme.LabelStyle.Render(acc.ID),
			theme.AccountStatusStyle(acc.Searchable()).Width(10).Render(status),
			fmt.Sprintf("%s  %s", acc.Email, acc.Addr()),
		))
	}
	return nil
}

func addAccount(ctx context.Context, configPath string) error {
	env, err := bootstrap(ctx, configPath, storeCreate)
	if err != nil {
		return err
	}
	defer env.Close()

	values := accountform.NewValues()
	if err := accountform.New(values).Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return nil
		}
		return err
	}

	acc, err := values.Account()
	if err != nil {
		return err
	}
	if _, exists := env.registry.FindByID(acc.ID); exists && acc.ID != "" {
		return fmt.Errorf("account %s already exists", acc.ID)
	}

	id, err := env.store.UpsertAccount(ctx, acc)
	if err != nil {
		return err
	}
	if err := credential.Set(credential.AccountKey(id), acc.Password); err != nil {
		return fmt.Errorf("saving password for %s: %w", id, err)
	}

	fmt.Printf("Added account %s (%s)\n", theme.OTPStyle.Render(id), acc.Email)
	return nil
}

func removeAccount(ctx context.Context, configPath, id string) error {
	env, err := bootstrap(ctx, configPath, storeIfPresent)
	if err != nil {
		return err
	}
	defer env.Close()

	if env.store == nil {
		return fmt.Errorf("account %s: %w", id, store.ErrNotFound)
	}
	if err := env.store.DeleteAccount(ctx, id); err != nil {
		return err
	}
	if err := credential.Delete(credential.AccountKey(id)); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("removing password for %s: %w", id, err)
	}

	fmt.Printf("Removed account %s\n", id)
	return nil
}
