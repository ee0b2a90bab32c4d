package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"

	"github.com/nhle/otp-relay/internal/keys"
	"github.com/nhle/otp-relay/internal/model"
	"github.com/nhle/otp-relay/internal/ui/fetch"
)

var referenceCodePattern = regexp.MustCompile(`^[A-Za-z0-9]{5}$`)

func runFetch(args []string) int {
	fs := pflag.NewFlagSet("fetch", pflag.ContinueOnError)
	configPath := fs.String("config", model.DefaultConfigPath(), "path to config.yaml")
	accounts := fs.StringSlice("accounts", nil, "comma-separated account ids to search")
	timeout := fs.Int("timeout", 0, "per-account timeout in milliseconds")
	plain := fs.Bool("plain", false, "print only the OTP, without the interactive view")
	if err := fs.Parse(args); err != nil {
		return exitBadInput
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "fetch: exactly one reference code is required")
		return exitBadInput
	}
	ref := fs.Arg(0)
	if !referenceCodePattern.MatchString(ref) {
		fmt.Fprintln(os.Stderr, "fetch: reference code must be exactly 5 letters or numbers")
		return exitBadInput
	}
	if *timeout < 0 {
		fmt.Fprintln(os.Stderr, "fetch: timeout must be positive")
		return exitBadInput
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := bootstrap(ctx, *configPath, storeIfPresent)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fetch: %v\n", err)
		return exitFailure
	}
	defer env.Close()

	svc := newService(env)
	req := model.Request{
		ReferenceCode: ref,
		AccountIDs:    *accounts,
		TimeoutMillis: *timeout,
	}
	retrieve := func(ctx context.Context) model.Outcome {
		return svc.Retrieve(ctx, req)
	}

	var out model.Outcome
	if *plain || !isatty.IsTerminal(os.Stdout.Fd()) {
		out = retrieve(ctx)
		if out.Success {
			fmt.Println(fetch.RenderPlain(out))
		} else {
			fmt.Fprintln(os.Stderr, fetch.RenderPlain(out))
		}
	} else {
		targets := len(svc.ResolveAccounts(req.AccountIDs))
		view := fetch.New(ctx, ref, targets, retrieve, keys.DefaultKeyMap())

		final, err := tea.NewProgram(view).Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "fetch: %v\n", err)
			return exitFailure
		}

		var ok bool
		out, ok = final.(fetch.Model).Outcome()
		if !ok {
			return exitFailure
		}
	}

	if !out.Success {
		return exitFailure
	}
	return exitOK
}
