// Command otprelay retrieves one-time passcodes from IMAP mailboxes.
package main

import (
	"fmt"
	"os"
)

// Exit codes.
const (
	exitOK       = 0
	exitFailure  = 1
	exitBadInput = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return exitBadInput
	}

	switch args[0] {
	case "serve":
		return runServe(args[1:])
	case "fetch":
		return runFetch(args[1:])
	case "accounts":
		return runAccounts(args[1:])
	case "help", "-h", "--help":
		usage()
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		usage()
		return exitBadInput
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: otprelay <command> [options]

Commands:
  serve                      run the HTTP API
  fetch <referenceCode>      find the OTP for a reference code
  accounts list              show configured and stored accounts
  accounts add               store a new account (password goes to the keyring)
  accounts remove <id>       delete a stored account

Examples:
  otprelay serve --port 8080
  otprelay fetch ABC12 --accounts work,personal --timeout 15000
  otprelay fetch ABC12 --plain
`)
}
