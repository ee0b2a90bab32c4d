// Package accountform prompts for a new mailbox account.
package accountform

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/nhle/otp-relay/internal/model"
)

// customProvider is the select value for accounts without a preset.
const customProvider = "custom"

// Values holds the raw form fields; huh binds to them.
type Values struct {
	ID       string
	Provider string
	Host     string
	Port     string
	Secure   bool
	Username string
	Password string
	Email    string
	Active   bool
}

// NewValues returns the form defaults.
func NewValues() *Values {
	return &Values{
		Provider: "gmail",
		Port:     "993",
		Secure:   true,
		Active:   true,
	}
}

// New builds the add-account form bound to v. The server group is only
// shown for custom providers.
func New(v *Values) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Account ID").
				Description("Identifier used to target this account; blank generates one").
				Placeholder("work").
				Value(&v.ID),
			huh.NewSelect[string]().
				Title("Provider").
				Options(providerOptions()...).
				Value(&v.Provider),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("IMAP Host").
				Description("IMAP server hostname").
				Placeholder("imap.example.com").
				Value(&v.Host).
				Validate(validateRequired("IMAP Host")),
			huh.NewInput().
				Title("IMAP Port").
				Description("IMAP server port (e.g., 993)").
				Placeholder("993").
				Value(&v.Port).
				Validate(validatePort),
			huh.NewConfirm().
				Title("Use TLS").
				Description("Implicit TLS; No upgrades with STARTTLS").
				Affirmative("Yes").
				Negative("No").
				Value(&v.Secure),
		).WithHideFunc(func() bool { return v.Provider != customProvider }),
		huh.NewGroup(
			huh.NewInput().
				Title("Username").
				Description("Mailbox login").
				Placeholder("user@example.com").
				Value(&v.Username).
				Validate(validateRequired("Username")),
			huh.NewInput().
				Title("Password").
				Description("Password or app password; stored in the system keyring").
				EchoMode(huh.EchoModePassword).
				Value(&v.Password).
				Validate(validateRequired("Password")),
			huh.NewInput().
				Title("Email").
				Description("Address reported with retrieved codes; blank uses the username").
				Value(&v.Email),
			huh.NewConfirm().
				Title("Active").
				Description("Include this account in searches").
				Affirmative("Yes").
				Negative("No").
				Value(&v.Active),
		),
	)
}

// Account converts the submitted values into an account descriptor.
// The password is carried on the account for the caller to store.
func (v *Values) Account() (model.Account, error) {
	acc := model.Account{
		ID:       strings.TrimSpace(v.ID),
		Username: strings.TrimSpace(v.Username),
		Password: v.Password,
		Email:    strings.TrimSpace(v.Email),
		Active:   v.Active,
		Keyring:  true,
	}

	if v.Provider == customProvider {
		if err := validatePort(v.Port); err != nil {
			return model.Account{}, err
		}
		port, _ := strconv.Atoi(strings.TrimSpace(v.Port))
		acc.Host = strings.TrimSpace(v.Host)
		acc.Port = port
		acc.Secure = v.Secure
		if acc.Host == "" {
			return model.Account{}, fmt.Errorf("IMAP Host is required")
		}
	} else {
		if _, ok := model.ProviderPresets[v.Provider]; !ok {
			return model.Account{}, fmt.Errorf("unknown provider %q", v.Provider)
		}
		acc.Provider = v.Provider
		acc.ApplyPreset()
	}

	if acc.Username == "" || acc.Password == "" {
		return model.Account{}, fmt.Errorf("username and password are required")
	}
	if acc.Email == "" {
		acc.Email = acc.Username
	}

	return acc, nil
}

func providerOptions() []huh.Option[string] {
	names := make([]string, 0, len(model.ProviderPresets))
	for name := range model.ProviderPresets {
		names = append(names, name)
	}
	sort.Strings(names)

	opts := make([]huh.Option[string], 0, len(names)+1)
	for _, name := range names {
		preset := model.ProviderPresets[name]
		opts = append(opts, huh.NewOption(fmt.Sprintf("%s (%s)", name, preset.Host), name))
	}
	return append(opts, huh.NewOption("Other IMAP server", customProvider))
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validatePort(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("port is required")
	}
	port, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("port must be a number")
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}
