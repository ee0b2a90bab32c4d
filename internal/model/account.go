package model

import (
	"net"
	"strconv"
)

// Account describes a single IMAP mailbox the relay can search.
// Accounts are loaded once at startup and never mutated afterwards.
type Account struct {
	// ID is the unique identifier callers use to target this account.
	ID string `mapstructure:"id" yaml:"id"`

	// Provider optionally names a preset (gmail, outlook, yahoo, apple)
	// that fills Host, Port and Secure when they are left empty.
	Provider string `mapstructure:"provider" yaml:"provider"`

	Host   string `mapstructure:"host" yaml:"host"`
	Port   int    `mapstructure:"port" yaml:"port"`
	Secure bool   `mapstructure:"secure" yaml:"secure"`

	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"-"`

	// Email is the display address reported with a retrieved OTP.
	Email string `mapstructure:"email" yaml:"email"`

	// Active controls whether the account takes part in searches.
	Active bool `mapstructure:"active" yaml:"active"`

	// Keyring marks the password as stored in the system keyring
	// rather than in configuration.
	Keyring bool `mapstructure:"keyring" yaml:"keyring"`
}

// Addr returns the host:port dial address of the IMAP server.
func (a Account) Addr() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// HasCredentials reports whether both the username and the password are set.
func (a Account) HasCredentials() bool {
	return a.Username != "" && a.Password != ""
}

// Searchable reports whether the account is active and has credentials.
func (a Account) Searchable() bool {
	return a.Active && a.HasCredentials()
}

// ProviderPreset holds well-known IMAP connection settings.
type ProviderPreset struct {
	Host   string
	Port   int
	Secure bool
}

// ProviderPresets lists IMAP settings for common mail providers.
var ProviderPresets = map[string]ProviderPreset{
	"gmail":   {Host: "imap.gmail.com", Port: 993, Secure: true},
	"outlook": {Host: "outlook.office365.com", Port: 993, Secure: true},
	"yahoo":   {Host: "imap.mail.yahoo.com", Port: 993, Secure: true},
	"apple":   {Host: "imap.mail.me.com", Port: 993, Secure: true},
}

// ApplyPreset fills empty connection fields from the account's provider
// preset. Unknown providers are left untouched.
func (a *Account) ApplyPreset() {
	preset, ok := ProviderPresets[a.Provider]
	if !ok {
		return
	}
	if a.Host == "" {
		a.Host = preset.Host
		a.Secure = preset.Secure
	}
	if a.Port == 0 {
		a.Port = preset.Port
	}
}
