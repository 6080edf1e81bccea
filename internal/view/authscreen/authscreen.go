// Package authscreen describes the branding handed to the embeddable sign-in
// widget. Signing in itself is done by the backend's auth endpoints.
package authscreen

import (
	"strings"
)

// ThemeDefault is the widget's stock theme, recolored through Variables.
const ThemeDefault = "default"

// ProviderEmail enables the email and password form.
const ProviderEmail = "email"

// Options are the configurable branding parameters.
type Options struct {
	AppName      string
	Tagline      string
	PrimaryColor string
	AccentColor  string
	Providers    []string
}

// Colors overrides the theme's brand colors.
type Colors struct {
	Brand       string `json:"brand"`
	BrandAccent string `json:"brandAccent"`
}

// ThemeVariables are keyed by theme variant in the widget's appearance object.
type ThemeVariables struct {
	Default struct {
		Colors Colors `json:"colors"`
	} `json:"default"`
}

// Appearance is served to the client as-is.
type Appearance struct {
	AppName       string         `json:"app_name"`
	Tagline       string         `json:"tagline"`
	Theme         string         `json:"theme"`
	Variables     ThemeVariables `json:"variables"`
	EmailPassword bool           `json:"email_password"`
	// Providers lists third-party sign-in providers only.
	Providers []string `json:"providers"`
}

// New builds the appearance. Provider names are trimmed, lower-cased and
// deduplicated; "email" toggles the password form instead of being listed.
// An empty provider list falls back to email only.
func New(opts Options) Appearance {
	a := Appearance{
		AppName:   strings.TrimSpace(opts.AppName),
		Tagline:   strings.TrimSpace(opts.Tagline),
		Theme:     ThemeDefault,
		Providers: []string{},
	}
	a.Variables.Default.Colors = Colors{
		Brand:       strings.TrimSpace(opts.PrimaryColor),
		BrandAccent: strings.TrimSpace(opts.AccentColor),
	}

	seen := make(map[string]bool, len(opts.Providers))
	for _, p := range opts.Providers {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		if p == ProviderEmail {
			a.EmailPassword = true
			continue
		}
		a.Providers = append(a.Providers, p)
	}
	if len(seen) == 0 {
		a.EmailPassword = true
	}
	return a
}
