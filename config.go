package login

import (
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// Config holds every tunable of the package. The koanf tags match the YAML
// layout read by cmd/loginsrv.
type Config struct {
	Enabled      bool               `koanf:"enabled" json:"enabled"`
	Nonce        NonceConfig        `koanf:"nonce" json:"nonce"`
	RememberMe   RememberMeConfig   `koanf:"rememberme" json:"rememberme"`
	Activation   ActivationConfig   `koanf:"activation" json:"activation"`
	Session      SessionConfig      `koanf:"session" json:"session"`
	Routes       RoutesConfig       `koanf:"routes" json:"routes"`
	Registration RegistrationConfig `koanf:"user_registration" json:"user_registration"`
	Site         SiteConfig         `koanf:"site" json:"site"`
	Email        EmailConfig        `koanf:"email" json:"email"`
}

type NonceConfig struct {
	Secret string        `koanf:"secret" json:"-"`
	Window time.Duration `koanf:"window" json:"window"`
}

type RememberMeConfig struct {
	Enabled          bool          `koanf:"enabled" json:"enabled"`
	TTL              time.Duration `koanf:"ttl" json:"ttl"`
	CookieName       string        `koanf:"cookie_name" json:"cookie_name"`
	RevokeAllOnTheft bool          `koanf:"revoke_all_on_theft" json:"revoke_all_on_theft"`
}

type ActivationConfig struct {
	TTL time.Duration `koanf:"ttl" json:"ttl"`
}

type SessionConfig struct {
	SigningKey string        `koanf:"signing_key" json:"-"`
	CookieName string        `koanf:"cookie_name" json:"cookie_name"`
	TTL        time.Duration `koanf:"ttl" json:"ttl"`
	Secure     bool          `koanf:"secure" json:"secure"`
}

type RoutesConfig struct {
	Login    string `koanf:"login" json:"login"`
	Register string `koanf:"register" json:"register"`
	Activate string `koanf:"activate" json:"activate"`
	Home     string `koanf:"home" json:"home"`
}

type RegistrationConfig struct {
	Enabled                   bool                `koanf:"enabled" json:"enabled"`
	Fields                    []string            `koanf:"fields" json:"fields"`
	DefaultValues             map[string]string   `koanf:"default_values" json:"default_values"`
	Access                    map[string]bool     `koanf:"access" json:"access"`
	Options                   RegistrationOptions `koanf:"options" json:"options"`
	RedirectAfterRegistration string              `koanf:"redirect_after_registration" json:"redirect_after_registration"`
}

type RegistrationOptions struct {
	ValidatePassword1AndPassword2 bool `koanf:"validate_password1_and_password2" json:"validate_password1_and_password2"`
	ValidatePassword              bool `koanf:"validate_password" json:"validate_password"`
	SetUserDisabled               bool `koanf:"set_user_disabled" json:"set_user_disabled"`
	LoginAfterRegistration        bool `koanf:"login_after_registration" json:"login_after_registration"`
	SendActivationEmail           bool `koanf:"send_activation_email" json:"send_activation_email"`
	SendWelcomeEmail              bool `koanf:"send_welcome_email" json:"send_welcome_email"`
	SendNotificationEmail         bool `koanf:"send_notification_email" json:"send_notification_email"`
}

type SiteConfig struct {
	Title   string `koanf:"title" json:"title"`
	BaseURL string `koanf:"base_url" json:"base_url"`
}

type EmailConfig struct {
	From string `koanf:"from" json:"from"`
}

// DefaultConfig returns the defaults used when a key is not configured.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Nonce: NonceConfig{
			Window: DefaultNonceWindow,
		},
		RememberMe: RememberMeConfig{
			Enabled:    true,
			TTL:        DefaultRememberMeTTL,
			CookieName: "remember-me",
		},
		Activation: ActivationConfig{
			TTL: DefaultActivationTTL,
		},
		Session: SessionConfig{
			CookieName: "login-session",
			TTL:        24 * time.Hour,
			Secure:     true,
		},
		Routes: RoutesConfig{
			Login:    "/login",
			Register: "/register",
			Activate: "/activate",
			Home:     "/",
		},
		Registration: RegistrationConfig{
			Enabled: true,
			Fields:  []string{"password1", "password2", "email", "fullname", "title"},
			Access:  map[string]bool{CapabilitySiteLogin: true},
			Options: RegistrationOptions{
				ValidatePassword1AndPassword2: true,
				SetUserDisabled:               true,
				SendActivationEmail:           true,
			},
		},
		Site: SiteConfig{
			Title:   "Website",
			BaseURL: "http://localhost:8572",
		},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Nonce),
		validation.Field(&c.RememberMe),
		validation.Field(&c.Activation),
		validation.Field(&c.Session),
		validation.Field(&c.Routes),
		validation.Field(&c.Site),
		validation.Field(&c.Email),
	)
}

func (c NonceConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Window, validation.Required, validation.Min(time.Second)),
	)
}

func (c RememberMeConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.TTL, validation.Required),
		validation.Field(&c.CookieName, validation.Required),
	)
}

func (c ActivationConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.TTL, validation.Required),
	)
}

func (c SessionConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.SigningKey, validation.Required, validation.Length(16, 0)),
		validation.Field(&c.CookieName, validation.Required),
		validation.Field(&c.TTL, validation.Required),
	)
}

func (c RoutesConfig) Validate() error {
	route := validation.By(func(value any) error {
		s, _ := value.(string)
		if !strings.HasPrefix(s, "/") {
			return errors.New("must start with /")
		}
		return nil
	})
	return validation.ValidateStruct(&c,
		validation.Field(&c.Login, validation.Required, route),
		validation.Field(&c.Register, validation.Required, route),
		validation.Field(&c.Activate, validation.Required, route),
		validation.Field(&c.Home, validation.Required, route),
	)
}

func (c SiteConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
	)
}

func (c EmailConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.From, is.Email),
	)
}
