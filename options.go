package fetch

import (
	"time"

	"github.com/go-playground/validator/v10"
)

var optionValidator = validator.New()

// BasicAuth holds a username/password pair for the auth option.
type BasicAuth struct {
	User string
	Pass string
}

// CacheOptions is the `cache` option from spec.md §6's catalog:
// `{enabled, ttl, key, force_refresh, respect_headers, cache_body}`.
type CacheOptions struct {
	Enabled        bool
	TTL            *time.Duration // nil = unset, let CacheManager fall through to header/default TTL
	Key            string         // non-empty overrides key generation entirely
	ForceRefresh   bool
	RespectHeaders *bool // nil defaults to true
	CacheBody      bool
}

func (c CacheOptions) respectHeaders() bool {
	return c.RespectHeaders == nil || *c.RespectHeaders
}

// RequestOptions is the typed option struct spec.md's REDESIGN FLAGS calls
// for in place of an open-ended options map: every option in §6's catalog
// gets a field, with TransportExtras reserved for backend-specific passthrough.
type RequestOptions struct {
	Timeout        time.Duration `validate:"gte=0"`
	ConnectTimeout time.Duration `validate:"gte=0"`
	Retries        *int          `validate:"omitempty,gte=0"`
	RetryDelay     time.Duration `validate:"gte=0"`
	Auth           *BasicAuth
	Token          string
	ContentType    string
	Cache          CacheOptions
	Proxy          string
	Cookies        bool
	AllowRedirects *bool
	Cert           string
	SSLKey         string
	Stream         bool
	Async          bool
	Debug          bool

	// TransportExtras is an open map reserved for backend-specific
	// passthrough options the core doesn't interpret itself.
	TransportExtras map[string]any
}

func (o RequestOptions) clone() RequestOptions {
	cp := o
	if o.Retries != nil {
		r := *o.Retries
		cp.Retries = &r
	}
	if o.AllowRedirects != nil {
		b := *o.AllowRedirects
		cp.AllowRedirects = &b
	}
	if o.Cache.TTL != nil {
		t := *o.Cache.TTL
		cp.Cache.TTL = &t
	}
	if o.Cache.RespectHeaders != nil {
		b := *o.Cache.RespectHeaders
		cp.Cache.RespectHeaders = &b
	}
	if o.TransportExtras != nil {
		cp.TransportExtras = make(map[string]any, len(o.TransportExtras))
		for k, v := range o.TransportExtras {
			cp.TransportExtras[k] = v
		}
	}
	return cp
}

// validate runs struct-tag validation (github.com/go-playground/validator),
// raising KindInvalidInput on failure per spec.md §7.
func (o RequestOptions) validate() error {
	if err := optionValidator.Struct(o); err != nil {
		return newError(KindInvalidInput, "invalid request options", err)
	}
	return nil
}
