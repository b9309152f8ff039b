package supabase

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"hijrachat/internal/config"

	"github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/postgrest-go"
)

const requestTimeout = 15 * time.Second

// Client talks to a Supabase project: GoTrue for accounts, PostgREST for tables.
// It implements both auth.Identity and assistant.Store.
type Client struct {
	auth  gotrue.Client
	admin gotrue.Client
	rest  *postgrest.Client
}

// New builds a client from the project url and keys. The service role key, when
// set, authorizes admin user creation and table access.
func New(cfg config.SupabaseConfig) (*Client, error) {
	base := strings.TrimRight(cfg.URL, "/")
	if base == "" {
		return nil, errors.New("supabase url required")
	}
	if cfg.AnonKey == "" {
		return nil, errors.New("supabase anon key required")
	}
	serviceKey := cfg.ServiceRoleKey
	if serviceKey == "" {
		serviceKey = cfg.AnonKey
	}

	auth := gotrue.New("", cfg.AnonKey).
		WithCustomGoTrueURL(base + "/auth/v1").
		WithClient(http.Client{Timeout: requestTimeout})

	rest := postgrest.NewClient(base+"/rest/v1", "public", map[string]string{
		"apikey":        serviceKey,
		"Authorization": "Bearer " + serviceKey,
	})
	if rest.ClientError != nil {
		return nil, rest.ClientError
	}

	return &Client{
		auth:  auth,
		admin: auth.WithToken(serviceKey),
		rest:  rest,
	}, nil
}
