// Package supabase stores decisions through the Supabase PostgREST API.
// It uses the same tables as the postgres package.
package supabase

import (
	"fmt"
	"strings"
	"time"

	pkgerrors "decivue/pkg/errors"

	"github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"
)

const (
	tableDecisions   = "decisions"
	tableAssumptions = "assumptions"
	tableInsights    = "insights"
	tableEvents      = "decision_events"
)

// NewClient creates a client authenticated with the service role key so
// row level security does not hide other users' rows from the backend.
func NewClient(url, serviceRoleKey string) (*supa.Client, error) {
	client, err := supa.NewClient(url, serviceRoleKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return client, nil
}

func isDuplicate(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key")
}

func restError(op string, err error) error {
	return pkgerrors.NewExternalError("supabase", fmt.Errorf("%s: %w", op, err))
}

var (
	newestFirst = &postgrest.OrderOpts{Ascending: false}
	oldestFirst = &postgrest.OrderOpts{Ascending: true}
)

// ilikePattern wraps a search term for a PostgREST ilike filter.
func ilikePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`, `,`, ``, `(`, ``, `)`, ``)
	return "%" + r.Replace(term) + "%"
}

func optionalTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
