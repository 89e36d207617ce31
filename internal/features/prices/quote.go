package prices

// Quote model shared by every price source

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var ErrTokenNotFound = errors.New("token not found")

type Quote struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Change24h float64   `json:"change_24h"`
	HasChange bool      `json:"has_change"` // false when the source has no 24h data
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
	Stale     bool      `json:"stale"` // served from the last known value after a failed fetch
}

// Source fetches quotes for pricing ids.
// Ids the provider does not know are left out of the map and reported with a NotFoundError.
type Source interface {
	Name() string
	Supports(id string) bool
	FetchQuotes(ctx context.Context, ids []string) (map[string]Quote, error)
}

// NotFoundError lists ids missing from an otherwise successful response.
type NotFoundError struct {
	IDs []string
}

func (e *NotFoundError) Error() string {
	ids := append([]string(nil), e.IDs...)
	sort.Strings(ids)
	return fmt.Sprintf("%s: %s", ErrTokenNotFound, strings.Join(ids, ", "))
}

func (e *NotFoundError) Unwrap() error { return ErrTokenNotFound }

// MissingIDs returns the ids of want not present in got, or nil.
func MissingIDs(want []string, got map[string]Quote) []string {
	var missing []string
	for _, id := range want {
		if _, ok := got[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
