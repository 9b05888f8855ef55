// Package demo is a small address book served over kvrpc. It backs the
// kvrpc command and the end-to-end tests.
package demo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robert-cronin/kvrpc/errors"
	"github.com/robert-cronin/kvrpc/registry"
)

const ServiceName = "address"

// SortOrder is sent as "asc" or "desc".
type SortOrder int

const (
	Ascending SortOrder = iota
	Descending
)

func (o SortOrder) MarshalText() ([]byte, error) {
	switch o {
	case Ascending:
		return []byte("asc"), nil
	case Descending:
		return []byte("desc"), nil
	}
	return nil, fmt.Errorf("invalid sort order %d", int(o))
}

func (o *SortOrder) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "asc":
		*o = Ascending
	case "desc":
		*o = Descending
	default:
		return fmt.Errorf("invalid sort order %q", b)
	}
	return nil
}

type Address struct {
	ID       int       `json:"id"`
	Name     string    `json:"name"`
	Street   string    `json:"street"`
	City     string    `json:"city"`
	Postcode *string   `json:"postcode,omitempty"`
	Tags     []string  `json:"tags,omitempty"`
	Created  time.Time `json:"created"`
}

// AddressService is the remote interface of the address book.
type AddressService interface {
	Ping(ctx context.Context, msg *string) (string, error)
	List(ctx context.Context) ([]Address, error)
	Get(ctx context.Context, id int) (Address, error)
	Add(ctx context.Context, a Address) (int, error)
	Remove(ctx context.Context, id int) (bool, error)
	Sort(ctx context.Context, order SortOrder) ([]Address, error)
	Search(ctx context.Context, city string, tag *string, limit int) ([]Address, error)
}

// NewRegistry binds AddressService under /kv/address/.
func NewRegistry() (*registry.Registry, error) {
	b, err := registry.NewBuilder[AddressService](ServiceName)
	if err != nil {
		return nil, err
	}
	if err := b.Bind("List", registry.WithVerb(registry.GET)); err != nil {
		return nil, err
	}
	if err := b.Bind("Remove", registry.WithVerb(registry.DELETE)); err != nil {
		return nil, err
	}
	if err := b.Bind("Sort", registry.WithVerb(registry.PUT), registry.WithPath("address/sorted")); err != nil {
		return nil, err
	}
	if err := b.BindAll(); err != nil {
		return nil, err
	}
	return b.Build()
}

// Book is an in-memory AddressService.
type Book struct {
	mu     sync.RWMutex
	nextID int
	items  []Address
	now    func() time.Time
}

func NewBook() *Book {
	return &Book{nextID: 1, now: time.Now}
}

func (b *Book) Ping(_ context.Context, msg *string) (string, error) {
	if msg == nil {
		return "pong", nil
	}
	return *msg, nil
}

// List returns the addresses in insertion order. An empty book yields nil,
// which is sent as [].
func (b *Book) List(context.Context) ([]Address, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.items) == 0 {
		return nil, nil
	}
	return append([]Address(nil), b.items...), nil
}

func (b *Book) Get(_ context.Context, id int) (Address, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, a := range b.items {
		if a.ID == id {
			return a, nil
		}
	}
	return Address{}, errors.NotFound("demo.address", fmt.Sprintf("address %d not found", id))
}

func (b *Book) Add(_ context.Context, a Address) (int, error) {
	if strings.TrimSpace(a.Name) == "" {
		return 0, errors.BadRequest("demo.address", "name is required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	a.ID = b.nextID
	b.nextID++
	if a.Created.IsZero() {
		a.Created = b.now().UTC()
	}
	b.items = append(b.items, a)
	return a.ID, nil
}

func (b *Book) Remove(_ context.Context, id int) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, a := range b.items {
		if a.ID == id {
			b.items = append(b.items[:i], b.items[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (b *Book) Sort(ctx context.Context, order SortOrder) ([]Address, error) {
	items, _ := b.List(ctx)
	sort.SliceStable(items, func(i, j int) bool {
		if order == Descending {
			return items[i].Name > items[j].Name
		}
		return items[i].Name < items[j].Name
	})
	return items, nil
}

// Search filters by city and, when tag is set, by tag. limit <= 0 means no limit.
func (b *Book) Search(_ context.Context, city string, tag *string, limit int) ([]Address, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Address
	for _, a := range b.items {
		if city != "" && !strings.EqualFold(a.City, city) {
			continue
		}
		if tag != nil && !hasTag(a.Tags, *tag) {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
