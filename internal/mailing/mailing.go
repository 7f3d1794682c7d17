// Package mailing manages mailing lists, their subscribers, and the
// geographic matching that decides who receives a report.
package mailing

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrListNotFound indicates the mailing list does not exist.
	ErrListNotFound = errors.New("mailing: list not found")
	// ErrSubscriberNotFound indicates the subscriber does not exist.
	ErrSubscriberNotFound = errors.New("mailing: subscriber not found")
	// ErrDuplicateEmail indicates the email already exists in the list.
	ErrDuplicateEmail = errors.New("mailing: duplicate email in list")
)

// GlobalRegion is the wildcard region: a list carrying it receives every
// report, and a report scoped to it targets every list.
const GlobalRegion = "Global"

// MailingList groups subscribers under a set of geographic regions.
type MailingList struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	GeographicRegions []string  `json:"geographic_regions"`
	Description       string    `json:"description,omitempty"`
	SubscriberCount   int       `json:"subscriber_count"`
	CreatedAt         time.Time `json:"created_at"`
}

// Subscriber belongs to exactly one mailing list; deleting the list deletes
// its subscribers.
type Subscriber struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name,omitempty"`
	Organization  string `json:"organization,omitempty"`
	MailingListID string `json:"mailing_list_id"`
}

// Store is an in-memory registry of mailing lists and subscribers.
type Store struct {
	mu          sync.RWMutex
	lists       map[string]MailingList
	subscribers map[string]Subscriber
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		lists:       make(map[string]MailingList),
		subscribers: make(map[string]Subscriber),
	}
}

// CreateList registers a mailing list.
func (s *Store) CreateList(ctx context.Context, name, description string, regions []string) (MailingList, error) {
	if err := ctx.Err(); err != nil {
		return MailingList{}, err
	}
	if strings.TrimSpace(name) == "" {
		return MailingList{}, errors.New("mailing: list requires a name")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := MailingList{
		ID:                uuid.NewString(),
		Name:              strings.TrimSpace(name),
		Description:       strings.TrimSpace(description),
		GeographicRegions: cleanRegions(regions),
		CreatedAt:         time.Now().UTC(),
	}
	s.lists[list.ID] = list
	return list, nil
}

// GetList loads a list with its derived subscriber count.
func (s *Store) GetList(ctx context.Context, id string) (MailingList, error) {
	if err := ctx.Err(); err != nil {
		return MailingList{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	list, ok := s.lists[id]
	if !ok {
		return MailingList{}, ErrListNotFound
	}
	list.SubscriberCount = s.countSubscribersLocked(id)
	return list, nil
}

// Lists returns all lists ordered by creation time, newest first.
func (s *Store) Lists(ctx context.Context) ([]MailingList, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]MailingList, 0, len(s.lists))
	for id, list := range s.lists {
		list.SubscriberCount = s.countSubscribersLocked(id)
		out = append(out, list)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// DeleteList removes a list and cascades to its subscribers.
func (s *Store) DeleteList(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lists[id]; !ok {
		return ErrListNotFound
	}
	delete(s.lists, id)
	for subID, sub := range s.subscribers {
		if sub.MailingListID == id {
			delete(s.subscribers, subID)
		}
	}
	return nil
}

// AddSubscriber adds one subscriber; the email must be unique within the
// list.
func (s *Store) AddSubscriber(ctx context.Context, listID, email, name, organization string) (Subscriber, error) {
	if err := ctx.Err(); err != nil {
		return Subscriber{}, err
	}

	normalized := NormalizeEmail(email)
	if !ValidEmail(normalized) {
		return Subscriber{}, errors.New("mailing: invalid email")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lists[listID]; !ok {
		return Subscriber{}, ErrListNotFound
	}
	if s.emailExistsLocked(listID, normalized) {
		return Subscriber{}, ErrDuplicateEmail
	}

	sub := Subscriber{
		ID:            uuid.NewString(),
		Email:         normalized,
		Name:          strings.TrimSpace(name),
		Organization:  strings.TrimSpace(organization),
		MailingListID: listID,
	}
	s.subscribers[sub.ID] = sub
	return sub, nil
}

// DeleteSubscriber removes one subscriber.
func (s *Store) DeleteSubscriber(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subscribers[id]; !ok {
		return ErrSubscriberNotFound
	}
	delete(s.subscribers, id)
	return nil
}

// SubscribersOf returns the subscribers of one list, ordered by email.
func (s *Store) SubscribersOf(ctx context.Context, listID string) ([]Subscriber, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.lists[listID]; !ok {
		return nil, ErrListNotFound
	}

	var out []Subscriber
	for _, sub := range s.subscribers {
		if sub.MailingListID == listID {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s *Store) countSubscribersLocked(listID string) int {
	count := 0
	for _, sub := range s.subscribers {
		if sub.MailingListID == listID {
			count++
		}
	}
	return count
}

func (s *Store) emailExistsLocked(listID, email string) bool {
	for _, sub := range s.subscribers {
		if sub.MailingListID == listID && sub.Email == email {
			return true
		}
	}
	return false
}

// NormalizeEmail lowercases and trims an address for identity comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cleanRegions(regions []string) []string {
	seen := make(map[string]struct{}, len(regions))
	out := make([]string, 0, len(regions))
	for _, region := range regions {
		region = strings.TrimSpace(region)
		if region == "" {
			continue
		}
		key := strings.ToLower(region)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, region)
	}
	return out
}
