package schedule

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is the in-process Store used when no Postgres DSN is
// configured. Appointments live in an append-only slice; a
// (doctor, date) index keeps slot-conflict lookups O(1).
type MemoryStore struct {
	mu     sync.RWMutex
	appts  []Appointment
	byDay  map[string][]string
	nextID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byDay:  make(map[string][]string),
		nextID: 1,
	}
}

func dayKey(doctorID int64, date string) string {
	return fmt.Sprintf("%d|%s", doctorID, date)
}

func (s *MemoryStore) Append(_ context.Context, a Appointment) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a.ID = s.nextID
	s.nextID++

	s.appts = append(s.appts, a)
	key := dayKey(a.DoctorID, a.Date)
	s.byDay[key] = append(s.byDay[key], a.Time)

	return a.ID, nil
}

func (s *MemoryStore) BookedTimes(_ context.Context, doctorID int64, date string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	booked := s.byDay[dayKey(doctorID, date)]
	out := make([]string, len(booked))
	copy(out, booked)
	return out, nil
}

func (s *MemoryStore) ByUser(_ context.Context, userID int64) ([]Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Appointment
	for _, a := range s.appts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	return out, nil
}
