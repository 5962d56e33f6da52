package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// simulate hammers the direct-commit endpoint with concurrent workers
// competing for the same doctor's day and reports how many bookings
// succeeded versus conflicted. With a correct engine, successes can
// never exceed the slot-grid size for the day.

type simConfig struct {
	baseURL  string
	workers  int
	attempts int
	doctorID int64
	date     string
}

type createRequest struct {
	UserID      int64  `json:"user_id"`
	DoctorID    int64  `json:"doctor_id"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	PatientName string `json:"patient_name"`
	Phone       string `json:"phone"`
}

type metrics struct {
	success  atomic.Int64
	conflict atomic.Int64
	failed   atomic.Int64
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := simConfig{}
	flag.StringVar(&cfg.baseURL, "base-url", "http://localhost:8080", "bot API base URL")
	flag.IntVar(&cfg.workers, "workers", 8, "concurrent workers")
	flag.IntVar(&cfg.attempts, "attempts", 200, "total booking attempts")
	flag.Int64Var(&cfg.doctorID, "doctor", 1, "doctor id to compete for")
	flag.StringVar(&cfg.date, "date", nextWeekday(), "appointment date (YYYY-MM-DD)")
	flag.Parse()

	log.Printf("simulating %d attempts across %d workers doctor=%d date=%s",
		cfg.attempts, cfg.workers, cfg.doctorID, cfg.date)

	slots, err := fetchSlots(cfg)
	if err != nil {
		log.Fatalf("fetch slots: %v", err)
	}
	if len(slots) == 0 {
		log.Fatal("no free slots to compete for")
	}
	log.Printf("day starts with %d free slots", len(slots))

	var m metrics
	client := &http.Client{Timeout: 10 * time.Second}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < cfg.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				attemptBooking(client, cfg, slots, int64(i), &m)
			}
		}()
	}
	for i := 0; i < cfg.attempts; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	remaining, err := fetchSlots(cfg)
	if err != nil {
		log.Fatalf("fetch slots after run: %v", err)
	}

	fmt.Println("--- results ---")
	fmt.Printf("attempts:  %d\n", cfg.attempts)
	fmt.Printf("success:   %d\n", m.success.Load())
	fmt.Printf("conflict:  %d\n", m.conflict.Load())
	fmt.Printf("failed:    %d\n", m.failed.Load())
	fmt.Printf("slots before=%d after=%d\n", len(slots), len(remaining))

	if got := int(m.success.Load()); got != len(slots)-len(remaining) {
		log.Fatalf("invariant violated: %d successes but %d slots consumed",
			got, len(slots)-len(remaining))
	}
	fmt.Println("no double-booking detected")
}

func attemptBooking(client *http.Client, cfg simConfig, slots []string, userID int64, m *metrics) {
	body, _ := json.Marshal(createRequest{
		UserID:      userID,
		DoctorID:    cfg.doctorID,
		Date:        cfg.date,
		Time:        slots[rand.Intn(len(slots))],
		PatientName: fmt.Sprintf("Load Tester %d", userID),
		Phone:       fmt.Sprintf("+7916%07d", userID),
	})

	resp, err := client.Post(cfg.baseURL+"/appointments", "application/json", bytes.NewReader(body))
	if err != nil {
		m.failed.Add(1)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusCreated:
		m.success.Add(1)
	case http.StatusConflict:
		m.conflict.Add(1)
	default:
		m.failed.Add(1)
	}
}

func fetchSlots(cfg simConfig) ([]string, error) {
	url := fmt.Sprintf("%s/doctors/%d/slots?date=%s", cfg.baseURL, cfg.doctorID, cfg.date)
	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var out struct {
		Slots []string `json:"slots"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Slots, nil
}

// nextWeekday picks the first weekday inside the booking window.
func nextWeekday() string {
	d := time.Now().AddDate(0, 0, 1)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return d.Format("2006-01-02")
}
