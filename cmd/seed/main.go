package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/medbook/clinic-booking-bot/internal/db"
	"github.com/medbook/clinic-booking-bot/internal/schedule"
)

// seed writes a catalog snapshot with fake doctors and, when a
// Postgres DSN is configured, creates the appointments schema.

type hoursJSON struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type departmentJSON struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type doctorJSON struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	DepartmentID int64  `json:"department_id"`
}

type catalogJSON struct {
	Departments  []departmentJSON `json:"departments"`
	Doctors      []doctorJSON     `json:"doctors"`
	WorkingHours hoursJSON        `json:"working_hours"`
	BreakHours   hoursJSON        `json:"break_hours"`
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	path := os.Getenv("CATALOG_PATH")
	if path == "" {
		path = "catalog.json"
	}

	gofakeit.Seed(time.Now().UnixNano())

	if err := writeCatalog(path); err != nil {
		log.Fatalf("write catalog: %v", err)
	}
	log.Printf("catalog written to %s", path)

	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		if err := initSchema(dsn); err != nil {
			log.Fatalf("init schema: %v", err)
		}
		log.Println("postgres schema ready")
	}

	log.Println("seed complete")
}

func writeCatalog(path string) error {
	departments := []departmentJSON{
		{ID: 1, Name: "Therapy"},
		{ID: 2, Name: "Surgery"},
		{ID: 3, Name: "Neurology"},
		{ID: 4, Name: "Cardiology"},
		{ID: 5, Name: "Ophthalmology"},
	}

	const doctorsPerDepartment = 3
	var doctors []doctorJSON
	var nextID int64 = 1
	for _, dept := range departments {
		for i := 0; i < doctorsPerDepartment; i++ {
			doctors = append(doctors, doctorJSON{
				ID:           nextID,
				Name:         "Dr. " + gofakeit.LastName(),
				DepartmentID: dept.ID,
			})
			nextID++
		}
	}

	cat := catalogJSON{
		Departments:  departments,
		Doctors:      doctors,
		WorkingHours: hoursJSON{Start: "09:00", End: "18:00"},
		BreakHours:   hoursJSON{Start: "13:00", End: "14:00"},
	}

	b, err := json.MarshalIndent(cat, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func initSchema(dsn string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		return err
	}
	defer pool.Close()

	return schedule.NewPgStore(pool).Init(ctx)
}
