package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

var (
	ErrDepartmentNotFound = errors.New("department not found")
	ErrDoctorNotFound     = errors.New("doctor not found")
)

type Department struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Doctor struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	DepartmentID int64  `json:"department_id"`
}

// HourRange is a half-open [Start, End) range of whole hours.
type HourRange struct {
	Start int
	End   int
}

// Catalog is the read-only reference data snapshot loaded at startup:
// departments, doctors and the clinic-wide schedule bounds. It is never
// refreshed while the process runs.
type Catalog struct {
	departments []Department
	doctors     []Doctor
	working     HourRange
	breakHours  HourRange
}

type fileFormat struct {
	Departments  []Department `json:"departments"`
	Doctors      []Doctor     `json:"doctors"`
	WorkingHours hoursJSON    `json:"working_hours"`
	BreakHours   hoursJSON    `json:"break_hours"`
}

type hoursJSON struct {
	Start string `json:"start"` // "09:00"
	End   string `json:"end"`   // "18:00"
}

// Load reads a catalog snapshot from a JSON file. An empty path or a
// missing file yields the built-in default catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	var ff fileFormat
	if err := json.Unmarshal(raw, &ff); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}

	working, err := parseRange(ff.WorkingHours)
	if err != nil {
		return nil, fmt.Errorf("invalid working_hours: %w", err)
	}
	breakHours, err := parseRange(ff.BreakHours)
	if err != nil {
		return nil, fmt.Errorf("invalid break_hours: %w", err)
	}

	c := &Catalog{
		departments: ff.Departments,
		doctors:     ff.Doctors,
		working:     working,
		breakHours:  breakHours,
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Default returns the catalog the bot ships with when no snapshot file
// has been provided.
func Default() *Catalog {
	return &Catalog{
		departments: []Department{
			{ID: 1, Name: "Therapy"},
			{ID: 2, Name: "Surgery"},
			{ID: 3, Name: "Neurology"},
			{ID: 4, Name: "Cardiology"},
			{ID: 5, Name: "Ophthalmology"},
		},
		doctors: []Doctor{
			{ID: 1, Name: "Dr. Ivanov", DepartmentID: 1},
			{ID: 2, Name: "Dr. Petrova", DepartmentID: 1},
			{ID: 3, Name: "Dr. Sidorov", DepartmentID: 2},
			{ID: 4, Name: "Dr. Kozlova", DepartmentID: 3},
			{ID: 5, Name: "Dr. Smirnov", DepartmentID: 4},
		},
		working:    HourRange{Start: 9, End: 18},
		breakHours: HourRange{Start: 13, End: 14},
	}
}

func (c *Catalog) validate() error {
	if c.working.Start >= c.working.End {
		return fmt.Errorf("working hours %d-%d are empty", c.working.Start, c.working.End)
	}
	deptIDs := make(map[int64]bool, len(c.departments))
	for _, d := range c.departments {
		deptIDs[d.ID] = true
	}
	for _, doc := range c.doctors {
		if !deptIDs[doc.DepartmentID] {
			return fmt.Errorf("doctor %d references unknown department %d", doc.ID, doc.DepartmentID)
		}
	}
	return nil
}

// Departments returns all departments in catalog order.
func (c *Catalog) Departments() []Department {
	out := make([]Department, len(c.departments))
	copy(out, c.departments)
	return out
}

func (c *Catalog) Department(id int64) (Department, error) {
	for _, d := range c.departments {
		if d.ID == id {
			return d, nil
		}
	}
	return Department{}, ErrDepartmentNotFound
}

// DoctorsByDepartment returns the doctors of one department in catalog
// order. An empty result is not an error.
func (c *Catalog) DoctorsByDepartment(departmentID int64) []Doctor {
	var out []Doctor
	for _, d := range c.doctors {
		if d.DepartmentID == departmentID {
			out = append(out, d)
		}
	}
	return out
}

func (c *Catalog) Doctor(id int64) (Doctor, error) {
	for _, d := range c.doctors {
		if d.ID == id {
			return d, nil
		}
	}
	return Doctor{}, ErrDoctorNotFound
}

func (c *Catalog) WorkingHours() HourRange { return c.working }

func (c *Catalog) BreakHours() HourRange { return c.breakHours }

// parseRange turns {"09:00","18:00"} into an HourRange. Minutes in the
// snapshot are ignored, the schedule grid works on whole hours.
func parseRange(h hoursJSON) (HourRange, error) {
	start, err := parseHour(h.Start)
	if err != nil {
		return HourRange{}, err
	}
	end, err := parseHour(h.End)
	if err != nil {
		return HourRange{}, err
	}
	return HourRange{Start: start, End: end}, nil
}

func parseHour(s string) (int, error) {
	hh, _, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("malformed time %q", s)
	}
	n, err := strconv.Atoi(hh)
	if err != nil || n < 0 || n > 24 {
		return 0, fmt.Errorf("malformed hour %q", s)
	}
	return n, nil
}
