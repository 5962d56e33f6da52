package schedule

import (
	"fmt"

	"github.com/medbook/clinic-booking-bot/internal/catalog"
)

// Grid returns every bookable slot start of one working day, ordered:
// each :00 and :30 between the working hours, skipping hours that fall
// inside the break. The grid is pure; it depends on nothing but the
// two hour ranges and is recomputed on every call.
func Grid(working, breakHours catalog.HourRange) []string {
	slots := make([]string, 0, (working.End-working.Start)*2)
	for hour := working.Start; hour < working.End; hour++ {
		if hour >= breakHours.Start && hour < breakHours.End {
			continue
		}
		slots = append(slots, fmt.Sprintf("%02d:00", hour), fmt.Sprintf("%02d:30", hour))
	}
	return slots
}

func gridContains(grid []string, slot string) bool {
	for _, s := range grid {
		if s == slot {
			return true
		}
	}
	return false
}
