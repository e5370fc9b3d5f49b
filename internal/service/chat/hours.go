package chat

import "time"

// BusinessHours says when agents are expected online.
type BusinessHours struct {
	Location  *time.Location
	OpenHour  int
	CloseHour int
}

// DefaultBusinessHours is Monday to Friday, 09:00 to 17:00 in loc.
func DefaultBusinessHours(loc *time.Location) BusinessHours {
	if loc == nil {
		loc = time.UTC
	}
	return BusinessHours{Location: loc, OpenHour: 9, CloseHour: 17}
}

func (b BusinessHours) Open(t time.Time) bool {
	loc := b.Location
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return local.Hour() >= b.OpenHour && local.Hour() < b.CloseHour
}
