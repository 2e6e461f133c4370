package models

import (
	"strings"
)

// Event is the snapshot of a show copied onto transactions, payments and tickets.
type Event struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Date     string `json:"date"`
	Location string `json:"location"`
}

type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Code returns the upper-case alphanumeric prefix used in ticket numbers.
func (e Event) Code() string {
	var b strings.Builder
	for _, r := range strings.ToUpper(e.ID) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
		if b.Len() == 8 {
			break
		}
	}
	if b.Len() == 0 {
		return "EVT"
	}
	return b.String()
}
