// Package sla computes case due dates and runs the periodic escalation scan.
package sla

import (
	"fmt"
	"time"

	"github.com/fleetops/caseflow/model"
)

// Time-left rendering for an overdue case.
const Overdue = "Action is overdue"

// CalculateTimeDue computes the due date for a case row and renders the time
// remaining. The due date is the row's creation time plus the SLA limit. The
// rendering buckets by strict comparison at every boundary, so exactly one
// minute left renders as "Less than 1 minute" and exactly zero is not yet
// overdue.
func CalculateTimeDue(createdOn time.Time, timeLimitMinutes int, now time.Time) model.DueInfo {
	dueDate := createdOn.Add(time.Duration(timeLimitMinutes) * time.Minute)
	left := dueDate.Sub(now)

	var timeLeft string
	switch {
	case left < 0:
		timeLeft = Overdue
	case left > 24*time.Hour:
		days := int(left.Hours()) / 24
		hours := int(left.Hours()) % 24
		minutes := int(left.Minutes()) % 60
		timeLeft = fmt.Sprintf("%d days, %d hours, %d minutes", days, hours, minutes)
	case left > time.Hour:
		hours := int(left.Hours())
		minutes := int(left.Minutes()) % 60
		timeLeft = fmt.Sprintf("%d hours, %d minutes", hours, minutes)
	case left > time.Minute:
		timeLeft = fmt.Sprintf("%d minutes", int(left.Minutes()))
	default:
		timeLeft = "Less than 1 minute"
	}

	return model.DueInfo{DueDate: dueDate, TimeLeft: timeLeft}
}
