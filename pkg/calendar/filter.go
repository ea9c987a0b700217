package calendar

import (
	"log"

	"github.com/teambition/rrule-go"
)

type filterStats struct {
	totalComponents     int
	totalEvents         int
	filteredMissingTime int
	filteredCancelled   int
	filteredAllDay      int
	filteredUnsupported int
	filteredDuplicates  int
}

func (s *filterStats) logSummary(includedCount int) {
	totalFiltered := s.filteredMissingTime + s.filteredCancelled + s.filteredAllDay + s.filteredUnsupported + s.filteredDuplicates
	log.Printf("  [SUMMARY] Total components: %d, Events: %d, Imported: %d, Filtered: %d",
		s.totalComponents, s.totalEvents, includedCount, totalFiltered)
	if totalFiltered > 0 {
		log.Printf("  Filtered breakdown: %d cancelled, %d all-day, %d unsupported rule, %d missing time, %d duplicates",
			s.filteredCancelled, s.filteredAllDay, s.filteredUnsupported, s.filteredMissingTime, s.filteredDuplicates)
	}
}

func shouldImportEvent(event parsedEvent, stats *filterStats) bool {
	if event.Start.IsZero() {
		stats.filteredMissingTime++
		log.Printf("  [FILTERED] Missing time - Event: \"%s\"", event.Title)
		return false
	}

	if event.Status == "CANCELLED" {
		stats.filteredCancelled++
		log.Printf("  [FILTERED] [Cancelled] - Event: \"%s\"", event.Title)
		return false
	}

	// An alarm needs a time of day
	if event.AllDay {
		stats.filteredAllDay++
		log.Printf("  [FILTERED] [All-day] - Event: \"%s\" (Start: %s)",
			event.Title, event.Start.Format("2006-01-02"))
		return false
	}

	if event.Rule != nil && !isSupportedRule(event) {
		stats.filteredUnsupported++
		log.Printf("  [FILTERED] [Unsupported rule] - Event: \"%s\" (RRULE: %s)",
			event.Title, event.Rule.RRuleString())
		return false
	}

	log.Printf("  [INCLUDED] Event: \"%s\" (Start: %s)", event.Title, event.Start.Format("Mon 15:04"))
	return true
}

// Only weekly or daily rules with interval 1 map onto a days-of-week alarm
func isSupportedRule(event parsedEvent) bool {
	switch event.Rule.Freq {
	case rrule.WEEKLY, rrule.DAILY:
	default:
		return false
	}
	return event.Rule.Interval <= 1
}

func isDuplicate(event parsedEvent, seen map[string]bool, stats *filterStats) bool {
	if event.UID == "" {
		return false
	}
	if seen[event.UID] {
		stats.filteredDuplicates++
		log.Printf("  [FILTERED] Duplicate (UID) - Event: \"%s\" (UID: %s)", event.Title, event.UID)
		return true
	}
	seen[event.UID] = true
	return false
}
