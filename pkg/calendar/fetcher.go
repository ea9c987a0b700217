package calendar

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/borgmon/alarm-clock/pkg/models"
	"github.com/emersion/go-ical"
	"github.com/google/uuid"
)

// Importer turns iCalendar data into alarms
type Importer struct {
	Client        *http.Client
	Location      *time.Location
	DefaultSnooze int
}

// Import reads alarms from source, which is an http(s) URL or a file path
func (im *Importer) Import(ctx context.Context, source string) ([]models.Alarm, error) {
	body, err := im.read(ctx, source)
	if err != nil {
		return nil, err
	}
	return im.Parse(body)
}

// Parse decodes alarms from an iCalendar document
func (im *Importer) Parse(body string) ([]models.Alarm, error) {
	return ParseAlarms(body, im.location(), im.DefaultSnooze)
}

func (im *Importer) location() *time.Location {
	if im.Location == nil {
		return time.Local
	}
	return im.Location
}

func (im *Importer) read(ctx context.Context, source string) (string, error) {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		data, err := os.ReadFile(source)
		if err != nil {
			return "", fmt.Errorf("failed to read calendar file: %w", err)
		}
		return string(data), nil
	}

	client := im.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return "", fmt.Errorf("invalid calendar URL: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP request failed: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	return string(body), nil
}

// ParseAlarms decodes every VEVENT in bodyStr that can be expressed as an
// alarm. Events without a UID get a fresh one.
func ParseAlarms(bodyStr string, loc *time.Location, defaultSnooze int) ([]models.Alarm, error) {
	if err := validateICalFormat(bodyStr); err != nil {
		return nil, err
	}

	decoder := ical.NewDecoder(strings.NewReader(bodyStr))
	alarms := []models.Alarm{}
	seen := make(map[string]bool)
	stats := &filterStats{}

	for {
		cal, err := decoder.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode calendar: %w", err)
		}

		for _, comp := range cal.Children {
			stats.totalComponents++
			if comp.Name != ical.CompEvent {
				continue
			}
			stats.totalEvents++

			event, err := parseEvent(comp, loc)
			if err != nil {
				log.Printf("  [FILTERED] Unparseable event \"%s\": %v", event.Title, err)
				stats.filteredMissingTime++
				continue
			}
			if !shouldImportEvent(event, stats) || isDuplicate(event, seen, stats) {
				continue
			}

			if event.UID == "" {
				event.UID = uuid.NewString()
			}
			alarms = append(alarms, event.toAlarm(defaultSnooze))
		}
	}

	stats.logSummary(len(alarms))
	return alarms, nil
}

func validateICalFormat(bodyStr string) error {
	// Check if response is HTML instead of iCalendar
	upperBody := strings.ToUpper(strings.TrimSpace(bodyStr))
	if strings.HasPrefix(upperBody, "<!DOCTYPE") || strings.HasPrefix(upperBody, "<HTML") {
		return fmt.Errorf("received HTML instead of iCalendar data - check if URL requires authentication")
	}

	if !strings.HasPrefix(strings.TrimSpace(bodyStr), "BEGIN:VCALENDAR") {
		preview := strings.TrimSpace(bodyStr)
		if len(preview) > 100 {
			preview = preview[:100]
		}
		return fmt.Errorf("invalid iCalendar format - expected BEGIN:VCALENDAR, got: %s", preview)
	}

	return nil
}
