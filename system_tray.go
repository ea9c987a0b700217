package main

import (
	"context"
	"fmt"
	"log"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/theme"
	"github.com/borgmon/alarm-clock/pkg/manager"
)

// tray lists at most this many upcoming alarms
const trayUpcomingLimit = 5

// setupSystemTray runs once the fyne event loop is up; menu updates before
// that are dropped
func (ac *AlarmClock) setupSystemTray() {
	ac.trayReady.Store(true)
	ac.updateSystemTrayMenu()
}

func (ac *AlarmClock) updateSystemTrayMenu() {
	desk, ok := ac.app.(desktop.App)
	if !ok || !ac.trayReady.Load() {
		return
	}

	menuItems := []*fyne.MenuItem{}

	// Ringing alarm controls go first
	if uid, ringing := ac.engine.ActiveAlarm(); ringing {
		title := uid
		if alarm, err := ac.engine.Get(context.Background(), uid); err == nil {
			title = fmt.Sprintf("%s %s", alarm.TimeString(), truncateString(alarm.Title, 30))
		}
		headerItem := fyne.NewMenuItem("Ringing: "+title, nil)
		headerItem.Disabled = true
		menuItems = append(menuItems,
			headerItem,
			fyne.NewMenuItem("Stop", func() { go ac.stopRinging() }),
			fyne.NewMenuItem("Snooze", func() { go ac.snoozeRinging() }),
			fyne.NewMenuItemSeparator(),
		)
	}

	upcoming, err := ac.engine.Upcoming(context.Background())
	if err != nil {
		log.Printf("Warning: failed to list upcoming alarms: %v", err)
	}
	if len(upcoming) > trayUpcomingLimit {
		upcoming = upcoming[:trayUpcomingLimit]
	}
	if len(upcoming) > 0 {
		headerItem := fyne.NewMenuItem("Upcoming:", nil)
		headerItem.Disabled = true
		menuItems = append(menuItems, headerItem)

		for _, u := range upcoming {
			item := fyne.NewMenuItem(upcomingText(u), nil)
			item.Disabled = true
			menuItems = append(menuItems, item)
		}
		menuItems = append(menuItems, fyne.NewMenuItemSeparator())
	}

	menuItems = append(menuItems,
		fyne.NewMenuItem("Reschedule All", func() {
			go func() {
				if err := ac.engine.Reschedule(context.Background()); err != nil {
					log.Printf("Warning: reschedule: %v", err)
				}
			}()
		}),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Quit", func() {
			ac.quit()
		}),
	)

	menu := fyne.NewMenu("Alarm Clock", menuItems...)
	fyne.Do(func() {
		desk.SetSystemTrayMenu(menu)
		desk.SetSystemTrayIcon(theme.HistoryIcon())
	})
}

func (ac *AlarmClock) stopRinging() {
	if err := ac.engine.Stop(context.Background()); err != nil {
		log.Printf("Warning: stop: %v", err)
	}
}

func (ac *AlarmClock) snoozeRinging() {
	if err := ac.engine.Snooze(context.Background()); err != nil {
		log.Printf("Warning: snooze: %v", err)
	}
}

func upcomingText(u manager.Upcoming) string {
	title := u.Alarm.Title
	if title == "" {
		title = "Alarm"
	}
	return fmt.Sprintf("  %s - %s", u.Next.Format("Mon 15:04"), truncateString(title, 35))
}

// truncateString truncates a string to maxLen characters, adding "..." if needed
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
