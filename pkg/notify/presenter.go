package notify

import (
	"fmt"
	"log"
	"sync"

	"fyne.io/fyne/v2"
	"github.com/borgmon/alarm-clock/pkg/audio"
	"github.com/borgmon/alarm-clock/pkg/models"
)

// Sound is a playing sound that can be stopped
type Sound interface {
	Stop()
}

// PlayFunc starts looping a WAV sound
type PlayFunc func(wav []byte) (Sound, error)

// PlayAudio plays through the system audio device
func PlayAudio(wav []byte) (Sound, error) {
	p, err := audio.Play(wav)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Presenter rings an alarm: a desktop notification plus a looping sound
type Presenter struct {
	app   fyne.App
	sound []byte
	play  PlayFunc
}

func NewPresenter(app fyne.App, sound []byte, play PlayFunc) *Presenter {
	if play == nil {
		play = PlayAudio
	}
	return &Presenter{app: app, sound: sound, play: play}
}

// Present shows the notification and starts the sound. A sound failure is
// logged and the session still rings visually. The returned Sound is a
// *Session.
func (p *Presenter) Present(alarm models.Alarm) (Sound, error) {
	session := &Session{UID: alarm.UID}

	if p.app != nil {
		p.app.SendNotification(fyne.NewNotification(notificationTitle(alarm), notificationBody(alarm)))
	}

	if len(p.sound) > 0 {
		sound, err := p.play(p.sound)
		if err != nil {
			log.Printf("[AUDIO] Warning: could not play sound for %s: %v", alarm.UID, err)
		} else {
			session.sound = sound
		}
	}

	log.Printf("[MANAGER] Ringing %s (%s)", alarm.UID, alarm.TimeString())
	return session, nil
}

func notificationTitle(alarm models.Alarm) string {
	if alarm.Title == "" {
		return "Alarm"
	}
	return alarm.Title
}

func notificationBody(alarm models.Alarm) string {
	if alarm.Description == "" {
		return alarm.TimeString()
	}
	return fmt.Sprintf("%s - %s", alarm.TimeString(), alarm.Description)
}

// Session is one ringing alarm. Stop releases the sound exactly once and is
// safe from any goroutine.
type Session struct {
	UID string

	sound Sound
	once  sync.Once
}

func (s *Session) Stop() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.sound != nil {
			s.sound.Stop()
		}
	})
}
