package manager

import (
	"errors"

	"github.com/borgmon/alarm-clock/pkg/models"
)

var (
	ErrNotFound      = errors.New("alarm not found")
	ErrNoActiveAlarm = errors.New("no active alarm")
	ErrPersistence   = errors.New("persistence failure")
	ErrTimerService  = errors.New("timer service failure")
	ErrInvalidAlarm  = models.ErrInvalidAlarm
)
