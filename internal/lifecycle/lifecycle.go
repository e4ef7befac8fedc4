// Package lifecycle не дает запустить второй экземпляр бота в режиме long polling:
// Telegram отдает апдейты только одному получателю.
package lifecycle

import (
	"errors"
	"fmt"
)

// ErrAlreadyRunning - блокировку держит другой процесс
var ErrAlreadyRunning = errors.New("another bot instance is already running")

// RunningError сообщает pid процесса, который держит блокировку
type RunningError struct {
	PID int
}

func (e *RunningError) Error() string {
	if e.PID > 0 {
		return fmt.Sprintf("%s (pid %d)", ErrAlreadyRunning, e.PID)
	}
	return ErrAlreadyRunning.Error()
}

func (e *RunningError) Is(target error) bool {
	return target == ErrAlreadyRunning
}
