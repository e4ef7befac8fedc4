//go:build !unix

package lifecycle

// PIDLock на платформах без flock ничего не блокирует
type PIDLock struct{}

func Acquire(string) (*PIDLock, error) {
	return &PIDLock{}, nil
}

func (l *PIDLock) Release() error {
	return nil
}
