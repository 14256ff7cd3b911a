package util

import (
	"errors"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
)

// Backoff bounds the retries of an operation that can fail while another
// process holds the metrics store
type Backoff struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

// StoreBackoff outlasts a dashboard or a second nqc run holding the
// write lock for a few seconds
var StoreBackoff = Backoff{Attempts: 5, Initial: 200 * time.Millisecond, Max: 3 * time.Second}

// busyMessages are the SQLite lock errors, matched on text because the
// driver error type stays inside the store package
var busyMessages = []string{
	"database is locked",
	"database table is locked",
	"sqlite_busy",
	"sqlite_locked",
}

// IsTransient reports whether err is a lock conflict or a network-mount
// hiccup that may clear on its own
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	for _, errno := range []syscall.Errno{syscall.EAGAIN, syscall.EBUSY, syscall.EIO, syscall.ETIMEDOUT} {
		if errors.Is(err, errno) {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, m := range busyMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// Retry runs op until it succeeds, fails with a permanent error or runs out
// of attempts. The wait doubles after every transient failure up to Max.
func (b Backoff) Retry(what string, op func() error) error {
	attempts := max(b.Attempts, 1)
	wait := b.Initial

	for attempt := 1; ; attempt++ {
		err := op()
		switch {
		case err == nil:
			if attempt > 1 {
				DebugLog("%s succeeded on attempt %d/%d", what, attempt, attempts)
			}
			return nil
		case !IsTransient(err):
			return err
		case attempt == attempts:
			WarnLog("%s still failing after %d attempts: %v", what, attempts, err)
			return eris.Wrapf(err, "%s: gave up after %d attempts", what, attempts)
		}

		DebugLog("%s busy (attempt %d/%d), retrying in %v: %v", what, attempt, attempts, wait, err)
		time.Sleep(wait)
		wait *= 2
		if b.Max > 0 && wait > b.Max {
			wait = b.Max
		}
	}
}
