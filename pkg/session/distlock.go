// Golang port of Overleaf
// Copyright (C) 2021-2024 Jakob Ackermann <das7pad@outlook.com>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/collabtext/editor-core/pkg/errors"
	"github.com/collabtext/editor-core/pkg/sharedTypes"
)

// Runner is the critical section run while a document's distributed lock
// is held.
type Runner func(ctx context.Context)

// DistLock is a Redis-backed per-document mutex: only one caller,
// cluster-wide, runs a Runner for a given document id at a time. The lock
// is held only for the duration of the Runner.
type DistLock interface {
	RunWithLock(ctx context.Context, docId sharedTypes.UUID, runner Runner) error
	TryRunWithLock(ctx context.Context, docId sharedTypes.UUID, runner Runner) error
}

func NewDistLock(client redis.UniversalClient, namespace string) (DistLock, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, errors.Tag(err, "cannot get hostname")
	}
	rawRand := make([]byte, 4)
	if _, err = rand.Read(rawRand); err != nil {
		return nil, errors.Tag(err, "cannot get random salt")
	}
	rnd := hex.EncodeToString(rawRand)

	return &distLock{
		client:    client,
		hostname:  hostname,
		pid:       os.Getpid(),
		rnd:       rnd,
		namespace: namespace,
	}, nil
}

var ErrLocked = errors.New("locked")

type distLock struct {
	client redis.UniversalClient

	counter   int64
	hostname  string
	pid       int
	rnd       string
	namespace string
}

const (
	lockTestInterval      = 50 * time.Millisecond
	maxTestInterval       = 1 * time.Second
	maxLockWaitTime       = 10 * time.Second
	maxRedisRequestLength = 5 * time.Second
	lockTTL               = 30 * time.Second
)

var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

func (l *distLock) getUniqueValue() string {
	now := time.Now().UnixNano()
	n := atomic.AddInt64(&l.counter, 1)
	return fmt.Sprintf(
		"locked:host=%s:pid=%d:random=%s:time=%d:count=%d",
		l.hostname, l.pid, l.rnd, now, n,
	)
}

func (l *distLock) RunWithLock(ctx context.Context, docId sharedTypes.UUID, runner Runner) error {
	return l.runWithLock(ctx, docId, runner, true)
}

func (l *distLock) TryRunWithLock(ctx context.Context, docId sharedTypes.UUID, runner Runner) error {
	return l.runWithLock(ctx, docId, runner, false)
}

func (l *distLock) runWithLock(ctx context.Context, docId sharedTypes.UUID, runner Runner, poll bool) error {
	key := fmt.Sprintf("%s:{%s}", l.namespace, docId.String())
	lockValue := l.getUniqueValue()

	acquireLockDeadline := time.Now().Add(maxLockWaitTime)
	acquireLockCtx, doneAcquireLock := context.WithDeadline(
		ctx, acquireLockDeadline,
	)
	defer doneAcquireLock()

	var workDeadline time.Time
	var lockExpiredAfter time.Time

	testInterval := lockTestInterval
	for {
		workDeadline = time.Now().Add(lockTTL)
		gotLock, timedOut, err := l.tryGetLock(acquireLockCtx, key, lockValue)
		lockExpiredAfter = time.Now().Add(lockTTL)
		if err != nil {
			err2 := l.releaseLock(key, lockValue, lockExpiredAfter)
			if poll && timedOut && err2 == nil && acquireLockCtx.Err() == nil {
				continue
			}
			return errors.Tag(err, "cannot check/acquire lock")
		}
		if gotLock {
			break
		}
		if !poll {
			return ErrLocked
		}
		if time.Now().Add(testInterval).After(acquireLockDeadline) {
			return context.DeadlineExceeded
		}
		time.Sleep(testInterval)
		testInterval = time.Duration(
			math.Max(float64(testInterval*2), float64(maxTestInterval)),
		)
	}
	doneAcquireLock()

	workCtx, workDone := context.WithDeadline(ctx, workDeadline)
	defer workDone()
	runner(workCtx)

	return l.releaseLock(key, lockValue, lockExpiredAfter)
}

func (l *distLock) tryGetLock(ctx context.Context, key string, lockValue string) (bool, bool, error) {
	getLockCtx, cancel := context.WithTimeout(ctx, maxRedisRequestLength)
	defer cancel()

	ok, err := l.client.SetNX(getLockCtx, key, lockValue, lockTTL).Result()
	if err != nil {
		attemptTimedOut :=
			err == context.DeadlineExceeded && ctx.Err() == nil
		return false, attemptTimedOut, err
	}
	return ok, false, nil
}

func (l *distLock) releaseLock(key string, lockValue string, lockExpiredAfter time.Time) error {
	if time.Now().After(lockExpiredAfter) {
		return nil
	}

	keys := []string{key}
	argv := []interface{}{lockValue}

	ctx, done := context.WithDeadline(context.Background(), lockExpiredAfter)
	defer done()
	res, err := unlockScript.Run(ctx, l.client, keys, argv).Result()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil
		}
		return err
	}
	switch returnValue := res.(type) {
	case int64:
		if returnValue == 1 {
			return nil
		}
		return errors.New("tried to release expired lock")
	default:
		return errors.New("release script turned unexpected value")
	}
}
