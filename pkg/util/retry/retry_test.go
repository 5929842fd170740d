// Copyright (C) 2019-2020 Zilliz. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License
// is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express
// or implied. See the License for the specific language governing permissions and limitations under the License.

package retry

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestDo(t *testing.T) {
	ctx := context.Background()
	n := 0
	err := Do(ctx, func() error {
		n++
		if n < 3 {
			return errors.New("not yet")
		}
		return nil
	}, Sleep(time.Millisecond))
	assert.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestDo_Attempts(t *testing.T) {
	n := 0
	err := Do(context.Background(), func() error {
		n++
		return errors.New("always")
	}, Attempts(4), Sleep(time.Millisecond))
	assert.Error(t, err)
	assert.Equal(t, 4, n)
}

func TestDo_Unrecoverable(t *testing.T) {
	base := errors.New("fatal")
	n := 0
	err := Do(context.Background(), func() error {
		n++
		return Unrecoverable(base)
	}, Sleep(time.Millisecond))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsRecoverable(err))
	assert.Equal(t, 1, n)
}

func TestDo_RetryErr(t *testing.T) {
	retryable := errors.New("retryable")
	n := 0
	err := Do(context.Background(), func() error {
		n++
		if n == 1 {
			return retryable
		}
		return errors.New("other")
	}, Sleep(time.Millisecond), RetryErr(func(err error) bool { return errors.Is(err, retryable) }))
	assert.Error(t, err)
	assert.Equal(t, 2, n)
}

func TestDo_ContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)

	ctx, cancel = context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err = Do(ctx, func() error { return errors.New("slow") }, Attempts(0), Sleep(10*time.Millisecond))
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestHandle(t *testing.T) {
	n := 0
	err := Handle(context.Background(), func() (bool, error) {
		n++
		return n < 2, errors.New("stop")
	}, Sleep(time.Millisecond))
	assert.Error(t, err)
	assert.Equal(t, 2, n)
}

func TestOptions(t *testing.T) {
	c := newDefaultConfig()
	Sleep(2 * time.Second)(c)
	assert.Equal(t, 4*time.Second, c.maxSleepTime)
	MaxSleepTime(time.Second)(c)
	assert.Equal(t, 4*time.Second, c.maxSleepTime)
	MaxSleepTime(10 * time.Second)(c)
	assert.Equal(t, 10*time.Second, c.maxSleepTime)
}
