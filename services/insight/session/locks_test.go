// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockSerializesSameSession(t *testing.T) {
	locks := NewLockManager()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := locks.Lock("s-1")
			defer release()
			counter++
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, counter)
}

func TestLockDifferentSessionsDoNotBlock(t *testing.T) {
	locks := NewLockManager()

	releaseA := locks.Lock("s-a")
	done := make(chan struct{})
	go func() {
		releaseB := locks.Lock("s-b")
		releaseB()
		close(done)
	}()
	<-done // would deadlock if s-b waited on s-a
	releaseA()
}

func TestLockMapShrinksAfterRelease(t *testing.T) {
	locks := NewLockManager()
	release := locks.Lock("s-1")
	release()

	locks.mu.Lock()
	defer locks.mu.Unlock()
	assert.Empty(t, locks.locks)
}
