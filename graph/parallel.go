package graph

import "sync"

// SafeGo runs fn in a goroutine tracked by wg, recovering panics and
// reporting them through onPanic. Node functions run under it so a
// panicking node fails the step instead of crashing the process.
func SafeGo(wg *sync.WaitGroup, fn func(), onPanic func(panicVal any)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				onPanic(r)
			}
		}()
		fn()
	}()
}
