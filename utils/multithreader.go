package utils

import (
	"runtime"
	"sync"
)

// MultiThread runs f for each integer in the range [start, end), spread across a number of
// goroutines. It returns once every call has finished, with the first error encountered (if any).
// After an error, no further ranges are handed out, though calls already running are completed.
//
// should be run sequentially, not in a separate thread
//
// 'opsPerThread' is the number of values that each goroutine will handle before requesting
// another set. 'threads' is the number of goroutines; if it is <= 0, one per CPU is used.
func MultiThread(start, end int, f func(int) error, opsPerThread, threads int) error {
	if end <= start {
		return nil
	}

	if opsPerThread < 1 {
		opsPerThread = 1
	}

	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	// no point in more goroutines than chunks of work
	if chunks := (end - start + opsPerThread - 1) / opsPerThread; threads > chunks {
		threads = chunks
	}

	index := start
	var firstErr error
	var indexMux sync.Mutex

	var wg sync.WaitGroup

	wg.Add(threads)
	for thread := 0; thread < threads; thread++ {
		go func() {
			defer wg.Done()

			for {
				indexMux.Lock()
				if index >= end || firstErr != nil {
					indexMux.Unlock()
					return
				}

				i := index
				index += opsPerThread
				indexMux.Unlock()

				e := i + opsPerThread
				if e > end {
					e = end
				}

				for ; i < e; i++ {
					if err := f(i); err != nil {
						indexMux.Lock()
						if firstErr == nil {
							firstErr = err
						}
						indexMux.Unlock()
						return
					}
				}
			}
		}()
	}

	wg.Wait()
	return firstErr
}
