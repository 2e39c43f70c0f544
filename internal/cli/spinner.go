// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

// =============================================================================
// SPINNER
// =============================================================================

// spinner animates a status line on stderr while a request is running.
// It draws nothing unless stderr is a terminal and output is for humans.
type spinner struct {
	out  io.Writer
	msg  string
	done chan struct{}
	wg   sync.WaitGroup
}

func newSpinner(env *Env, msg string) *spinner {
	s := &spinner{out: env.ErrOut, msg: msg, done: make(chan struct{})}
	f, ok := env.ErrOut.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) || env.Args.JSON || env.Args.Quiet {
		return s
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		frames := []rune{'|', '/', '-', '\\'}
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; ; i++ {
			fmt.Fprintf(s.out, "\r%c %s", frames[i%len(frames)], s.msg)
			select {
			case <-s.done:
				// Clear the line.
				fmt.Fprintf(s.out, "\r%*s\r", len(s.msg)+2, "")
				return
			case <-ticker.C:
			}
		}
	}()
	return s
}

// stop halts the animation and erases the line.
func (s *spinner) stop() {
	close(s.done)
	s.wg.Wait()
}
