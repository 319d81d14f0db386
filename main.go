package main

import (
	"os"
	"strings"

	"textingest/internal/app"
)

type exitCoder interface {
	ExitCode() int
}

func main() {
	if err := app.Execute(os.Args[1:]); err != nil {
		// Single-line error on stderr; no usage dump.
		msg := strings.Join(strings.Fields(err.Error()), " ")
		if msg == "" {
			msg = "error"
		}
		_, _ = os.Stderr.WriteString("textingest: " + msg + "\n")
		code := 1
		if ec, ok := err.(exitCoder); ok {
			if c := ec.ExitCode(); c != 0 {
				code = c
			}
		}
		os.Exit(code)
	}
}
