package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ppiankov/veritas/internal/cli"
	"github.com/ppiankov/veritas/internal/model"
)

// Exit codes
const (
	exitError        = 1
	exitInputMissing = 2
	exitIntegrity    = 3
	exitValidation   = 4
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, model.ErrInputMissing):
		return exitInputMissing
	case errors.Is(err, model.ErrIntegrity):
		return exitIntegrity
	case errors.Is(err, model.ErrValidation):
		return exitValidation
	}
	return exitError
}
