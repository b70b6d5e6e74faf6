package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/lupppig/dirbackup/cmd"
	apperrors "github.com/lupppig/dirbackup/internal/errors"
)

const (
	EXIT_SUCCESS = iota
	EXIT_FAILURE
)

func main() {
	if err := cmd.Execute(context.Background()); err != nil {
		exitOnError(err)
	}

	os.Exit(EXIT_SUCCESS)
}

func exitOnError(err error) {
	if err == nil {
		return
	}

	fmt.Fprintf(os.Stderr, "error: %v\n", err)

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Hint != "" {
		fmt.Fprintf(os.Stderr, "hint: %s\n", appErr.Hint)
	}
	os.Exit(EXIT_FAILURE)
}
