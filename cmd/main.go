package main

import (
	"os"

	"github.com/quizpath/quizpath/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
