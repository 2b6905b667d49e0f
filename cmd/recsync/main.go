package main

import (
	"github.com/aurasafe/recsync/internal/cli"
)

func main() {
	cli.Execute()
}
