package main

import (
	"github.com/rohmanhakim/smartcrawl/internal/cli"
)

func main() {
	cli.Execute()
}
