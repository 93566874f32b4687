package main

import (
	"github.com/TreasuredLabs/TreasuredLabs/internal/cli"
)

func main() {
	cli.Execute()
}
