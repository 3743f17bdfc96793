package main

import (
	cmd "github.com/crawlkit/engine/internal/cli"
)

func main() {
	cmd.Execute()
}
