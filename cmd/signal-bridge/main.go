package main

import "signal-bridge/internal/cli"

func main() {
	cli.Execute()
}
