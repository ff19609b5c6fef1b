package main

import "github.com/patchpilot/patchpilot/internal/cli"

func main() {
	cli.Execute()
}
