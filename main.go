package main

import "github.com/agentic-research/mastercopy/cmd"

func main() {
	cmd.Execute()
}
