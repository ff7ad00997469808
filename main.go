package main

import "github.com/sammcj/mcpagent/cmd"

func main() {
	cmd.Execute()
}
