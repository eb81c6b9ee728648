package main

import "github.com/wolfitem/ai-briefing/cmd"

func main() {
	cmd.Execute()
}
