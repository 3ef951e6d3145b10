package main

import "github.com/webfleet-sh/webfleet/cmd"

func main() {
	cmd.Execute()
}
