package main

import "github.com/synchearts/relay/cmd"

func main() {
	cmd.Execute()
}
