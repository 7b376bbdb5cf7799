package main

import "github.com/luxysiv/player/cmd"

func main() {
	cmd.Execute()
}
