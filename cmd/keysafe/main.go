package main

import "github.com/jmcleod/keysafe/cmd/keysafe/cmd"

func main() {
	cmd.Execute()
}
