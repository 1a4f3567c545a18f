package main

import "github.com/kiesman99/orthocrop/cmd"

func main() {
	cmd.Execute()
}
