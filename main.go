package main

import "github.com/nextlevelbuilder/botfleet/cmd"

func main() {
	cmd.Execute()
}
