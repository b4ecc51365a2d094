package main

import "github.com/nextlevelbuilder/mercadoclaw/cmd"

func main() {
	cmd.Execute()
}
