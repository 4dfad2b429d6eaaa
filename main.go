package main

import "github.com/shobhitrajxyz/anonymate-app/cmd"

func main() {
	cmd.Execute()
}
