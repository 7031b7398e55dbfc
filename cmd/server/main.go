package main

import "github.com/punktual/server/cmd/server/cmd"

func main() {
	cmd.Execute()
}
