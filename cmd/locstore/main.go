package main

import "github.com/aweris/locstore/cmd/locstore/cmd"

func main() {
	cmd.Execute()
}
