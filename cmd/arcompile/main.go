package main

import "github.com/oshokin/arcompile/cmd/arcompile/cmd"

func main() {
	cmd.Execute()
}
