package main

import "github.com/oshokin/arcompile/cmd/arcompile-packager/cmd"

func main() {
	cmd.Execute()
}
