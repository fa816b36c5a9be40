package main

import "github.com/oshokin/appshell/cmd/appshell-packager/cmd"

func main() {
	cmd.Execute()
}
