package main

import "github.com/oshokin/appshell/cmd/appshell-ctl/cmd"

func main() {
	cmd.Execute()
}
