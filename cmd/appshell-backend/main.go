package main

import "github.com/oshokin/appshell/cmd/appshell-backend/cmd"

func main() {
	cmd.Execute()
}
