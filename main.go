package main

import "github.com/onewithdev/peterbot/cmd"

func main() {
	cmd.Execute()
}
