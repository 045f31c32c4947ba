package main

import "github.com/meetsync/meetsync/cmd"

func main() {
	cmd.Execute()
}
