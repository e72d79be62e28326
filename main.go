package main

import "github.com/jswatch/jswatch/cmd"

// execCmd is indirected for testing.
var execCmd = cmd.Execute

func main() {
	execCmd()
}
