package main

import "github.com/kozaktomas/route-attendance/cmd"

func main() {
	cmd.Execute()
}
