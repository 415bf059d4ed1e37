package main

import "github.com/overseasops/claimgrid/cmd"

func main() {
	cmd.Execute()
}
