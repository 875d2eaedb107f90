package main

import "github.com/Thetimii/dashboard-sub001/cmd"

func main() {
	cmd.Execute()
}
