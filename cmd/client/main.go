package main

import "shopnav/cmd/client/cmd"

func main() {
	cmd.Execute()
}
