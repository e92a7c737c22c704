package main

import "line-terminal/cmd"

func main() {
	cmd.Execute()
}
