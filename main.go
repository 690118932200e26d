package main

import "databinding/cmd"

func main() {
	cmd.Execute()
}
