package main

import "cachecluster/cmd"

func main() {
	cmd.Execute()
}
