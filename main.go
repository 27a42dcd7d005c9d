package main

import "github.com/peercall/peercall/cmd"

func main() {
	cmd.Execute()
}
