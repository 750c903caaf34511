package main

import "github.com/ValentinKolb/bKV/cmd"

func main() {
	cmd.Execute()
}
