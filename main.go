package main

import "github.com/tonhe/fieldscan/cmd"

func main() {
	cmd.Execute()
}
