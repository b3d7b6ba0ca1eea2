package main

import "github.com/lguibr/luactor/cmd"

func main() {
	cmd.Execute()
}
