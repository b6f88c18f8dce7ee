package main

import (
	"github.com/earchibald/yoto-smart-stream-sub004/cmd"
)

func main() {
	cmd.Execute()
}
