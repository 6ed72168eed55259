package main

import (
	_ "github.com/mattn/go-sqlite3"

	"github.com/rizaleow/ovpn-manager/cmd/ovpn-manager/cmd"
)

func main() {
	cmd.Execute()
}
