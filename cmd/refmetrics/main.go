package main

import "github.com/dbsmedya/refmetrics/cmd/refmetrics/cmd"

func main() {
	cmd.Execute()
}
