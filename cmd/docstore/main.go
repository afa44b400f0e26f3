package main

import "github.com/nimburion/docstore/pkg/cli"

func main() {
	cli.Execute(cli.NewRootCommand(cli.Options{
		Name:        "docstore",
		Description: "Embedded document store with snapshot persistence",
		EnvPrefix:   "DOCSTORE",
	}))
}
