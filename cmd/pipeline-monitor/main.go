package main

import "github.com/davarch/pipeline-monitor/cmd/pipeline-monitor/cli"

func main() {
	cli.Execute()
}
