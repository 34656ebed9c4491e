package main

import "basecampy/cmd/internal/cli"

func main() {
	cli.Execute()
}
