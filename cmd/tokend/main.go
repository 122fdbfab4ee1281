package main

import "github.com/vietddude/tokend/internal/cli"

func main() {
	cli.Execute()
}
