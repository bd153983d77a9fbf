package main

import "github.com/goplus/abiguard/cmd/abiguard/internal"

func main() {
	internal.Execute()
}
