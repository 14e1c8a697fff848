/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "chatrelay/cmd"

func main() {
	cmd.Execute()
}
