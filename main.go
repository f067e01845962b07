/*
Copyright © 2025 ECR Mirror menbiyagoral@gmail.com
*/
package main

import "ecrmirror/cmd"

func main() {
	cmd.Execute()
}
