// ./main.go
package main

import "github.com/xkilldash9x/deliberate/cmd"

func main() {
	cmd.Execute()
}
