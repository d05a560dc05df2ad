package main

import "github.com/autcn/SiS.Communcation-sub001/cmd/sis-ctl/cmd"

func main() {
    cmd.Execute()
}
