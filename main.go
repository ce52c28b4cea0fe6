package main

import "github.com/ojhankit/team-collaboration-sys-backend/cmd"

func main() {
	cmd.Execute()
}
