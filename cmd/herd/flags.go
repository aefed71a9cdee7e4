package main

// Flag structs decouple cobra from logic for testing.

// RunFlags configures the run command.
type RunFlags struct {
	Dir    string   // child working directory
	EnvKVs []string // extra KEY=VALUE entries for the child
}

// StatusFlags configures the status command.
type StatusFlags struct {
	JSON      bool
	Completed bool // show completed-but-unread tasks only
}

// WaitFlags configures the wait command.
type WaitFlags struct {
	PID  int  // wait for one task instead of all
	Keep bool // leave completed entries in the registry after reporting
	JSON bool
}

// KillFlags configures the kill command.
type KillFlags struct {
	PID int
}

// ServeFlags configures the serve command.
type ServeFlags struct {
	Listen string // overrides server.listen from config
}
