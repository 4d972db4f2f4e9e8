package main

import "testing"

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, name := range []string{"chat", "send"} {
		if !names[name] {
			t.Errorf("expected subcommand %q to be registered", name)
		}
	}
}

func TestBuildRootCmdRegistersConfigFlag(t *testing.T) {
	cmd := buildRootCmd()
	if cmd.PersistentFlags().Lookup("config") == nil {
		t.Error("expected a persistent --config flag")
	}
}
